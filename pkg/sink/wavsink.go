package sink

import (
	"encoding/binary"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
)

// WAVSink writes delivered blocks to a .WAV file.
// Note the resulting file is only valid once the sink is closed.
type WAVSink struct {
	logger *slog.Logger
	uuid   uuid.UUID

	mu         sync.Mutex
	fileHandle *os.File
	encoder    *wav.Encoder
	format     Format
	closed     bool
}

// NewWAVSink creates a WAVSink writing to the file at audioFilePath. The
// WAV header is written when the pipeline registers its track, once the
// negotiated format is known.
func NewWAVSink(audioFilePath string) (*WAVSink, error) {
	u := uuid.New()
	logger := slog.Default().With(
		"wav sink uuid", u,
	)

	f, err := os.Create(audioFilePath)
	if err != nil {
		logger.Error(
			"could not create audio file",
			"audioFile", audioFilePath,
			"err", err,
		)
		return nil, err
	}

	return &WAVSink{
		logger:     logger,
		uuid:       u,
		fileHandle: f,
	}, nil
}

// AddTrack registers the single track of the sink and writes the WAV
// header for the given format.
func (s *WAVSink) AddTrack(format Format) (Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.encoder != nil {
		return nil, errors.New("sink: wav sink already has a track")
	}
	if format.BitsPerSample != 16 {
		return nil, errors.New("sink: wav sink only accepts 16-bit PCM")
	}

	s.encoder = wav.NewEncoder(s.fileHandle, format.SampleRate, format.BitsPerSample, format.Channels, 1)
	s.format = format

	s.logger.Debug(
		"opened wav track",
		"sampleRate", format.SampleRate,
		"channels", format.Channels,
		"bitsPerSample", format.BitsPerSample,
	)
	return &wavTrack{sink: s}, nil
}

// SetClock is a no-op: a file has no clock to synchronize.
func (s *WAVSink) SetClock(time.Time) {}

// Close finalizes the WAV header and closes the file.
func (s *WAVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.encoder != nil {
		if err := s.encoder.Close(); err != nil {
			return err
		}
	}
	s.fileHandle.Sync()
	return s.fileHandle.Close()
}

type wavTrack struct {
	sink *WAVSink
}

func (t *wavTrack) Send(block *Block) {
	defer block.Release()

	s := t.sink
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			SampleRate:  s.format.SampleRate,
			NumChannels: s.format.Channels,
		},
		Data:           make([]int, len(block.Data)/2),
		SourceBitDepth: 16,
	}
	for i := range buf.Data {
		buf.Data[i] = int(int16(binary.LittleEndian.Uint16(block.Data[2*i:])))
	}

	if err := s.encoder.Write(buf); err != nil {
		s.logger.Error("error while writing block to file", "err", err)
	}
}
