package sink

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ChannelSink delivers blocks over a channel, for hosts that consume the
// capture stream as a pipeline stage.
//
// Send never blocks the event loop: when the consumer falls behind and
// the channel is full, the block is released and counted as dropped.
type ChannelSink struct {
	logger *slog.Logger
	uuid   uuid.UUID

	depth int

	mu     sync.Mutex
	track  *channelTrack
	closed bool

	clockMu sync.Mutex
	clock   time.Time
}

// NewChannelSink creates a ChannelSink whose track buffers up to depth
// blocks before dropping.
func NewChannelSink(depth int) *ChannelSink {
	u := uuid.New()
	return &ChannelSink{
		logger: slog.Default().With("channel sink uuid", u),
		uuid:   u,
		depth:  depth,
	}
}

// AddTrack registers the single track of the sink. Registering twice
// replaces the previous track without closing its channel.
func (s *ChannelSink) AddTrack(format Format) (Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Debug(
		"track registered",
		"sampleRate", format.SampleRate,
		"channels", format.Channels,
		"blockAlign", format.BlockAlign,
	)
	s.track = &channelTrack{
		logger: s.logger,
		blocks: make(chan *Block, s.depth),
	}
	return s.track, nil
}

// SetClock records the most recent clock reference published by the
// pipeline.
func (s *ChannelSink) SetClock(t time.Time) {
	s.clockMu.Lock()
	s.clock = t
	s.clockMu.Unlock()
}

// Clock returns the most recently published clock reference.
func (s *ChannelSink) Clock() time.Time {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	return s.clock
}

// Blocks returns the channel delivered blocks arrive on. The consumer
// must call Release on every block once done with it.
func (s *ChannelSink) Blocks() <-chan *Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.track == nil {
		return nil
	}
	return s.track.blocks
}

// Close closes the track channel. No blocks may be sent afterwards, so
// only call this once the capture source feeding the sink is closed.
func (s *ChannelSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.track == nil {
		return
	}
	s.closed = true
	close(s.track.blocks)
}

// Dropped reports how many blocks were discarded because the consumer
// fell behind.
func (s *ChannelSink) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.track == nil {
		return 0
	}
	return s.track.dropped.Load()
}

type channelTrack struct {
	logger  *slog.Logger
	blocks  chan *Block
	dropped atomic.Uint64
}

func (t *channelTrack) Send(block *Block) {
	select {
	case t.blocks <- block:
	default:
		block.Release()
		t.dropped.Add(1)
		t.logger.Warn("consumer behind, dropping block", "samples", block.Samples)
	}
}
