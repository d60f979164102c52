package capture

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/audiotap/audiotap/pkg/backend"
	"github.com/audiotap/audiotap/pkg/mainloop"
	"github.com/audiotap/audiotap/pkg/sink"
	"github.com/google/uuid"
)

// DefaultCaching is the end-to-end buffering target used when Options
// leaves Caching unset.
const DefaultCaching = 300 * time.Millisecond

// defaultPoolDepth bounds blocks in flight when Options leaves Pool unset.
const defaultPoolDepth = 32

// Options configures Open.
type Options struct {
	// Caching is the target end-to-end buffering latency. The server is
	// asked for fragments of half this much audio so at least two
	// fragments fit in the window. Zero selects DefaultCaching.
	Caching time.Duration

	// Pool bounds the blocks in flight at once. Nil selects a pool of
	// defaultPoolDepth blocks.
	Pool *sink.BlockPool

	// Now is the wall clock used to stamp delivered blocks. Nil selects
	// time.Now.
	Now func() time.Time
}

// Source is one live recording stream feeding a sink. It is owned by the
// caller and must be closed before the connection it was opened on is
// disconnected.
type Source struct {
	logger *slog.Logger
	uuid   uuid.UUID

	conn   *Connection
	loop   *mainloop.Loop
	stream backend.Stream
	out    sink.Sink
	pool   *sink.BlockPool
	now    func() time.Time

	// track is nil until the sink endpoint is registered. Data-ready
	// callbacks may in principle observe that window; they treat it as a
	// no-op, not a fault.
	track sink.Track

	// discontinuity marks that the next delivered block does not follow
	// the previous one.
	discontinuity bool
	frameSize     int
	caching       time.Duration
}

// Open creates, connects and starts one recording stream on conn,
// blocking until the stream is ready or has failed. The negotiated format
// is fixed: 16-bit signed native-endian interleaved stereo at 48 kHz.
// Delivered blocks are handed to out, whose track is registered once the
// stream reports ready.
func Open(conn *Connection, out sink.Sink, opts Options) (*Source, error) {
	caching := opts.Caching
	if caching <= 0 {
		caching = DefaultCaching
	}
	pool := opts.Pool
	if pool == nil {
		pool = sink.NewBlockPool(defaultPoolDepth)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	spec := backend.SampleSpec{
		Format:   backend.SampleS16NE,
		Rate:     48000,
		Channels: 2,
	}
	chmap := backend.StereoMap()
	if !spec.Valid() || !chmap.Valid() || !chmap.CompatibleWith(spec) {
		return nil, ErrInvalidFormat
	}

	attr := backend.BufferAttr{
		MaxLength: -1,
		FragSize:  spec.DurationToBytes(caching) / 2,
	}
	flags := backend.FlagInterpolateTiming | backend.FlagAutoTimingUpdate

	u := uuid.New()
	src := &Source{
		logger:  slog.Default().With("source uuid", u),
		uuid:    u,
		conn:    conn,
		loop:    conn.loop,
		out:     out,
		pool:    pool,
		now:     now,
		caching: caching,
	}

	loop := conn.loop
	loop.Lock()

	s, err := conn.ctx.NewStream("audio stream", spec, chmap)
	if err != nil {
		loop.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrStreamConnectFailed, err)
	}
	src.stream = s

	s.SetStateCallback(func() {
		switch s.State() {
		case backend.StreamReady, backend.StreamFailed, backend.StreamTerminated:
			// Wake every waiter, as in Connect. A wake-one could be
			// consumed by another caller blocked on the shared monitor.
			loop.Signal(true)
		}
	})
	s.SetReadCallback(src.onRead)
	s.SetMovedCallback(func() {
		src.logger.Debug("connected to source", "index", s.DeviceIndex(), "name", s.DeviceName())
	})
	s.SetOverflowCallback(func() {
		src.logger.Error("overflow")
	})
	s.SetUnderflowCallback(func() {
		src.logger.Debug("underflow")
	})
	s.SetStartedCallback(func() {
		src.logger.Debug("started")
	})
	s.SetSuspendedCallback(func() {
		src.logger.Debug("suspended")
	})

	err = s.ConnectRecord("", attr, flags)
	if err == nil {
		err = streamWait(loop, s)
	}
	if err != nil {
		text := conn.ctx.LastError()
		if text == "" {
			text = err.Error()
		}
		s.Disconnect()
		src.teardownLocked()
		loop.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrStreamConnectFailed, text)
	}

	// The track should be registered before the first read callback can
	// fire, but nothing in the server's contract guarantees that order;
	// onRead treats a nil track as a no-op.
	format := sink.Format{
		SampleRate:    int(spec.Rate),
		Channels:      int(spec.Channels),
		BitsPerSample: 16,
		BlockAlign:    spec.FrameSize(),
		Bitrate:       spec.BytesPerSecond() * 8,
	}
	src.frameSize = format.BlockAlign

	track, err := out.AddTrack(format)
	if err != nil {
		s.Disconnect()
		src.teardownLocked()
		loop.Unlock()
		return nil, fmt.Errorf("capture: registering sink track: %w", err)
	}
	src.track = track

	negotiated := s.BufferAttr()
	src.logger.Debug(
		"using buffer metrics",
		"maxlength", negotiated.MaxLength,
		"fragsize", negotiated.FragSize,
	)
	loop.Unlock()

	conn.openSources.Add(1)
	return src, nil
}

// streamWait blocks inside the monitor until the stream leaves the
// creating state. The caller must hold the loop lock.
func streamWait(loop *mainloop.Loop, s backend.Stream) error {
	for {
		switch s.State() {
		case backend.StreamReady:
			return nil
		case backend.StreamFailed, backend.StreamTerminated:
			return fmt.Errorf("stream in terminal state")
		}
		loop.Wait()
	}
}

// onRead handles one data-ready notification. It runs on the loop
// goroutine with the monitor lock held, so it must neither block nor
// allocate without bound.
func (s *Source) onRead(length int) {
	// The peeked fragment is released no matter which branch below is
	// taken; leaving it in place would stall the stream indefinitely.
	defer s.stream.Drop()

	data, err := s.stream.Peek(length)
	if err != nil {
		s.logger.Error("cannot peek stream", "err", err)
		return
	}

	now := s.now()
	latency, negative, err := s.stream.Latency()
	if err != nil {
		s.logger.Error("cannot determine latency", "err", err)
		return
	}
	pts := now
	if negative {
		pts = pts.Add(latency)
	} else {
		pts = pts.Add(-latency)
	}

	// Publish the clock reference before the track check so downstream
	// clock synchronization stays current even when the track is not
	// registered yet.
	s.out.SetClock(pts)
	if s.track == nil {
		return
	}

	block, err := s.pool.Get(len(data))
	if err != nil {
		s.discontinuity = true
		return
	}
	copy(block.Data, data)
	block.Samples = len(data) / s.frameSize
	block.DTS, block.PTS = pts, pts
	if s.discontinuity {
		block.Discontinuity = true
		s.discontinuity = false
	}

	s.track.Send(block)
}

// Close disconnects the stream, unregisters every observer and releases
// the stream handle. It must be called before the owning connection is
// disconnected. Teardown is best effort and always runs to completion.
func (s *Source) Close() {
	s.loop.Lock()
	s.stream.Disconnect()
	s.teardownLocked()
	s.loop.Unlock()

	s.conn.openSources.Add(-1)
	s.logger.Debug("closed")
}

// teardownLocked unregisters every observer and releases the stream
// handle. The caller must hold the loop lock.
func (s *Source) teardownLocked() {
	s.stream.SetStateCallback(nil)
	s.stream.SetReadCallback(nil)
	s.stream.SetMovedCallback(nil)
	s.stream.SetOverflowCallback(nil)
	s.stream.SetUnderflowCallback(nil)
	s.stream.SetStartedCallback(nil)
	s.stream.SetSuspendedCallback(nil)
	s.stream.Unref()
}
