package capture

import (
	"sync"
	"time"

	"github.com/audiotap/audiotap/pkg/backend"
	"github.com/audiotap/audiotap/pkg/mainloop"
	"github.com/audiotap/audiotap/pkg/sink"
)

// fakeBackend stands in for a real audio server, letting tests drive
// every asynchronous transition by hand.
type fakeBackend struct {
	failConnect       bool
	failStreamConnect bool
	failText          string
}

func (b *fakeBackend) NewContext(loop *mainloop.Loop, clientName string) (backend.Context, error) {
	return &fakeContext{loop: loop, b: b}, nil
}

type fakeContext struct {
	loop *mainloop.Loop
	b    *fakeBackend

	state   backend.ContextState
	stateCb func()
	lastErr string
	stream  *fakeStream
}

func (c *fakeContext) SetStateCallback(cb func()) { c.stateCb = cb }
func (c *fakeContext) State() backend.ContextState { return c.state }
func (c *fakeContext) LastError() string { return c.lastErr }

func (c *fakeContext) Connect() error {
	c.loop.Post(func() {
		if c.b.failConnect {
			c.state = backend.ContextFailed
			c.lastErr = c.b.failText
		} else {
			c.state = backend.ContextReady
		}
		if c.stateCb != nil {
			c.stateCb()
		}
	})
	return nil
}

func (c *fakeContext) NewStream(name string, spec backend.SampleSpec, chmap backend.ChannelMap) (backend.Stream, error) {
	c.stream = &fakeStream{ctx: c}
	return c.stream, nil
}

func (c *fakeContext) Unref() { c.state = backend.ContextTerminated }

// fakeStream queues byte fragments and serves them through the
// peek-and-drop protocol. When created through a fakeContext it posts
// data-ready events onto the loop; created bare, tests invoke the read
// callback themselves.
type fakeStream struct {
	ctx *fakeContext

	mu        sync.Mutex
	fragments [][]byte
	peekErr   error
	drops     int

	lat     time.Duration
	latNeg  bool
	latErr  error
	elapsed time.Duration
	timeErr error

	state        backend.StreamState
	disconnected bool
	unrefed      bool
	nilCallbacks int

	stateCb     func()
	readCb      func(int)
	movedCb     func()
	overflowCb  func()
	underflowCb func()
	startedCb   func()
	suspendedCb func()
}

func (s *fakeStream) setCb(target *func(), cb func()) {
	if cb == nil {
		s.nilCallbacks++
	}
	*target = cb
}

func (s *fakeStream) SetStateCallback(cb func()) { s.setCb(&s.stateCb, cb) }
func (s *fakeStream) SetMovedCallback(cb func()) { s.setCb(&s.movedCb, cb) }
func (s *fakeStream) SetOverflowCallback(cb func()) { s.setCb(&s.overflowCb, cb) }
func (s *fakeStream) SetUnderflowCallback(cb func()) { s.setCb(&s.underflowCb, cb) }
func (s *fakeStream) SetStartedCallback(cb func()) { s.setCb(&s.startedCb, cb) }
func (s *fakeStream) SetSuspendedCallback(cb func()) { s.setCb(&s.suspendedCb, cb) }

func (s *fakeStream) SetReadCallback(cb func(int)) {
	if cb == nil {
		s.nilCallbacks++
	}
	s.readCb = cb
}

func (s *fakeStream) ConnectRecord(device string, attr backend.BufferAttr, flags backend.Flags) error {
	s.ctx.loop.Post(func() {
		if s.ctx.b.failStreamConnect {
			s.state = backend.StreamFailed
			s.ctx.lastErr = s.ctx.b.failText
		} else {
			s.state = backend.StreamReady
		}
		if s.stateCb != nil {
			s.stateCb()
		}
	})
	return nil
}

func (s *fakeStream) State() backend.StreamState { return s.state }
func (s *fakeStream) BufferAttr() backend.BufferAttr { return backend.BufferAttr{MaxLength: -1, FragSize: 4800} }
func (s *fakeStream) DeviceIndex() uint32 { return 7 }
func (s *fakeStream) DeviceName() string { return "fake" }

// push queues one fragment and, when wired to a loop, posts the matching
// data-ready notification.
func (s *fakeStream) push(data []byte) {
	s.mu.Lock()
	s.fragments = append(s.fragments, data)
	s.mu.Unlock()

	if s.ctx != nil {
		s.ctx.loop.Post(func() {
			if s.readCb != nil {
				s.readCb(len(data))
			}
		})
	}
}

func (s *fakeStream) Peek(length int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peekErr != nil {
		return nil, s.peekErr
	}
	if len(s.fragments) == 0 {
		return nil, errNoFragment
	}
	return s.fragments[0], nil
}

func (s *fakeStream) Drop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drops++
	if len(s.fragments) > 0 {
		s.fragments = s.fragments[1:]
	}
}

func (s *fakeStream) dropCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drops
}

func (s *fakeStream) Latency() (time.Duration, bool, error) {
	return s.lat, s.latNeg, s.latErr
}

func (s *fakeStream) Time() (time.Duration, error) {
	return s.elapsed, s.timeErr
}

func (s *fakeStream) Disconnect() {
	s.disconnected = true
	s.state = backend.StreamTerminated
}

func (s *fakeStream) Unref() { s.unrefed = true }

var errNoFragment = errFake("no fragment queued")

type errFake string

func (e errFake) Error() string { return string(e) }

// collectSink records every clock reference and delivered block.
type collectSink struct {
	mu       sync.Mutex
	clocks   []time.Time
	received []*sink.Block
	trackErr error
	tracks   int
}

func (s *collectSink) AddTrack(format sink.Format) (sink.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trackErr != nil {
		return nil, s.trackErr
	}
	s.tracks++
	return &collectTrack{s: s}, nil
}

func (s *collectSink) SetClock(t time.Time) {
	s.mu.Lock()
	s.clocks = append(s.clocks, t)
	s.mu.Unlock()
}

func (s *collectSink) blockCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

func (s *collectSink) block(i int) *sink.Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.received[i]
}

func (s *collectSink) clockCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clocks)
}

func (s *collectSink) lastClock() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clocks[len(s.clocks)-1]
}

type collectTrack struct {
	s *collectSink
}

func (t *collectTrack) Send(b *sink.Block) {
	t.s.mu.Lock()
	t.s.received = append(t.s.received, b)
	t.s.mu.Unlock()
}
