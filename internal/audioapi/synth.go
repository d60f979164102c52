package audioapi

import (
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/audiotap/audiotap/pkg/backend"
	"github.com/audiotap/audiotap/pkg/mainloop"
)

// SynthBackend is an audio server that exists only in this process: it
// records a sine tone. It exercises the full asynchronous delivery path
// without touching audio hardware, which makes it the backend of choice
// for development and end-to-end tests.
type SynthBackend struct {
	// Frequency of the generated tone in Hz. Zero selects 440 Hz.
	Frequency float64
	// Tick is the interval between data-ready notifications. Zero
	// selects 20ms.
	Tick time.Duration
}

func (b *SynthBackend) NewContext(loop *mainloop.Loop, clientName string) (backend.Context, error) {
	freq := b.Frequency
	if freq == 0 {
		freq = 440
	}
	tick := b.Tick
	if tick == 0 {
		tick = 20 * time.Millisecond
	}
	return &synthContext{
		loop:       loop,
		clientName: clientName,
		frequency:  freq,
		tick:       tick,
	}, nil
}

// synthContext state is only touched under the loop lock: foreground
// callers hold it across calls, and posted events run under it.
type synthContext struct {
	loop       *mainloop.Loop
	clientName string
	frequency  float64
	tick       time.Duration

	state   backend.ContextState
	stateCb func()
	lastErr string
}

func (c *synthContext) SetStateCallback(cb func()) { c.stateCb = cb }
func (c *synthContext) State() backend.ContextState {
	return c.state
}
func (c *synthContext) LastError() string { return c.lastErr }

func (c *synthContext) Connect() error {
	// Readiness is reported asynchronously through the state callback,
	// the same way a remote server would.
	c.loop.Post(func() {
		c.state = backend.ContextReady
		if c.stateCb != nil {
			c.stateCb()
		}
	})
	return nil
}

func (c *synthContext) NewStream(name string, spec backend.SampleSpec, chmap backend.ChannelMap) (backend.Stream, error) {
	if !spec.Valid() || !chmap.CompatibleWith(spec) {
		return nil, errors.New("audioapi: invalid sample spec for synth stream")
	}
	return &synthStream{
		ctx:  c,
		spec: spec,
		buf:  newRecvBuffer(spec.BytesPerSecond()),
		stop: make(chan struct{}),
	}, nil
}

func (c *synthContext) Unref() {
	c.state = backend.ContextTerminated
}

type synthStream struct {
	ctx  *synthContext
	spec backend.SampleSpec
	buf  *recvBuffer

	state  backend.StreamState
	attr   backend.BufferAttr
	frames atomic.Uint64 // total frames generated, for Time

	stateCb     func()
	readCb      func(length int)
	movedCb     func()
	overflowCb  func()
	underflowCb func()
	startedCb   func()
	suspendedCb func()

	stop     chan struct{}
	stopOnce sync.Once
}

func (s *synthStream) SetStateCallback(cb func()) { s.stateCb = cb }
func (s *synthStream) SetReadCallback(cb func(int)) { s.readCb = cb }
func (s *synthStream) SetMovedCallback(cb func()) { s.movedCb = cb }
func (s *synthStream) SetOverflowCallback(cb func()) { s.overflowCb = cb }
func (s *synthStream) SetUnderflowCallback(cb func()) { s.underflowCb = cb }
func (s *synthStream) SetStartedCallback(cb func()) { s.startedCb = cb }
func (s *synthStream) SetSuspendedCallback(cb func()) { s.suspendedCb = cb }
func (s *synthStream) State() backend.StreamState { return s.state }
func (s *synthStream) BufferAttr() backend.BufferAttr { return s.attr }
func (s *synthStream) DeviceIndex() uint32 { return 0 }
func (s *synthStream) DeviceName() string { return "synth" }
func (s *synthStream) Peek(length int) ([]byte, error) { return s.buf.peek(length) }
func (s *synthStream) Drop() { s.buf.drop() }

func (s *synthStream) ConnectRecord(device string, attr backend.BufferAttr, flags backend.Flags) error {
	fragSize := attr.FragSize
	if fragSize <= 0 {
		fragSize = s.spec.DurationToBytes(s.ctx.tick)
	}
	s.attr = backend.BufferAttr{
		MaxLength: s.spec.BytesPerSecond(),
		FragSize:  fragSize,
	}

	go s.generate()
	return nil
}

// generate runs on its own goroutine, producing one tick of tone at a
// time and posting the matching data-ready event onto the loop.
func (s *synthStream) generate() {
	s.ctx.loop.Post(func() {
		s.state = backend.StreamReady
		if s.stateCb != nil {
			s.stateCb()
		}
		if s.startedCb != nil {
			s.startedCb()
		}
	})

	tickFrames := int(time.Duration(s.spec.Rate) * s.ctx.tick / time.Second)
	if tickFrames <= 0 {
		tickFrames = 1
	}
	chunk := make([]byte, tickFrames*s.spec.FrameSize())

	const amplitude = 0.3 * math.MaxInt16
	step := 2 * math.Pi * s.ctx.frequency / float64(s.spec.Rate)
	var phase float64

	ticker := time.NewTicker(s.ctx.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}

		for i := 0; i < tickFrames; i++ {
			sample := int16(amplitude * math.Sin(phase))
			phase += step
			for ch := 0; ch < int(s.spec.Channels); ch++ {
				off := (i*int(s.spec.Channels) + ch) * 2
				binary.LittleEndian.PutUint16(chunk[off:], uint16(sample))
			}
		}
		phase = math.Mod(phase, 2*math.Pi)

		if _, err := s.buf.write(chunk); err != nil {
			s.ctx.loop.Post(func() {
				if s.overflowCb != nil {
					s.overflowCb()
				}
			})
			continue
		}
		s.frames.Add(uint64(tickFrames))

		s.ctx.loop.Post(func() {
			if s.readCb != nil && s.state == backend.StreamReady {
				s.readCb(s.buf.length())
			}
		})
	}
}

// Latency reports the buffered audio plus half a tick, always in the
// past: the data has already been recorded.
func (s *synthStream) Latency() (time.Duration, bool, error) {
	buffered := s.spec.BytesToDuration(s.buf.length())
	return buffered + s.ctx.tick/2, false, nil
}

func (s *synthStream) Time() (time.Duration, error) {
	return s.spec.BytesToDuration(int(s.frames.Load()) * s.spec.FrameSize()), nil
}

func (s *synthStream) Disconnect() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.state = backend.StreamTerminated
}

func (s *synthStream) Unref() {}
