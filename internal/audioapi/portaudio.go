package audioapi

import (
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/audiotap/audiotap/pkg/backend"
	"github.com/audiotap/audiotap/pkg/mainloop"
	"github.com/gordonklaus/portaudio"
)

// PortAudioBackend records from the default system input device through
// PortAudio.
type PortAudioBackend struct{}

func (b *PortAudioBackend) NewContext(loop *mainloop.Loop, clientName string) (backend.Context, error) {
	return &paContext{loop: loop, clientName: clientName}, nil
}

// paContext state is only touched under the loop lock, the same
// discipline as the synth backend.
type paContext struct {
	loop       *mainloop.Loop
	clientName string

	state       backend.ContextState
	stateCb     func()
	lastErr     string
	initialized bool
	streams     []*paStream
}

func (c *paContext) SetStateCallback(cb func()) { c.stateCb = cb }
func (c *paContext) State() backend.ContextState {
	return c.state
}
func (c *paContext) LastError() string { return c.lastErr }

func (c *paContext) Connect() error {
	// PortAudio initialization probes the host audio system and can take
	// a while, so it runs off the loop and reports back through the state
	// callback.
	go func() {
		err := portaudio.Initialize()
		c.loop.Post(func() {
			if err != nil {
				c.state = backend.ContextFailed
				c.lastErr = err.Error()
			} else {
				c.state = backend.ContextReady
				c.initialized = true
			}
			if c.stateCb != nil {
				c.stateCb()
			}
		})
	}()
	return nil
}

func (c *paContext) NewStream(name string, spec backend.SampleSpec, chmap backend.ChannelMap) (backend.Stream, error) {
	if !spec.Valid() || !chmap.CompatibleWith(spec) {
		return nil, errors.New("audioapi: invalid sample spec for portaudio stream")
	}
	s := &paStream{
		ctx:  c,
		spec: spec,
		buf:  newRecvBuffer(spec.BytesPerSecond()),
		stop: make(chan struct{}),
	}
	c.streams = append(c.streams, s)
	return s, nil
}

func (c *paContext) Unref() {
	c.state = backend.ContextTerminated
	if !c.initialized {
		return
	}
	c.initialized = false

	// A capture goroutine may still be inside a blocking read or its
	// deferred stream close; the PortAudio stream must not outlive
	// Terminate. The join runs off the loop so a capture goroutine
	// blocked posting an event cannot deadlock against the caller's
	// loop lock.
	streams := c.streams
	go func() {
		for _, s := range streams {
			if s.done != nil {
				<-s.done
			}
		}
		portaudio.Terminate()
	}()
}

type paStream struct {
	ctx  *paContext
	spec backend.SampleSpec
	buf  *recvBuffer

	state backend.StreamState
	attr  backend.BufferAttr

	deviceName string
	deviceIdx  uint32
	latency    atomic.Int64  // portaudio input latency in nanoseconds
	frames     atomic.Uint64 // total frames captured, for Time

	stateCb     func()
	readCb      func(length int)
	movedCb     func()
	overflowCb  func()
	underflowCb func()
	startedCb   func()
	suspendedCb func()

	stop     chan struct{}
	stopOnce sync.Once
	// done is closed when the capture goroutine has exited; nil until
	// ConnectRecord starts it.
	done chan struct{}
}

func (s *paStream) SetStateCallback(cb func()) { s.stateCb = cb }
func (s *paStream) SetReadCallback(cb func(int)) { s.readCb = cb }
func (s *paStream) SetMovedCallback(cb func()) { s.movedCb = cb }
func (s *paStream) SetOverflowCallback(cb func()) { s.overflowCb = cb }
func (s *paStream) SetUnderflowCallback(cb func()) { s.underflowCb = cb }
func (s *paStream) SetStartedCallback(cb func()) { s.startedCb = cb }
func (s *paStream) SetSuspendedCallback(cb func()) { s.suspendedCb = cb }
func (s *paStream) State() backend.StreamState { return s.state }
func (s *paStream) BufferAttr() backend.BufferAttr { return s.attr }
func (s *paStream) DeviceIndex() uint32 { return s.deviceIdx }
func (s *paStream) DeviceName() string { return s.deviceName }
func (s *paStream) Peek(length int) ([]byte, error) { return s.buf.peek(length) }
func (s *paStream) Drop() { s.buf.drop() }

func (s *paStream) ConnectRecord(device string, attr backend.BufferAttr, flags backend.Flags) error {
	framesPerBuffer := 480 // 10ms at 48kHz
	if attr.FragSize > 0 {
		if f := attr.FragSize / s.spec.FrameSize(); f > 0 {
			framesPerBuffer = f
		}
	}
	s.attr = backend.BufferAttr{
		MaxLength: s.spec.BytesPerSecond(),
		FragSize:  framesPerBuffer * s.spec.FrameSize(),
	}

	s.done = make(chan struct{})
	go s.capture(framesPerBuffer)
	return nil
}

// capture runs on its own goroutine, blocking on PortAudio reads and
// posting data-ready events onto the loop.
func (s *paStream) capture(framesPerBuffer int) {
	defer close(s.done)

	samples := make([]int16, framesPerBuffer*int(s.spec.Channels))
	stream, err := portaudio.OpenDefaultStream(
		int(s.spec.Channels),
		0,
		float64(s.spec.Rate),
		framesPerBuffer,
		samples,
	)
	if err == nil {
		err = stream.Start()
		if err != nil {
			stream.Close()
		}
	}
	if err != nil {
		s.fail(err)
		return
	}
	defer func() {
		stream.Stop()
		stream.Close()
	}()

	s.latency.Store(int64(stream.Info().InputLatency))
	devName, devIdx := "", uint32(0)
	if dev, derr := portaudio.DefaultInputDevice(); derr == nil {
		devName, devIdx = dev.Name, uint32(dev.Index)
	}

	// Device identity is read under the loop lock, so it is published
	// from the loop too.
	s.ctx.loop.Post(func() {
		s.deviceName = devName
		s.deviceIdx = devIdx
		s.state = backend.StreamReady
		if s.stateCb != nil {
			s.stateCb()
		}
		if s.startedCb != nil {
			s.startedCb()
		}
	})

	chunk := make([]byte, len(samples)*2)
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		if err := stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				s.ctx.loop.Post(func() {
					if s.overflowCb != nil {
						s.overflowCb()
					}
				})
				continue
			}
			s.fail(err)
			return
		}

		for i, sample := range samples {
			binary.LittleEndian.PutUint16(chunk[2*i:], uint16(sample))
		}
		if _, werr := s.buf.write(chunk); werr != nil {
			s.ctx.loop.Post(func() {
				if s.overflowCb != nil {
					s.overflowCb()
				}
			})
			continue
		}
		s.frames.Add(uint64(framesPerBuffer))

		s.ctx.loop.Post(func() {
			if s.readCb != nil && s.state == backend.StreamReady {
				s.readCb(s.buf.length())
			}
		})
	}
}

func (s *paStream) fail(err error) {
	s.ctx.loop.Post(func() {
		s.state = backend.StreamFailed
		s.ctx.lastErr = err.Error()
		if s.stateCb != nil {
			s.stateCb()
		}
	})
}

// Latency reports the device input latency plus the audio sitting in the
// receive buffer, always in the past.
func (s *paStream) Latency() (time.Duration, bool, error) {
	buffered := s.spec.BytesToDuration(s.buf.length())
	return buffered + time.Duration(s.latency.Load()), false, nil
}

func (s *paStream) Time() (time.Duration, error) {
	return s.spec.BytesToDuration(int(s.frames.Load()) * s.spec.FrameSize()), nil
}

func (s *paStream) Disconnect() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.state = backend.StreamTerminated
}

func (s *paStream) Unref() {}
