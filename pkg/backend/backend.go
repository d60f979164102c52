// Package backend defines the boundary between the capture pipeline and
// the audio server it records from.
//
// The server's wire protocol is opaque to this module: a Backend
// implementation owns the actual transport and surfaces the server's
// asynchronous API as callbacks delivered on the shared event loop.
// Implementations live in internal/audioapi.
package backend

import (
	"time"

	"github.com/audiotap/audiotap/pkg/mainloop"
)

// ContextState describes the lifecycle of a server connection.
type ContextState int

const (
	ContextConnecting ContextState = iota
	ContextReady
	ContextFailed
	ContextTerminated
)

// StreamState describes the lifecycle of a recording stream.
type StreamState int

const (
	StreamCreating StreamState = iota
	StreamReady
	StreamFailed
	StreamTerminated
)

// Flags adjust how a stream is connected for recording.
type Flags uint

const (
	// FlagInterpolateTiming asks the server to interpolate latency and
	// time queries between timing updates, so they answer from a recent
	// local estimate instead of a server round trip.
	FlagInterpolateTiming Flags = 1 << iota
	// FlagAutoTimingUpdate asks the server to refresh the timing estimate
	// periodically on its own.
	FlagAutoTimingUpdate
)

// Backend creates connections to one kind of audio server.
type Backend interface {
	// NewContext creates an unconnected server connection whose callbacks
	// will be dispatched on the given loop. clientName is an optional
	// identity string shown to the server; it may be empty.
	NewContext(loop *mainloop.Loop, clientName string) (Context, error)
}

// Context is one logical connection to the audio server.
//
// All methods except Unref must only be called while the connection is
// live; callbacks fire on the loop goroutine under the monitor lock.
type Context interface {
	// SetStateCallback registers the observer invoked on every connection
	// state change. A nil callback unregisters the observer.
	SetStateCallback(func())

	// Connect starts the asynchronous server handshake. Completion is
	// reported through the state callback.
	Connect() error

	// State returns the current connection state. Callers must hold the
	// loop lock or be running on the loop goroutine.
	State() ContextState

	// LastError returns the server-reported diagnostic text for the most
	// recent failure, or an empty string.
	LastError() string

	// NewStream creates a recording stream bound to this connection. The
	// stream starts in StreamCreating and is not yet connected.
	NewStream(name string, spec SampleSpec, chmap ChannelMap) (Stream, error)

	// Unref releases the connection handle. No callbacks fire afterwards.
	Unref()
}

// Stream is one in-progress recording session on a connection.
//
// The read callback reports how many bytes may be peeked; the data stays
// in the stream's receive buffer until Drop discards the peeked fragment.
type Stream interface {
	SetStateCallback(func())
	SetReadCallback(func(length int))
	SetMovedCallback(func())
	SetOverflowCallback(func())
	SetUnderflowCallback(func())
	SetStartedCallback(func())
	SetSuspendedCallback(func())

	// ConnectRecord starts recording. An empty device name selects the
	// server's default source.
	ConnectRecord(device string, attr BufferAttr, flags Flags) error

	// State returns the current stream state. Callers must hold the loop
	// lock or be running on the loop goroutine.
	State() StreamState

	// Peek returns up to length bytes from the receive buffer without
	// consuming them. The returned slice is only valid until Drop.
	Peek(length int) ([]byte, error)

	// Drop discards the fragment most recently returned by Peek, or the
	// pending fragment when nothing was peeked.
	Drop()

	// Latency returns the server's current latency estimate. A negative
	// direction means the estimate refers to data not yet recorded; the
	// usual direction for capture is positive, data already in the past.
	Latency() (latency time.Duration, negative bool, err error)

	// Time returns the stream's elapsed recording time.
	Time() (time.Duration, error)

	// BufferAttr returns the buffer metrics actually negotiated with the
	// server, which may differ from the ones requested.
	BufferAttr() BufferAttr

	// DeviceIndex and DeviceName identify the source the stream is
	// currently connected to.
	DeviceIndex() uint32
	DeviceName() string

	// Disconnect stops recording. No data callbacks fire afterwards.
	Disconnect()

	// Unref releases the stream handle.
	Unref()
}
