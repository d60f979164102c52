package capture

import "errors"

var (
	// ErrInitializationFailed means the event loop or the server handle
	// behind it could not be brought up at all.
	ErrInitializationFailed = errors.New("capture: initialization failed")

	// ErrConnectionFailed means the server handshake reached a terminal
	// state before the connection became ready.
	ErrConnectionFailed = errors.New("capture: server connection failed")

	// ErrStreamConnectFailed means record stream negotiation reached a
	// terminal state before the stream became ready.
	ErrStreamConnectFailed = errors.New("capture: record stream connection failed")

	// ErrInvalidFormat means the requested sample format and channel map
	// are not self-consistent. This is a caller bug.
	ErrInvalidFormat = errors.New("capture: invalid sample format")

	// ErrUnsupported is returned for queries the source cannot answer. It
	// is a per-call answer and does not affect stream health.
	ErrUnsupported = errors.New("capture: unsupported query")
)
