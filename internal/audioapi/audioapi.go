// Package audioapi implements the backend boundary for the capture
// pipeline: a real PortAudio-based backend and a synthetic tone backend
// for development and tests.
//
// Both backends share the same delivery shape. A capture goroutine feeds
// bytes into a receive buffer and posts data-ready events onto the shared
// event loop; the pipeline peeks and drops fragments from the buffer on
// the loop goroutine.
package audioapi

import (
	"errors"
	"sync"

	"github.com/smallnest/ringbuffer"
)

var errNoData = errors.New("audioapi: no data pending in receive buffer")

// recvBuffer is the stream-side receive buffer: a ring accumulating
// captured bytes plus the currently peeked fragment. The capture
// goroutine writes while the loop goroutine peeks and drops, so access is
// serialized here rather than in the callers.
type recvBuffer struct {
	mu      sync.Mutex
	ring    *ringbuffer.RingBuffer
	pending []byte
}

func newRecvBuffer(size int) *recvBuffer {
	return &recvBuffer{ring: ringbuffer.New(size)}
}

// write appends captured bytes, failing when the ring is full.
func (r *recvBuffer) write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ring.Write(p)
}

// length reports how many unconsumed bytes are buffered, including a
// peeked fragment that has not been dropped yet.
func (r *recvBuffer) length() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ring.Length() + len(r.pending)
}

// peek stages up to length bytes as the current fragment without
// consuming them. Repeated peeks return the same fragment until drop is
// called.
func (r *recvBuffer) peek(length int) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pending != nil {
		return r.pending, nil
	}
	if length > r.ring.Length() {
		length = r.ring.Length()
	}
	if length <= 0 {
		return nil, errNoData
	}
	buf := make([]byte, length)
	n, err := r.ring.Read(buf)
	if err != nil {
		return nil, err
	}
	r.pending = buf[:n]
	return r.pending, nil
}

// drop discards the currently peeked fragment, if any.
func (r *recvBuffer) drop() {
	r.mu.Lock()
	r.pending = nil
	r.mu.Unlock()
}
