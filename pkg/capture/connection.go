// Package capture connects to an audio server, negotiates a recording
// stream and converts its asynchronous data-ready notifications into
// timestamped media blocks delivered to a sink.
package capture

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/audiotap/audiotap/pkg/backend"
	"github.com/audiotap/audiotap/pkg/mainloop"
	"github.com/google/uuid"
)

// Connection is one logical session to the audio server. It is owned by
// the caller who opened it and must be disconnected exactly once, after
// every Source opened on it has been closed.
type Connection struct {
	logger *slog.Logger
	uuid   uuid.UUID

	loop *mainloop.Loop
	ctx  backend.Context

	openSources atomic.Int32
}

// Connect acquires the shared event loop and performs the server
// handshake, blocking until the connection is ready or has failed.
// clientName is an optional identity string shown to the server.
func Connect(b backend.Backend, clientName string) (*Connection, error) {
	loop, err := mainloop.Acquire()
	if err != nil {
		return nil, err
	}

	ctx, err := b.NewContext(loop, clientName)
	if err != nil {
		mainloop.Release(loop)
		return nil, fmt.Errorf("%w: %v", ErrInitializationFailed, err)
	}

	u := uuid.New()
	conn := &Connection{
		logger: slog.Default().With("connection uuid", u),
		uuid:   u,
		loop:   loop,
		ctx:    ctx,
	}

	loop.Lock()
	ctx.SetStateCallback(func() {
		switch ctx.State() {
		case backend.ContextReady, backend.ContextFailed, backend.ContextTerminated:
			// Wake every waiter: the monitor is shared by all users of
			// the process-wide loop, so a single wakeup could be consumed
			// by a waiter blocked on a different predicate.
			loop.Signal(true)
		}
	})

	err = ctx.Connect()
	if err == nil {
		err = contextWait(loop, ctx)
	}
	if err != nil {
		text := ctx.LastError()
		if text == "" {
			text = err.Error()
		}
		ctx.SetStateCallback(nil)
		ctx.Unref()
		loop.Unlock()
		mainloop.Release(loop)
		return nil, fmt.Errorf("%w: %s", ErrConnectionFailed, text)
	}
	loop.Unlock()

	conn.logger.Debug("connected to audio server", "clientName", clientName)
	return conn, nil
}

// contextWait blocks inside the monitor until the connection leaves the
// connecting state. The caller must hold the loop lock.
func contextWait(loop *mainloop.Loop, ctx backend.Context) error {
	for {
		switch ctx.State() {
		case backend.ContextReady:
			return nil
		case backend.ContextFailed, backend.ContextTerminated:
			return fmt.Errorf("context in terminal state")
		}
		loop.Wait()
	}
}

// Disconnect releases the server connection and the event loop handle,
// stopping the shared loop if this was the last reference in the process.
// Panics if a Source opened on this connection has not been closed: the
// stream borrows from the connection and must be torn down first.
func (c *Connection) Disconnect() {
	if n := c.openSources.Load(); n != 0 {
		panic(fmt.Sprintf("capture: Disconnect with %d source(s) still open", n))
	}

	c.loop.Lock()
	c.ctx.SetStateCallback(nil)
	c.ctx.Unref()
	c.loop.Unlock()

	mainloop.Release(c.loop)
	c.logger.Debug("disconnected from audio server")
}
