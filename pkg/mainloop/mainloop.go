// Package mainloop provides the shared event loop that drives every
// asynchronous audio server callback in the process.
//
// Exactly one loop goroutine exists per process, shared between all
// connections through a reference-counted handle obtained with Acquire.
// The loop owns a monitor (mutex plus condition variable): callbacks run
// on the loop goroutine while the monitor lock is held, and foreground
// callers coordinate with them exclusively through Lock, Wait and Signal.
package mainloop

import (
	"errors"
	"math"
	"sync"
)

// ErrResourceExhausted is returned by Acquire when the reference count has
// reached its maximum representable value.
var ErrResourceExhausted = errors.New("mainloop: reference count exhausted")

// Loop is a handle to the shared event loop.
//
// Obtain one with Acquire and return it with Release. Backends deliver
// events through Post; the loop goroutine runs each posted function while
// holding the monitor lock.
type Loop struct {
	mu   sync.Mutex
	cond *sync.Cond

	work chan func()
	quit chan struct{}
	done chan struct{}
}

func newLoop() *Loop {
	l := &Loop{
		work: make(chan func(), 64),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	l.cond = sync.NewCond(&l.mu)
	return l
}

func (l *Loop) run() {
	for {
		select {
		case <-l.quit:
			close(l.done)
			return
		case fn := <-l.work:
			l.mu.Lock()
			fn()
			l.mu.Unlock()
		}
	}
}

func (l *Loop) stop() {
	close(l.quit)
	<-l.done
}

// Post schedules fn to run on the loop goroutine, where it executes with
// the monitor lock held. It reports false once the loop has been stopped,
// in which case fn is discarded.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.quit:
		return false
	default:
	}
	select {
	case l.work <- fn:
		return true
	case <-l.quit:
		return false
	}
}

// Lock acquires the monitor lock. It must not be called from a callback
// running on the loop goroutine, which already holds the lock.
func (l *Loop) Lock() {
	l.mu.Lock()
}

// Unlock releases the monitor lock.
func (l *Loop) Unlock() {
	l.mu.Unlock()
}

// Wait blocks the caller until Signal is called. The caller must hold the
// monitor lock; the lock is released for the duration of the wait and
// reacquired before Wait returns. Always call Wait inside a loop that
// rechecks the awaited condition.
//
// Waits are unbounded. A server that never leaves its connecting state
// blocks the caller forever.
func (l *Loop) Wait() {
	l.cond.Wait()
}

// Signal wakes one waiter, or every waiter when wakeAll is set.
func (l *Loop) Signal(wakeAll bool) {
	if wakeAll {
		l.cond.Broadcast()
	} else {
		l.cond.Signal()
	}
}

// The process-wide loop is reference counted behind its own mutex. That
// mutex is distinct from the monitor lock: the count may change while the
// loop goroutine is in the middle of dispatching a callback.
var shared struct {
	mu   sync.Mutex
	refs uint
	loop *Loop
}

// Acquire returns a handle to the shared loop, starting the loop goroutine
// if this is the first reference in the process.
func Acquire() (*Loop, error) {
	shared.mu.Lock()
	defer shared.mu.Unlock()

	if shared.refs == math.MaxUint {
		return nil, ErrResourceExhausted
	}
	if shared.refs == 0 {
		loop := newLoop()
		go loop.run()
		shared.loop = loop
	}
	shared.refs++
	return shared.loop, nil
}

// Release returns a handle obtained from Acquire. The last release stops
// the loop goroutine; the stop happens outside the reference-count mutex
// so that a callback in flight cannot deadlock against it.
func Release(l *Loop) {
	shared.mu.Lock()
	if shared.refs == 0 || l != shared.loop {
		shared.mu.Unlock()
		panic("mainloop: Release without matching Acquire")
	}
	shared.refs--
	var stop *Loop
	if shared.refs == 0 {
		stop = shared.loop
		shared.loop = nil
	}
	shared.mu.Unlock()

	if stop != nil {
		stop.stop()
	}
}

// Refs reports the current number of outstanding loop references.
func Refs() uint {
	shared.mu.Lock()
	defer shared.mu.Unlock()
	return shared.refs
}
