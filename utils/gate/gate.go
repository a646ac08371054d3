// Package gate implements a single-writer, many-reader value signal.  Readers
// block until a value has been signalled, writers publish and clear it.
package gate

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrTimeout = errors.New("timed out waiting for gate")

// Gate holds an optional value of type T.  Signalling a value releases every
// waiter at once; clearing it only affects future waiters.
type Gate[T comparable] struct {
	lock  sync.Mutex
	value T
	set   bool

	// readyCh is closed while a value is set, and replaced by a fresh
	// channel whenever the gate is cleared.
	readyCh chan struct{}
}

func New[T comparable]() *Gate[T] {
	return &Gate[T]{
		readyCh: make(chan struct{}),
	}
}

// Signal sets the value and wakes all waiters.
func (g *Gate[T]) Signal(value T) {
	g.lock.Lock()
	g.value = value
	if !g.set {
		g.set = true
		close(g.readyCh)
	}
	g.lock.Unlock()
}

// Clear unsets the value.  It never blocks.
func (g *Gate[T]) Clear() {
	g.lock.Lock()
	g.clearLocked()
	g.lock.Unlock()
}

// CompareAndClear unsets the value only if it is still equal to old.
func (g *Gate[T]) CompareAndClear(old T) bool {
	g.lock.Lock()
	defer g.lock.Unlock()

	if !g.set || g.value != old {
		return false
	}

	g.clearLocked()
	return true
}

func (g *Gate[T]) clearLocked() {
	if !g.set {
		return
	}

	var zero T
	g.value = zero
	g.set = false
	g.readyCh = make(chan struct{})
}

func (g *Gate[T]) Load() (T, bool) {
	g.lock.Lock()
	value, set := g.value, g.set
	g.lock.Unlock()
	return value, set
}

// Ready returns a channel which is closed once a value is set.  If the gate
// is cleared before that happens, the channel stays open forever, so callers
// should re-check with Load.
func (g *Gate[T]) Ready() <-chan struct{} {
	g.lock.Lock()
	ch := g.readyCh
	g.lock.Unlock()
	return ch
}

// Wait blocks until a value is available, the timeout channel fires or the
// context is done.  A nil timeout channel waits without a deadline.
func (g *Gate[T]) Wait(ctx context.Context, timeout <-chan time.Time) (T, error) {
	var zero T

	for {
		g.lock.Lock()
		value, set, readyCh := g.value, g.set, g.readyCh
		g.lock.Unlock()

		if set {
			return value, nil
		}

		select {
		case <-readyCh:
			// loop around and re-read, it may have been cleared again already
		case <-timeout:
			return zero, ErrTimeout
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}
