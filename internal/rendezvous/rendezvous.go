// Package rendezvous lets a request handler block until a submission it
// just enqueued reaches a terminal state.
//
// Registration happens before the enqueue so the completion signal cannot
// race past the waiter. Signals arrive from the Redis completion channel,
// which bridges the worker process into this one.
package rendezvous

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Board is a set of one-shot completion channels keyed by submission id.
type Board struct {
	mu      sync.Mutex
	waiters map[uuid.UUID]chan struct{}
}

func New() *Board {
	return &Board{waiters: make(map[uuid.UUID]chan struct{})}
}

// Register creates a waiter slot for id. Must be called before the
// submission is enqueued. The returned cancel func releases the slot if
// the caller abandons the wait.
func (b *Board) Register(id uuid.UUID) (done <-chan struct{}, cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.waiters[id]
	if !ok {
		ch = make(chan struct{})
		b.waiters[id] = ch
	}
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.waiters[id] == ch {
			delete(b.waiters, id)
		}
	}
}

// Publish wakes every waiter registered for id. Publishing with no waiter
// is a no-op; publishing twice is safe.
func (b *Board) Publish(id uuid.UUID) {
	b.mu.Lock()
	ch, ok := b.waiters[id]
	if ok {
		delete(b.waiters, id)
	}
	b.mu.Unlock()
	if ok {
		close(ch)
	}
}

// Await blocks until the slot is published or the context ends. Returns
// true iff the completion arrived.
func (b *Board) Await(ctx context.Context, done <-chan struct{}) bool {
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// Pending returns the number of open waiter slots. Used by tests and
// health reporting.
func (b *Board) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.waiters)
}
