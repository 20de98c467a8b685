package rendezvous

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishWakesWaiter(t *testing.T) {
	b := New()
	id := uuid.New()
	done, cancel := b.Register(id)
	defer cancel()

	go b.Publish(id)

	ok := b.Await(context.Background(), done)
	assert.True(t, ok)
	assert.Zero(t, b.Pending())
}

func TestAwaitTimesOut(t *testing.T) {
	b := New()
	id := uuid.New()
	done, cancel := b.Register(id)
	defer cancel()

	ctx, cancelCtx := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelCtx()

	start := time.Now()
	ok := b.Await(ctx, done)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), time.Second)
}

func TestCancelReleasesSlot(t *testing.T) {
	b := New()
	id := uuid.New()
	_, cancel := b.Register(id)
	require.Equal(t, 1, b.Pending())

	cancel()
	assert.Zero(t, b.Pending())

	// Publish after cancel must not panic or block.
	b.Publish(id)
}

func TestPublishIdempotent(t *testing.T) {
	b := New()
	id := uuid.New()
	done, cancel := b.Register(id)
	defer cancel()

	b.Publish(id)
	b.Publish(id)
	b.Publish(uuid.New()) // no waiter at all

	assert.True(t, b.Await(context.Background(), done))
}

func TestMultipleWaitersSameID(t *testing.T) {
	b := New()
	id := uuid.New()

	var wg sync.WaitGroup
	woke := make(chan bool, 3)
	for i := 0; i < 3; i++ {
		done, cancel := b.Register(id)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer cancel()
			woke <- b.Await(context.Background(), done)
		}()
	}

	b.Publish(id)
	wg.Wait()
	close(woke)
	for ok := range woke {
		assert.True(t, ok)
	}
}

func TestRegisterBeforeEnqueueOrdering(t *testing.T) {
	// The publish can race ahead of the await as long as registration
	// happened first; the closed channel still wakes the waiter.
	b := New()
	id := uuid.New()
	done, cancel := b.Register(id)
	defer cancel()

	b.Publish(id)
	assert.True(t, b.Await(context.Background(), done))
}
