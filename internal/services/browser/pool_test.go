package browser

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestPagePool_ReusesIdlePages(t *testing.T) {
	b := &fakeBrowser{}
	pool := NewPagePool(b, 3, arbor.NewLogger())

	p1, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	pool.Release(p1)

	p2, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	assert.Same(t, p1, p2, "idle page should be reused")
	assert.Equal(t, 1, b.pageCount())
}

func TestPagePool_WaitsAtCapacity(t *testing.T) {
	b := &fakeBrowser{}
	pool := NewPagePool(b, 1, arbor.NewLogger())

	p1, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	acquired := make(chan Page, 1)
	go func() {
		p, err := pool.Acquire(context.Background())
		require.NoError(t, err)
		acquired <- p
	}()

	select {
	case <-acquired:
		t.Fatal("acquire should block at capacity")
	case <-time.After(50 * time.Millisecond):
	}

	pool.Release(p1)

	select {
	case p := <-acquired:
		assert.Same(t, p1, p, "released page should be handed to the waiter")
	case <-time.After(time.Second):
		t.Fatal("waiter never received a page")
	}

	assert.Equal(t, 1, b.pageCount())
}

func TestPagePool_ReclaimsClosedPageCapacity(t *testing.T) {
	b := &fakeBrowser{}
	pool := NewPagePool(b, 1, arbor.NewLogger())

	p1, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	// Page dies while held; releasing it must free the slot.
	require.NoError(t, p1.Close())
	pool.Release(p1)

	p2, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, p1, p2)
	assert.Equal(t, 2, b.pageCount())
}

func TestPagePool_CloseRejectsWaiters(t *testing.T) {
	b := &fakeBrowser{}
	pool := NewPagePool(b, 1, arbor.NewLogger())

	_, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := pool.Acquire(context.Background())
		errCh <- err
	}()

	// Let the waiter enqueue.
	for {
		_, _, waiting := pool.Stats()
		if waiting == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	require.NoError(t, pool.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrPoolClosed)
	case <-time.After(time.Second):
		t.Fatal("waiter was not rejected on close")
	}

	assert.True(t, b.closed, "underlying browser should be closed")

	_, err = pool.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestPagePool_PageCreationFailurePropagates(t *testing.T) {
	b := &fakeBrowser{pageErr: assert.AnError}
	pool := NewPagePool(b, 2, arbor.NewLogger())

	_, err := pool.Acquire(context.Background())
	assert.ErrorIs(t, err, assert.AnError)

	// The failed slot must be reclaimable.
	created, _, _ := pool.Stats()
	assert.Equal(t, 0, created)
}

func TestPagePool_ConcurrentAcquireRespectsCapacity(t *testing.T) {
	b := &fakeBrowser{}
	const capacity = 4
	pool := NewPagePool(b, capacity, arbor.NewLogger())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := pool.Acquire(context.Background())
			if err != nil {
				t.Error(err)
				return
			}
			time.Sleep(2 * time.Millisecond)
			pool.Release(p)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, b.pageCount(), capacity)
}
