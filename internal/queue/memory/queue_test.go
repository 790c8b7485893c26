package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/bulk-article-scraper/internal/scrape"
)

func TestQueueEnqueueTryDequeueFIFO(t *testing.T) {
	t.Parallel()

	q := NewQueue(3)
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(context.Background(), scrape.WorkItem{Index: i, URL: "u"}))
	}
	q.Close()
	require.Equal(t, 3, q.Len())

	for i := 0; i < 3; i++ {
		item, ok := q.TryDequeue()
		require.True(t, ok)
		require.Equal(t, i, item.Index)
	}
	_, ok := q.TryDequeue()
	require.False(t, ok)
}

func TestQueueEnqueueErrors(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := q.Enqueue(ctx, scrape.WorkItem{})
	require.EqualError(t, err, "enqueue canceled: context canceled")

	require.NoError(t, q.Enqueue(context.Background(), scrape.WorkItem{URL: "a"}))
	require.ErrorIs(t, q.Enqueue(context.Background(), scrape.WorkItem{URL: "b"}), ErrQueueFull)

	q.Close()
	require.ErrorIs(t, q.Enqueue(context.Background(), scrape.WorkItem{URL: "c"}), ErrQueueClosed)
	// Closing twice should be safe.
	q.Close()
}

func TestQueueDrainRequiresDone(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	require.NoError(t, q.Enqueue(context.Background(), scrape.WorkItem{Index: 0}))
	require.NoError(t, q.Enqueue(context.Background(), scrape.WorkItem{Index: 1}))
	q.Close()

	_, ok := q.TryDequeue()
	require.True(t, ok)
	_, ok = q.TryDequeue()
	require.True(t, ok)
	require.Zero(t, q.Len())
	require.False(t, q.Drained(), "empty is not drained until items are done")
	require.Equal(t, 2, q.Pending())

	require.NoError(t, q.Done())
	require.False(t, q.Drained())
	require.NoError(t, q.Done())
	require.True(t, q.Drained())
	require.NoError(t, q.Wait(context.Background()))

	require.ErrorIs(t, q.Done(), ErrDoneWithoutItem)
}

func TestQueueEmptyIsDrainedOnClose(t *testing.T) {
	t.Parallel()

	q := NewQueue(0)
	require.False(t, q.Drained())
	q.Close()
	require.True(t, q.Drained())
	_, ok := q.TryDequeue()
	require.False(t, ok)
}

func TestQueueWaitCanceled(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	require.NoError(t, q.Enqueue(context.Background(), scrape.WorkItem{}))
	q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := q.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueueConcurrentConsumersSeeEachItemOnce(t *testing.T) {
	t.Parallel()

	const total = 500
	q := NewQueue(total)
	for i := 0; i < total; i++ {
		require.NoError(t, q.Enqueue(context.Background(), scrape.WorkItem{Index: i}))
	}
	q.Close()

	var (
		mu   sync.Mutex
		seen = make(map[int]int, total)
		wg   sync.WaitGroup
	)
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				item, ok := q.TryDequeue()
				if !ok {
					return
				}
				mu.Lock()
				seen[item.Index]++
				mu.Unlock()
				if err := q.Done(); err != nil {
					t.Errorf("Done() error = %v", err)
				}
			}
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, q.Wait(ctx))
	wg.Wait()

	require.Len(t, seen, total)
	for idx, count := range seen {
		require.Equalf(t, 1, count, "item %d dequeued %d times", idx, count)
	}
}
