// Package memory provides the fixed, pre-populated work queue used by a run.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/JakeFAU/bulk-article-scraper/internal/scrape"
)

var (
	// ErrQueueClosed is returned when enqueueing after Close.
	ErrQueueClosed = errors.New("queue closed")
	// ErrQueueFull is returned when enqueueing beyond the queue capacity.
	ErrQueueFull = errors.New("queue full")
	// ErrDoneWithoutItem is returned when Done is called more times than
	// items were enqueued.
	ErrDoneWithoutItem = errors.New("done called without an outstanding item")
)

// Queue is a bounded FIFO of work items. It is filled once, closed, and then
// drained by concurrent workers. Completion is tracked separately from
// removal so callers can wait until every item has been processed.
type Queue struct {
	ch      chan scrape.WorkItem
	closeMu sync.Mutex
	closed  bool

	pending   atomic.Int64
	drained   chan struct{}
	drainOnce sync.Once
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch:      make(chan scrape.WorkItem, capacity),
		drained: make(chan struct{}),
	}
}

// Enqueue adds an item. It must be called before workers start.
func (q *Queue) Enqueue(ctx context.Context, item scrape.WorkItem) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("enqueue canceled: %w", err)
	}
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- item:
		q.pending.Add(1)
		return nil
	default:
		return ErrQueueFull
	}
}

// Close seals the queue. No further items can be enqueued. A queue closed
// with no items is immediately drained.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
	if q.pending.Load() == 0 {
		q.markDrained()
	}
}

// TryDequeue removes the next item without blocking. It reports false once
// the queue is empty.
func (q *Queue) TryDequeue() (scrape.WorkItem, bool) {
	select {
	case item, ok := <-q.ch:
		if !ok {
			return scrape.WorkItem{}, false
		}
		return item, true
	default:
		return scrape.WorkItem{}, false
	}
}

// Done marks one dequeued item as fully processed.
func (q *Queue) Done() error {
	remaining := q.pending.Add(-1)
	if remaining < 0 {
		q.pending.Add(1)
		return ErrDoneWithoutItem
	}
	if remaining == 0 && q.isClosed() {
		q.markDrained()
	}
	return nil
}

// Len returns the number of items still waiting to be dequeued.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Pending returns the number of items enqueued but not yet marked done.
func (q *Queue) Pending() int {
	return int(q.pending.Load())
}

// Drained reports whether the queue is closed and every item is done.
func (q *Queue) Drained() bool {
	select {
	case <-q.drained:
		return true
	default:
		return false
	}
}

// Wait blocks until the queue is drained or ctx ends.
func (q *Queue) Wait(ctx context.Context) error {
	select {
	case <-q.drained:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for drain canceled: %w", ctx.Err())
	}
}

func (q *Queue) isClosed() bool {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	return q.closed
}

func (q *Queue) markDrained() {
	q.drainOnce.Do(func() {
		close(q.drained)
	})
}
