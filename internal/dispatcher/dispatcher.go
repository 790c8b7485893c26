// Package dispatcher fans a fixed work queue out to a pool of workers.
package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Runner is one worker loop. It returns nil once the queue is empty.
type Runner interface {
	Run(ctx context.Context) error
}

// Drainer reports queue completion.
type Drainer interface {
	Drained() bool
	Wait(ctx context.Context) error
}

// Dispatcher runs workers against a sealed queue.
type Dispatcher struct {
	queue   Drainer
	workers []Runner
}

// New creates a Dispatcher.
func New(queue Drainer, workers []Runner) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
	}
}

// Run starts every worker and blocks until all have exited. It returns nil
// when the queue drained, or the cancellation cause otherwise.
func (d *Dispatcher) Run(ctx context.Context) error {
	var g errgroup.Group
	for _, w := range d.workers {
		g.Go(func() error {
			return w.Run(ctx)
		})
	}
	workerErr := g.Wait()

	if d.queue.Drained() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("dispatch interrupted: %w", err)
	}
	if workerErr != nil {
		return fmt.Errorf("worker failed: %w", workerErr)
	}
	if len(d.workers) == 0 {
		return errors.New("no workers to drain the queue")
	}
	if err := d.queue.Wait(ctx); err != nil {
		return fmt.Errorf("wait for drain: %w", err)
	}
	return nil
}
