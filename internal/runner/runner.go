// Package runner coordinates a single bulk scrape run from a list of work
// items to reconciled output files and a summary.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/bulk-article-scraper/internal/clock/system"
	"github.com/JakeFAU/bulk-article-scraper/internal/dispatcher"
	"github.com/JakeFAU/bulk-article-scraper/internal/metrics"
	"github.com/JakeFAU/bulk-article-scraper/internal/progress"
	"github.com/JakeFAU/bulk-article-scraper/internal/queue/memory"
	"github.com/JakeFAU/bulk-article-scraper/internal/scrape"
	csvsink "github.com/JakeFAU/bulk-article-scraper/internal/sink/csv"
	"github.com/JakeFAU/bulk-article-scraper/internal/worker"
)

// State is the lifecycle position of a run.
type State string

// Run states, in order.
const (
	StateInit       State = "init"
	StatePopulated  State = "populated"
	StateRunning    State = "running"
	StateDrained    State = "drained"
	StateReconciled State = "reconciled"
	StateReported   State = "reported"
)

// CompletionBanner precedes the summary line.
const CompletionBanner = "Newspaper scrape is complete."

// Config controls a run.
type Config struct {
	// Name prefixes the output files.
	Name string
	// OutputDir holds the output files.
	OutputDir string
	// Threads is the requested worker count.
	Threads int
}

// Coordinator owns one run.
type Coordinator struct {
	cfg       Config
	fetcher   scrape.Fetcher
	extractor scrape.Extractor
	ids       scrape.IDGenerator
	clock     scrape.Clock
	events    progress.Emitter
	reporter  *worker.Reporter
	logger    *zap.Logger

	mu    sync.Mutex
	state State
}

// New builds a Coordinator. out receives diagnostics and the summary.
func New(
	cfg Config,
	fetcher scrape.Fetcher,
	extractor scrape.Extractor,
	ids scrape.IDGenerator,
	clock scrape.Clock,
	events progress.Emitter,
	out io.Writer,
	logger *zap.Logger,
) (*Coordinator, error) {
	if fetcher == nil || extractor == nil || ids == nil {
		return nil, errors.New("fetcher, extractor and id generator are required")
	}
	if cfg.Name == "" {
		return nil, errors.New("run name is required")
	}
	if cfg.Threads <= 0 {
		return nil, fmt.Errorf("threads must be > 0, got %d", cfg.Threads)
	}
	if clock == nil {
		clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		cfg:       cfg,
		fetcher:   fetcher,
		extractor: extractor,
		ids:       ids,
		clock:     clock,
		events:    events,
		reporter:  worker.NewReporter(out),
		logger:    logger,
		state:     StateInit,
	}, nil
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// EffectiveWorkers caps the worker count at the number of items.
func EffectiveWorkers(requested, total int) int {
	if requested < total {
		return requested
	}
	return total
}

// Run processes items and returns the summary. A ctx already canceled on
// entry returns before any output file is touched. Once the output files are
// open, cancellation skips the remaining items, in-flight items finish, and
// the partial run is still reconciled and reported alongside the
// cancellation error.
func (c *Coordinator) Run(ctx context.Context, items []scrape.WorkItem) (scrape.RunSummary, error) {
	if err := ctx.Err(); err != nil {
		return scrape.RunSummary{}, fmt.Errorf("run canceled before start: %w", err)
	}
	runID, err := c.ids.NewID()
	if err != nil {
		return scrape.RunSummary{}, fmt.Errorf("generate run id: %w", err)
	}
	logger := c.logger.With(zap.String("run_id", runID))
	start := c.clock.Now()
	total := len(items)

	cleanPath, errPath := scrape.OutputPaths(c.cfg.OutputDir, c.cfg.Name)
	clean, err := csvsink.Open(cleanPath, scrape.CleanHeader)
	if err != nil {
		return scrape.RunSummary{}, fmt.Errorf("open clean sink: %w", err)
	}
	errs, err := csvsink.Open(errPath, scrape.ErrorHeader)
	if err != nil {
		_ = clean.Close()
		return scrape.RunSummary{}, fmt.Errorf("open error sink: %w", err)
	}
	c.emit(runID, progress.StageRunStart, start, fmt.Sprintf("total=%d", total))

	// The sinks are truncated now; population must finish so the run reaches
	// reconcile and report even if ctx ends meanwhile.
	populateCtx := context.WithoutCancel(ctx)
	queue := memory.NewQueue(total)
	for _, item := range items {
		if err := queue.Enqueue(populateCtx, item); err != nil {
			_ = clean.Close()
			_ = errs.Close()
			return scrape.RunSummary{}, fmt.Errorf("populate queue: %w", err)
		}
	}
	queue.Close()
	c.transition(logger, StatePopulated, zap.Int("total", total))

	count := EffectiveWorkers(c.cfg.Threads, total)
	workers := make([]dispatcher.Runner, 0, count)
	for i := 0; i < count; i++ {
		workers = append(workers, worker.New(
			i, queue, c.fetcher, c.extractor, clean, errs,
			c.reporter, c.events, c.clock, worker.Config{RunID: runID}, logger,
		))
	}
	c.transition(logger, StateRunning, zap.Int("workers", count))

	runErr := dispatcher.New(queue, workers).Run(ctx)
	if runErr != nil {
		logger.Warn("Run interrupted", zap.Int("skipped", queue.Len()), zap.Error(runErr))
	} else {
		c.transition(logger, StateDrained)
	}

	if err := errors.Join(clean.Close(), errs.Close()); err != nil {
		return scrape.RunSummary{}, fmt.Errorf("close sinks: %w", err)
	}
	kept, err := csvsink.Reconcile(cleanPath, scrape.TextColumn)
	if err != nil {
		return scrape.RunSummary{}, fmt.Errorf("reconcile %s: %w", cleanPath, err)
	}
	c.transition(logger, StateReconciled,
		zap.Int("written", clean.Rows()),
		zap.Int("kept", kept),
		zap.Int("dropped_empty", clean.Rows()-kept),
	)

	end := c.clock.Now()
	summary := scrape.NewRunSummary(runID, total, kept, errs.Rows(), end.Sub(start))
	c.reporter.Println("\n" + CompletionBanner + "\n\n" + summary.String())
	metrics.ObserveRun(summary.SuccessRate, summary.Elapsed)
	c.emit(runID, progress.StageRunDone, end, summary.String())
	c.transition(logger, StateReported,
		zap.Int("successful", summary.SuccessfulCount),
		zap.Int("errors", summary.ErrorCount),
		zap.Float64("success_rate", summary.SuccessRate),
		zap.Duration("elapsed", summary.Elapsed),
		zap.String("clean_path", cleanPath),
		zap.String("error_path", errPath),
	)
	return summary, runErr
}

func (c *Coordinator) transition(logger *zap.Logger, next State, fields ...zap.Field) {
	c.mu.Lock()
	prev := c.state
	c.state = next
	c.mu.Unlock()
	logger.Info("Run state changed",
		append([]zap.Field{zap.String("from", string(prev)), zap.String("to", string(next))}, fields...)...)
}

func (c *Coordinator) emit(runID string, stage progress.Stage, ts time.Time, note string) {
	if c.events == nil {
		return
	}
	c.events.Emit(progress.Event{
		RunID: progress.ParseRunID(runID),
		TS:    ts.UTC(),
		Stage: stage,
		Note:  note,
	})
}
