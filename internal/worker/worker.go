// Package worker implements the per-item scrape loop.
package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/bulk-article-scraper/internal/clock/system"
	"github.com/JakeFAU/bulk-article-scraper/internal/metrics"
	"github.com/JakeFAU/bulk-article-scraper/internal/progress"
	"github.com/JakeFAU/bulk-article-scraper/internal/scrape"
)

const outcomeClean = "clean"

// Config controls Worker behavior.
type Config struct {
	// RunID tags progress events.
	RunID string
}

// Worker drains a WorkSource, writing each item to exactly one sink.
type Worker struct {
	id        int
	queue     scrape.WorkSource
	fetcher   scrape.Fetcher
	extractor scrape.Extractor
	clean     scrape.RowSink
	errs      scrape.RowSink
	reporter  *Reporter
	events    progress.Emitter
	clock     scrape.Clock
	runID     [16]byte
	logger    *zap.Logger
}

// New constructs a Worker. events and reporter may be nil.
func New(
	id int,
	queue scrape.WorkSource,
	fetcher scrape.Fetcher,
	extractor scrape.Extractor,
	clean scrape.RowSink,
	errs scrape.RowSink,
	reporter *Reporter,
	events progress.Emitter,
	clock scrape.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = system.New()
	}
	return &Worker{
		id:        id,
		queue:     queue,
		fetcher:   fetcher,
		extractor: extractor,
		clean:     clean,
		errs:      errs,
		reporter:  reporter,
		events:    events,
		clock:     clock,
		runID:     progress.ParseRunID(cfg.RunID),
		logger:    logger.With(zap.Int("worker", id)),
	}
}

// Run processes items until the queue is empty or ctx ends. Cancellation
// only stops dequeueing; an item already taken is finished.
func (w *Worker) Run(ctx context.Context) error {
	processed := 0
	for {
		if err := ctx.Err(); err != nil {
			w.logger.Debug("Worker stopping", zap.Int("processed", processed), zap.Error(err))
			return fmt.Errorf("worker %d stopped: %w", w.id, err)
		}
		item, ok := w.queue.TryDequeue()
		if !ok {
			w.logger.Debug("Queue empty, worker exiting", zap.Int("processed", processed))
			return nil
		}
		w.process(context.WithoutCancel(ctx), item)
		processed++
		if err := w.queue.Done(); err != nil {
			w.logger.Error("Queue done failed", zap.Int("index", item.Index), zap.Error(err))
		}
	}
}

func (w *Worker) process(ctx context.Context, item scrape.WorkItem) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	start := w.clock.Now()
	outcome := w.fetcher.Fetch(ctx, item.URL)
	disposition := scrape.Classify(item, outcome)

	if disposition.Extract {
		record, err := w.extract(ctx, item, outcome)
		if err == nil {
			record.URL = item.URL
			if appendErr := w.clean.Append(record.Row()); appendErr != nil {
				w.logger.Error("Clean sink append failed", zap.String("url", item.URL), zap.Error(appendErr))
			}
			metrics.ObserveItem(item.URL, outcomeClean)
			w.emit(progress.StageItemDone, item, outcome.StatusCode, start, "")
			return
		}
		w.logger.Debug("Extraction failed", zap.String("url", item.URL), zap.Error(err))
		disposition = scrape.ExtractionFailure(item)
	} else {
		w.logger.Debug("Fetch failed",
			zap.String("url", item.URL),
			zap.Int("index", item.Index),
			zap.String("reason", disposition.Error.Reason),
			zap.Int("attempts", outcome.Attempts),
			zap.Error(outcome.Err),
		)
	}

	if err := w.errs.Append(disposition.Error.Row()); err != nil {
		w.logger.Error("Error sink append failed", zap.String("url", item.URL), zap.Error(err))
	}
	w.reporter.Println(disposition.Diagnostic)
	metrics.ObserveItem(item.URL, disposition.Error.Reason)
	w.emit(progress.StageItemError, item, outcome.StatusCode, start, disposition.Error.Reason)
}

// extract runs the extractor, turning a panic into an error.
func (w *Worker) extract(ctx context.Context, item scrape.WorkItem, outcome scrape.FetchOutcome) (record scrape.ExtractedRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Extractor panicked", zap.String("url", item.URL), zap.Any("panic", r))
			err = fmt.Errorf("extractor panic: %v", r)
		}
	}()
	pageURL := outcome.FinalURL
	if pageURL == "" {
		pageURL = item.URL
	}
	record, err = w.extractor.Extract(ctx, outcome.Body, pageURL)
	if err != nil {
		return scrape.ExtractedRecord{}, fmt.Errorf("extract %s: %w", item.URL, err)
	}
	return record, nil
}

func (w *Worker) emit(stage progress.Stage, item scrape.WorkItem, status int, start time.Time, note string) {
	if w.events == nil {
		return
	}
	now := w.clock.Now()
	dur := now.Sub(start)
	if dur < 0 {
		dur = 0
	}
	w.events.Emit(progress.Event{
		RunID:       w.runID,
		TS:          now.UTC(),
		Stage:       stage,
		Site:        metrics.SanitizeSite(item.URL),
		URL:         item.URL,
		Index:       item.Index,
		StatusClass: progress.ClassifyStatus(status),
		Dur:         dur,
		Note:        note,
	})
}
