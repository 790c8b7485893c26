package scrape

import (
	"context"
	"time"
)

// Fetcher retrieves a URL and classifies the result. It never returns an
// error; failures are encoded in the outcome.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) FetchOutcome
}

// Extractor turns a fetched HTML body into article fields.
type Extractor interface {
	Extract(ctx context.Context, html []byte, pageURL string) (ExtractedRecord, error)
}

// RowSink appends whole rows atomically.
type RowSink interface {
	Append(row []string) error
}

// WorkSource hands out work items and tracks their completion.
type WorkSource interface {
	TryDequeue() (WorkItem, bool)
	Done() error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
