package scrape

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"
)

// CleanHeader is the fixed column order of the clean sink.
var CleanHeader = []string{"text", "title", "keywords", "url", "tags", "meta_tags", "date", "time"}

// ErrorHeader is the fixed column order of the error sink.
var ErrorHeader = []string{"url", "error"}

// TextColumn names the clean sink column used during reconciliation.
const TextColumn = "text"

// WorkItem is one URL to process. Index preserves the input position and is
// only used for diagnostics.
type WorkItem struct {
	Index int
	URL   string
}

// ExtractedRecord holds the article fields pulled from a fetched page.
type ExtractedRecord struct {
	Text         string
	Title        string
	Keywords     []string
	URL          string
	Tags         []string
	MetaKeywords []string
	Date         string
	Time         string
}

// Row renders the record in CleanHeader order.
func (r ExtractedRecord) Row() []string {
	return []string{
		r.Text,
		r.Title,
		encodeList(r.Keywords),
		r.URL,
		encodeList(r.Tags),
		encodeList(r.MetaKeywords),
		r.Date,
		r.Time,
	}
}

// ErrorRecord is a URL paired with the reason it failed.
type ErrorRecord struct {
	URL    string
	Reason string
}

// Row renders the record in ErrorHeader order.
func (r ErrorRecord) Row() []string {
	return []string{r.URL, r.Reason}
}

// RunSummary reports the outcome of a whole run.
type RunSummary struct {
	RunID           string
	TotalURLs       int
	SuccessfulCount int
	ErrorCount      int
	SuccessRate     float64
	Elapsed         time.Duration
}

// NewRunSummary computes the success rate, defining it as 0 for an empty run.
func NewRunSummary(runID string, total, successful, failed int, elapsed time.Duration) RunSummary {
	rate := 0.0
	if total > 0 {
		rate = float64(successful) / float64(total)
	}
	return RunSummary{
		RunID:           runID,
		TotalURLs:       total,
		SuccessfulCount: successful,
		ErrorCount:      failed,
		SuccessRate:     rate,
		Elapsed:         elapsed,
	}
}

// String renders the human-readable summary line.
func (s RunSummary) String() string {
	return fmt.Sprintf(
		"A total of %d out of %d articles have been collected (%.2f success rate) in %.2f seconds.",
		s.SuccessfulCount,
		s.TotalURLs,
		s.SuccessRate,
		s.Elapsed.Seconds(),
	)
}

// OutputPaths returns the clean and error file paths for an input named name.
func OutputPaths(dir, name string) (clean string, errs string) {
	return filepath.Join(dir, name+"-contents.csv"), filepath.Join(dir, name+"-error.csv")
}

func encodeList(values []string) string {
	if values == nil {
		values = []string{}
	}
	payload, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(payload)
}
