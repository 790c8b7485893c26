// Package main hosts the bulkscrape entrypoint.
//
// Architecture overview:
//   - Input: internal/input reads the first column of a .txt, .csv or .xlsx file into indexed work items. The
//     file's base name names the two output files.
//   - Queue & workers: items are enqueued once into a fixed in-memory queue (internal/queue/memory) which is then
//     closed. A dispatcher starts a fixed pool of workers, sized min(threads, items), that each dequeue until the
//     queue is empty. Every item is processed exactly once.
//   - Fetch pipeline: the Colly-based fetcher performs a GET with the configured user agent, TLS verification and
//     redirect policy. Connection failures and retryable statuses (500, 502, 503, 504) are retried with
//     exponential backoff through cenkalti/backoff. Failures are classified into a closed error taxonomy.
//   - Extraction: go-readability pulls the article title and text; goquery reads tags, meta keywords and the
//     publish date; keywords are ranked from the text and title.
//   - Output: clean rows and error rows are appended to two CSV sinks under a per-sink lock. After the workers
//     finish, rows with empty text are dropped from the clean file and a summary is printed to stdout.
//   - Configuration & plumbing: Viper merges defaults, an optional config file, BULKSCRAPE_* env vars and flags;
//     zap logs to stderr; Prometheus metrics and live progress counters are served by a chi router when
//     --metrics-addr is set.
//
// Quick checklist:
//   - Run: go run . scrape urls.csv -t 50 -m 3 -b 0.5 --output-dir exports
//   - SIGINT stops workers from taking new items; in-flight items finish and the partial results are still
//     reconciled and summarized.
package main

import (
	"github.com/JakeFAU/bulk-article-scraper/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
