// Package scrape defines the domain types shared by the bulk article
// pipeline: work items, fetch outcomes, extracted records, error records,
// the retry policy, and the run summary.
package scrape
