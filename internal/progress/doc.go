// Package progress carries run and item events from workers to pluggable
// sinks. Events are batched on a background goroutine so emitters never
// block on slow consumers.
package progress
