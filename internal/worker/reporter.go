package worker

import (
	"fmt"
	"io"
	"sync"
)

// Reporter serializes human-readable lines from concurrent workers.
type Reporter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewReporter wraps w. A nil writer discards output.
func NewReporter(w io.Writer) *Reporter {
	if w == nil {
		w = io.Discard
	}
	return &Reporter{w: w}
}

// Println writes line followed by a newline. A nil Reporter is a no-op.
func (r *Reporter) Println(line string) {
	if r == nil || line == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintln(r.w, line)
}
