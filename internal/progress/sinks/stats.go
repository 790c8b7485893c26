package sinks

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/bulk-article-scraper/internal/progress"
)

// Snapshot is a point-in-time view of a run's progress.
type Snapshot struct {
	RunID     string         `json:"run_id,omitempty"`
	StartedAt *time.Time     `json:"started_at,omitempty"`
	DoneAt    *time.Time     `json:"done_at,omitempty"`
	Clean     int            `json:"clean"`
	Errors    int            `json:"errors"`
	ByReason  map[string]int `json:"by_reason"`
	ByStatus  map[string]int `json:"by_status"`
	Summary   string         `json:"summary,omitempty"`
	LastItem  *ItemView      `json:"last_item,omitempty"`
}

// ItemView describes the most recently finished item.
type ItemView struct {
	URL    string `json:"url"`
	Index  int    `json:"index"`
	Stage  string `json:"stage"`
	Reason string `json:"reason,omitempty"`
}

// StatsSink aggregates events into counters for the status endpoint. Only
// the most recent run is kept.
type StatsSink struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewStatsSink creates an empty StatsSink.
func NewStatsSink() *StatsSink {
	return &StatsSink{snap: emptySnapshot()}
}

// Consume folds the batch into the counters.
func (s *StatsSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		runID := evt.RunUUID().String()
		if evt.Stage == progress.StageRunStart || s.snap.RunID != runID {
			s.snap = emptySnapshot()
			s.snap.RunID = runID
		}
		ts := evt.TS
		switch evt.Stage {
		case progress.StageRunStart:
			s.snap.StartedAt = &ts
		case progress.StageRunDone:
			s.snap.DoneAt = &ts
			s.snap.Summary = evt.Note
		case progress.StageItemDone:
			s.snap.Clean++
			s.record(evt)
		case progress.StageItemError:
			s.snap.Errors++
			s.snap.ByReason[evt.Note]++
			s.record(evt)
		}
	}
	return nil
}

func (s *StatsSink) record(evt progress.Event) {
	s.snap.ByStatus[string(evt.StatusClass)]++
	s.snap.LastItem = &ItemView{
		URL:    evt.URL,
		Index:  evt.Index,
		Stage:  string(evt.Stage),
		Reason: evt.Note,
	}
}

// Snapshot returns a copy of the current counters.
func (s *StatsSink) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.snap
	out.ByReason = copyCounts(s.snap.ByReason)
	out.ByStatus = copyCounts(s.snap.ByStatus)
	if s.snap.LastItem != nil {
		last := *s.snap.LastItem
		out.LastItem = &last
	}
	return out
}

// Close implements the Sink interface; it performs no action.
func (s *StatsSink) Close(context.Context) error {
	return nil
}

func emptySnapshot() Snapshot {
	return Snapshot{ByReason: map[string]int{}, ByStatus: map[string]int{}}
}

func copyCounts(src map[string]int) map[string]int {
	dst := make(map[string]int, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
