package models

import (
	"sync"
	"time"
)

// ResultHistory is a bounded, thread-safe ring of recent TestResults kept by
// each executor. It backs the executors' history endpoints and the
// aggregator's pull-fallback collection. Readers get copies; the ring is
// never exposed.
type ResultHistory struct {
	mu      sync.RWMutex
	results []*TestResult
	max     int
}

// NewResultHistory creates a history bounded to max entries. A non-positive
// max falls back to 500.
func NewResultHistory(max int) *ResultHistory {
	if max <= 0 {
		max = 500
	}
	return &ResultHistory{max: max}
}

// Add appends a result, evicting the oldest entry when over capacity.
func (h *ResultHistory) Add(r *TestResult) {
	if r == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results = append(h.results, r)
	if len(h.results) > h.max {
		h.results = h.results[len(h.results)-h.max:]
	}
}

// Snapshot returns a copy of the current entries, oldest first.
func (h *ResultHistory) Snapshot() []*TestResult {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*TestResult, len(h.results))
	copy(out, h.results)
	return out
}

// Since returns entries created at or after the given time, oldest first.
// The zero time returns everything.
func (h *ResultHistory) Since(t time.Time) []*TestResult {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*TestResult
	for _, r := range h.results {
		if t.IsZero() || !r.CreatedAt.Before(t) {
			out = append(out, r)
		}
	}
	return out
}

// Len reports the current number of entries.
func (h *ResultHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.results)
}
