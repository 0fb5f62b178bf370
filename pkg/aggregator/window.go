package aggregator

import (
	"sync"
	"time"

	"github.com/cruciblehq/crucible/pkg/models"
)

// resultWindow is the aggregator's bounded sliding window. Results arrive
// from the push path (bus subscription, direct Ingest) and the pull path
// (collector); execution IDs dedupe the overlap between them. Mutations go
// through Add and Cleanup only; readers always get copies.
type resultWindow struct {
	mu      sync.RWMutex
	results []*models.TestResult
	seen    map[string]bool
	max     int
	maxAge  time.Duration
}

func newResultWindow(max int, maxAge time.Duration) *resultWindow {
	if max <= 0 {
		max = 10000
	}
	return &resultWindow{
		seen:   make(map[string]bool),
		max:    max,
		maxAge: maxAge,
	}
}

// Add stores a result and reports whether it was new. Duplicate execution
// IDs and nil results are ignored. When over capacity the oldest insertions
// are evicted.
func (w *resultWindow) Add(r *models.TestResult) bool {
	if r == nil || r.ExecutionID == "" {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.seen[r.ExecutionID] {
		return false
	}
	w.seen[r.ExecutionID] = true
	w.results = append(w.results, r)
	if len(w.results) > w.max {
		for _, old := range w.results[:len(w.results)-w.max] {
			delete(w.seen, old.ExecutionID)
		}
		w.results = w.results[len(w.results)-w.max:]
	}
	return true
}

// Snapshot returns a copy of the stored results in insertion order.
func (w *resultWindow) Snapshot() []*models.TestResult {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*models.TestResult, len(w.results))
	copy(out, w.results)
	return out
}

// Between returns results with created_at inside [start, end]. A zero start
// or end leaves that side unbounded.
func (w *resultWindow) Between(start, end time.Time) []*models.TestResult {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var out []*models.TestResult
	for _, r := range w.results {
		if !start.IsZero() && r.CreatedAt.Before(start) {
			continue
		}
		if !end.IsZero() && r.CreatedAt.After(end) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Cleanup evicts results older than the window age and returns the number
// removed.
func (w *resultWindow) Cleanup(now time.Time) int {
	if w.maxAge <= 0 {
		return 0
	}
	cutoff := now.Add(-w.maxAge)
	w.mu.Lock()
	defer w.mu.Unlock()
	kept := w.results[:0]
	removed := 0
	for _, r := range w.results {
		if r.CreatedAt.Before(cutoff) {
			delete(w.seen, r.ExecutionID)
			removed++
			continue
		}
		kept = append(kept, r)
	}
	for i := len(kept); i < len(w.results); i++ {
		w.results[i] = nil
	}
	w.results = kept
	return removed
}

// Len reports the number of stored results.
func (w *resultWindow) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.results)
}
