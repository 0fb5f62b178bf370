// Package history keeps bounded chronological buffers of recent test
// results. Every executor owns one: the aggregator polls it as the
// pull-side fallback for missed push events, and the HTTP surface serves
// it on GET /history.
package history

import (
	"sync"
	"time"

	"github.com/cruciblehq/crucible/pkg/models"
)

const defaultSize = 1000

// Ring holds the most recent results, oldest first.
type Ring struct {
	mu      sync.RWMutex
	max     int
	results []*models.TestResult
}

// New creates a ring holding at most max results; max <= 0 selects the
// default of 1000.
func New(max int) *Ring {
	if max <= 0 {
		max = defaultSize
	}
	return &Ring{max: max}
}

// Record appends a result, evicting the oldest once the ring is full.
func (h *Ring) Record(r *models.TestResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results = append(h.results, r)
	if len(h.results) > h.max {
		overflow := len(h.results) - h.max
		h.results = append([]*models.TestResult{}, h.results[overflow:]...)
	}
}

// Recent returns up to n results, oldest first. n <= 0 returns everything.
func (h *Ring) Recent(n int) []*models.TestResult {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if n <= 0 || n > len(h.results) {
		n = len(h.results)
	}
	out := make([]*models.TestResult, n)
	copy(out, h.results[len(h.results)-n:])
	return out
}

// Since returns every result created at or after t, oldest first.
func (h *Ring) Since(t time.Time) []*models.TestResult {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*models.TestResult
	for _, r := range h.results {
		if !r.CreatedAt.Before(t) {
			out = append(out, r)
		}
	}
	return out
}

// Len reports the number of buffered results.
func (h *Ring) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.results)
}
