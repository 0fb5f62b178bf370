package quality

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cruciblehq/crucible/pkg/models"
)

// minCacheableConfidence keeps fallback-dominated assessments out of the
// cache so a transient judge outage is not served for a full TTL.
const minCacheableConfidence = 0.2

type cacheEntry struct {
	result    models.QualityAssessmentResult
	expiresAt time.Time
}

// assessmentCache holds completed assessments keyed by content hash, with a
// TTL and an entry bound. Eviction drops the oldest insertion first.
type assessmentCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	max     int
	entries map[string]cacheEntry
	order   []string
}

func newAssessmentCache(ttl time.Duration, maxEntries int) *assessmentCache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &assessmentCache{
		ttl:     ttl,
		max:     maxEntries,
		entries: make(map[string]cacheEntry),
	}
}

// Get returns a copy of the cached assessment flagged as a cache hit, or
// false when the key is absent or expired.
func (c *assessmentCache) Get(key string) (*models.QualityAssessmentResult, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	result := entry.result
	result.CacheHit = true
	return &result, true
}

// Put stores a completed assessment unless its confidence marks it as
// fallback-dominated.
func (c *assessmentCache) Put(key string, result *models.QualityAssessmentResult) {
	if result.OverallConfidence < minCacheableConfidence {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = cacheEntry{result: *result, expiresAt: time.Now().Add(c.ttl)}

	for len(c.entries) > c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

// Len reports the number of stored entries, expired ones included.
func (c *assessmentCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// cacheKey derives the content-addressed key for one assessment. Metric and
// judge order do not matter; the prompt-set hash ties entries to the rubric
// wording they were produced under.
func cacheKey(inputPrompt, aiOutput string, metrics []models.QualityMetric, strategy models.JudgeStrategy, judges []string, promptHash string) string {
	sortedMetrics := make([]string, len(metrics))
	for i, m := range metrics {
		sortedMetrics[i] = string(m)
	}
	sort.Strings(sortedMetrics)

	sortedJudges := append([]string(nil), judges...)
	sort.Strings(sortedJudges)

	h := sha256.New()
	for _, part := range []string{
		inputPrompt,
		aiOutput,
		strings.Join(sortedMetrics, ","),
		string(strategy),
		strings.Join(sortedJudges, ","),
		promptHash,
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
