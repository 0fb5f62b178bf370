package quality

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cruciblehq/crucible/pkg/models"
)

// scriptedBackend is the in-process judge backend used across the package
// tests. It resolves the metric from the rendered prompt and returns the
// canned verdict for it.
type scriptedBackend struct {
	mu       sync.Mutex
	verdicts map[models.QualityMetric]string
	err      error
	fn       func(prompt string) (string, error)
	calls    map[models.QualityMetric]int
	total    int
}

func newScriptedBackend() *scriptedBackend {
	return &scriptedBackend{
		verdicts: make(map[models.QualityMetric]string),
		calls:    make(map[models.QualityMetric]int),
	}
}

func (b *scriptedBackend) Name() string { return "scripted" }

func (b *scriptedBackend) Complete(_ context.Context, prompt string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.total++

	if b.fn != nil {
		return b.fn(prompt)
	}
	for _, metric := range models.AllQualityMetrics {
		if !strings.Contains(prompt, "dimension: "+string(metric)+".") {
			continue
		}
		b.calls[metric]++
		if b.err != nil {
			return "", b.err
		}
		if v, ok := b.verdicts[metric]; ok {
			return v, nil
		}
		return verdictJSON(0.8, 0.9, "canned"), nil
	}
	return "", fmt.Errorf("prompt names no metric")
}

func (b *scriptedBackend) totalCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

func (b *scriptedBackend) callsFor(metric models.QualityMetric) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[metric]
}

func verdictJSON(score, confidence float64, reasoning string) string {
	return fmt.Sprintf(`{"score": %g, "confidence": %g, "reasoning": %q, "evidence": [], "suggestions": []}`,
		score, confidence, reasoning)
}

func TestParseVerdict_ValidObject(t *testing.T) {
	score, err := parseVerdict(`{"score": 0.85, "confidence": 0.9, "reasoning": "solid", "evidence": ["q1"], "suggestions": ["tighten intro"]}`)
	require.NoError(t, err)
	assert.InDelta(t, 0.85, score.Score, 1e-9)
	assert.InDelta(t, 0.9, score.Confidence, 1e-9)
	assert.Equal(t, "solid", score.Reasoning)
	assert.Equal(t, []string{"q1"}, score.Evidence)
	assert.Equal(t, []string{"tighten intro"}, score.Suggestions)
}

func TestParseVerdict_ToleratesCodeFences(t *testing.T) {
	reply := "```json\n{\"score\": 0.7, \"confidence\": 0.8, \"reasoning\": \"ok\"}\n```"
	score, err := parseVerdict(reply)
	require.NoError(t, err)
	assert.InDelta(t, 0.7, score.Score, 1e-9)
}

func TestParseVerdict_ClampsOutOfRange(t *testing.T) {
	score, err := parseVerdict(`{"score": 1.4, "confidence": -0.2}`)
	require.NoError(t, err)
	assert.Equal(t, 1.0, score.Score)
	assert.Equal(t, 0.0, score.Confidence)
}

func TestParseVerdict_Rejections(t *testing.T) {
	cases := []struct {
		name  string
		reply string
		want  string
	}{
		{"no object", "the output looks fine to me", "no JSON object"},
		{"missing score", `{"confidence": 0.9}`, "missing score"},
		{"missing confidence", `{"score": 0.9}`, "missing confidence"},
		{"malformed", `{"score": }`, "decoding verdict"},
		{"non-numeric score", `{"score": "high", "confidence": 0.9}`, "decoding verdict"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseVerdict(tc.reply)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestJudgeAssess_Success(t *testing.T) {
	backend := newScriptedBackend()
	backend.verdicts[models.MetricSafety] = verdictJSON(0.95, 0.9, "no unsafe content")
	judge := newJudge("alpha", "model-a", backend, time.Second)

	score := judge.Assess(context.Background(), "prompt", "output", models.MetricSafety, nil)
	assert.InDelta(t, 0.95, score.Score, 1e-9)
	assert.Equal(t, "no unsafe content", score.Reasoning)
	assert.Equal(t, 1, backend.callsFor(models.MetricSafety))
}

func TestJudgeAssess_BackendErrorFallsBack(t *testing.T) {
	backend := newScriptedBackend()
	backend.err = fmt.Errorf("connection refused")
	judge := newJudge("alpha", "model-a", backend, time.Second)

	score := judge.Assess(context.Background(), "prompt", "output", models.MetricAccuracy, nil)
	assert.InDelta(t, 0.5, score.Score, 1e-9)
	assert.InDelta(t, models.FallbackConfidence, score.Confidence, 1e-9)
	assert.Contains(t, score.Reasoning, "alpha unavailable")
	assert.Contains(t, score.Reasoning, "connection refused")
}

func TestJudgeAssess_UnparseableVerdictFallsBack(t *testing.T) {
	backend := newScriptedBackend()
	backend.verdicts[models.MetricCoherence] = "I would rate this rather highly."
	judge := newJudge("alpha", "model-a", backend, time.Second)

	score := judge.Assess(context.Background(), "prompt", "output", models.MetricCoherence, nil)
	assert.InDelta(t, 0.5, score.Score, 1e-9)
	assert.Contains(t, score.Reasoning, "unparseable verdict")
}

func TestJudgeAssess_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	backend := newScriptedBackend()
	backend.err = fmt.Errorf("boom")
	judge := newJudge("alpha", "model-a", backend, time.Second)

	for i := 0; i < 5; i++ {
		judge.Assess(context.Background(), "prompt", "output", models.MetricSafety, nil)
	}
	require.Equal(t, 5, backend.totalCalls())

	// Open breaker short-circuits: the backend is not called again.
	score := judge.Assess(context.Background(), "prompt", "output", models.MetricSafety, nil)
	assert.Equal(t, 5, backend.totalCalls())
	assert.InDelta(t, models.FallbackConfidence, score.Confidence, 1e-9)
	assert.Contains(t, score.Reasoning, "circuit breaker is open")
}

func TestJudgeAssess_ObserverCountsOutcomes(t *testing.T) {
	backend := newScriptedBackend()
	backend.verdicts[models.MetricSafety] = verdictJSON(0.9, 0.9, "fine")
	backend.verdicts[models.MetricCoherence] = "I would rate this rather highly."
	judge := newJudge("alpha", "model-a", backend, time.Second)

	counts := make(map[string]int)
	judge.observe = func(backend, outcome string) {
		counts[backend+"/"+outcome]++
	}

	judge.Assess(context.Background(), "prompt", "output", models.MetricSafety, nil)
	judge.Assess(context.Background(), "prompt", "output", models.MetricCoherence, nil)
	backend.err = fmt.Errorf("boom")
	judge.Assess(context.Background(), "prompt", "output", models.MetricAccuracy, nil)

	assert.Equal(t, 1, counts["scripted/ok"])
	assert.Equal(t, 1, counts["scripted/unparseable"])
	assert.Equal(t, 1, counts["scripted/error"])
}

func TestInstrumentJudges_InstallsObserverOnEveryJudge(t *testing.T) {
	svc := setupTestService(t, map[string]*scriptedBackend{
		"alpha": newScriptedBackend(),
		"beta":  newScriptedBackend(),
	})

	seen := make(map[string]int)
	svc.InstrumentJudges(func(backend, outcome string) { seen[outcome]++ })

	for _, j := range svc.judges {
		j.Assess(context.Background(), "prompt", "output", models.MetricSafety, nil)
	}
	assert.Equal(t, 2, seen["ok"])
}
