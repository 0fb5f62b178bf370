package quality

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/cruciblehq/crucible/pkg/models"
)

// backend is a raw model call: one prompt in, the model's text out. Each
// provider (gemini, anthropic, openai, static) implements it.
type backend interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// Judge wraps a backend with a per-judge circuit breaker and the verdict
// parser. Assess never returns an error: any failure degrades to the
// fallback score so one broken judge cannot sink a whole assessment.
type Judge struct {
	name    string
	model   string
	backend backend
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration

	// observe, when set, counts each backend call by outcome.
	observe func(backend, outcome string)
}

func newJudge(name, model string, b backend, timeout time.Duration) *Judge {
	settings := gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Judge circuit breaker state changed",
				"judge", name,
				"from", from.String(),
				"to", to.String())
		},
	}
	return &Judge{
		name:    name,
		model:   model,
		backend: b,
		breaker: gobreaker.NewCircuitBreaker(settings),
		timeout: timeout,
	}
}

// Name returns the configured judge name.
func (j *Judge) Name() string { return j.name }

// Model returns the model identifier the judge assesses with.
func (j *Judge) Model() string { return j.model }

// Assess scores one output on one metric. Backend failures, timeouts, an
// open breaker, and unparseable verdicts all map to models.FallbackScore.
func (j *Judge) Assess(ctx context.Context, inputPrompt, aiOutput string, metric models.QualityMetric, contextData map[string]any) models.QualityScore {
	prompt := buildPrompt(metric, inputPrompt, aiOutput, contextData)

	raw, err := j.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, j.timeout)
		defer cancel()
		return j.backend.Complete(callCtx, prompt)
	})
	if err != nil {
		j.count("error")
		slog.Warn("Judge backend call failed",
			"judge", j.name,
			"metric", metric,
			"error", err)
		return models.FallbackScore(fmt.Sprintf("judge %s unavailable: %v", j.name, err))
	}

	score, err := parseVerdict(raw.(string))
	if err != nil {
		j.count("unparseable")
		slog.Warn("Judge returned unparseable verdict",
			"judge", j.name,
			"metric", metric,
			"error", err)
		return models.FallbackScore(fmt.Sprintf("judge %s returned an unparseable verdict: %v", j.name, err))
	}
	j.count("ok")
	return score
}

func (j *Judge) count(outcome string) {
	if j.observe != nil {
		j.observe(j.backend.Name(), outcome)
	}
}

// parseVerdict decodes a judge reply into a QualityScore. The reply must be
// a JSON object carrying numeric score and confidence; both are clamped to
// [0,1]. Markdown code fences around the object are tolerated because most
// models add them despite instructions.
func parseVerdict(reply string) (models.QualityScore, error) {
	body := extractJSONObject(reply)
	if body == "" {
		return models.QualityScore{}, fmt.Errorf("no JSON object in reply")
	}

	var verdict struct {
		Score       *float64 `json:"score"`
		Confidence  *float64 `json:"confidence"`
		Reasoning   string   `json:"reasoning"`
		Evidence    []string `json:"evidence"`
		Suggestions []string `json:"suggestions"`
	}
	if err := json.Unmarshal([]byte(body), &verdict); err != nil {
		return models.QualityScore{}, fmt.Errorf("decoding verdict: %w", err)
	}
	if verdict.Score == nil {
		return models.QualityScore{}, fmt.Errorf("verdict missing score")
	}
	if verdict.Confidence == nil {
		return models.QualityScore{}, fmt.Errorf("verdict missing confidence")
	}

	return models.QualityScore{
		Score:       clamp01(*verdict.Score),
		Confidence:  clamp01(*verdict.Confidence),
		Reasoning:   verdict.Reasoning,
		Evidence:    verdict.Evidence,
		Suggestions: verdict.Suggestions,
	}, nil
}

// extractJSONObject returns the outermost {...} span of the reply, or ""
// when the reply carries no object.
func extractJSONObject(reply string) string {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return ""
	}
	return reply[start : end+1]
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
