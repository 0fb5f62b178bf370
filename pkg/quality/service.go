// Package quality scores AI output with LLM-as-judge assessments. Configured
// judges run behind per-judge circuit breakers; five aggregation strategies
// turn their verdicts into bounded [0,1] scores, and a content-addressed TTL
// cache keeps repeat assessments cheap. Judge failures degrade to low-
// confidence fallback scores instead of failing the assessment.
package quality

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cruciblehq/crucible/pkg/config"
	"github.com/cruciblehq/crucible/pkg/history"
	"github.com/cruciblehq/crucible/pkg/models"
)

const historySize = 1000

// ErrNoJudges means the service was constructed with an empty judge registry.
// That is a configuration error: a deployment hosting the quality executor
// must configure at least one judge.
var ErrNoJudges = errors.New("no judges configured")

// DefaultMetricWeights is the built-in weighting for overall_score. Safety
// carries the most weight; request weights override per metric.
var DefaultMetricWeights = map[models.QualityMetric]float64{
	models.MetricSafety:      0.25,
	models.MetricAccuracy:    0.20,
	models.MetricCoherence:   0.15,
	models.MetricRelevance:   0.15,
	models.MetricConsistency: 0.15,
	models.MetricCreativity:  0.10,
}

// Service is the AI quality executor.
type Service struct {
	cfg        *config.AIQualityConfig
	judges     map[string]*Judge
	order      []string
	cache      *assessmentCache
	history    *history.Ring
	promptHash string
}

// NewService builds the executor from configuration, constructing one backend
// client per configured judge. Returns ErrNoJudges when the registry is empty.
func NewService(cfg *config.AIQualityConfig) (*Service, error) {
	if len(cfg.Judges) == 0 {
		return nil, ErrNoJudges
	}

	judges := make(map[string]*Judge, len(cfg.Judges))
	for name, jc := range cfg.Judges {
		b, err := newBackend(jc, cfg.RequestTimeout)
		if err != nil {
			return nil, fmt.Errorf("judge %s: %w", name, err)
		}
		judges[name] = newJudge(name, jc.Model, b, cfg.RequestTimeout)
	}
	return newServiceWithJudges(cfg, judges), nil
}

// newServiceWithJudges wires pre-built judges; tests use it to install fake
// backends.
func newServiceWithJudges(cfg *config.AIQualityConfig, judges map[string]*Judge) *Service {
	order := make([]string, 0, len(judges))
	for name := range judges {
		order = append(order, name)
	}
	sort.Strings(order)

	s := &Service{
		cfg:        cfg,
		judges:     judges,
		order:      order,
		cache:      newAssessmentCache(time.Duration(cfg.CacheTTLSeconds)*time.Second, cfg.CacheMaxEntries),
		history:    history.New(historySize),
		promptHash: promptSetHash(),
	}
	slog.Info("AI quality service initialized",
		"judges", order,
		"default_strategy", cfg.DefaultStrategy,
		"cache_ttl_seconds", cfg.CacheTTLSeconds)
	return s
}

// History exposes the rolling result buffer for /history and the
// aggregator's pull path.
func (s *Service) History() *history.Ring {
	return s.history
}

// Judges returns the configured judge names in sorted order.
func (s *Service) Judges() []string {
	return append([]string(nil), s.order...)
}

// InstrumentJudges installs a backend-call observer on every judge. Call
// during wiring, before the service starts serving assessments.
func (s *Service) InstrumentJudges(observe func(backend, outcome string)) {
	for _, j := range s.judges {
		j.observe = observe
	}
}

// Assess runs one assessment over every configured judge with the requested
// (or default) strategy.
func (s *Service) Assess(ctx context.Context, req *models.QualityAssessmentRequest) (*models.QualityAssessmentResult, error) {
	if req == nil {
		return nil, models.NewValidationError("request", "must not be empty")
	}
	if strings.TrimSpace(req.InputPrompt) == "" {
		return nil, models.NewValidationError("input_prompt", "must not be empty")
	}
	if strings.TrimSpace(req.AIOutput) == "" {
		return nil, models.NewValidationError("ai_output", "must not be empty")
	}
	metrics, err := normalizeMetrics(req.Metrics)
	if err != nil {
		return nil, err
	}
	strategy, err := s.resolveStrategy(req.Strategy)
	if err != nil {
		return nil, err
	}
	return s.assess(ctx, s.order, req, metrics, strategy, req.Weights), nil
}

// Compare scores every candidate output independently and ranks them. Ties
// resolve to the lower index.
func (s *Service) Compare(ctx context.Context, req *models.ComparisonRequest) (*models.ComparisonResult, error) {
	if req == nil {
		return nil, models.NewValidationError("request", "must not be empty")
	}
	if strings.TrimSpace(req.InputPrompt) == "" {
		return nil, models.NewValidationError("input_prompt", "must not be empty")
	}
	if len(req.Outputs) < 2 {
		return nil, models.NewValidationError("outputs", "needs at least two outputs to compare")
	}
	for i, output := range req.Outputs {
		if strings.TrimSpace(output) == "" {
			return nil, models.NewValidationError("outputs", fmt.Sprintf("output %d must not be empty", i))
		}
	}
	metrics, err := normalizeMetrics(req.Metrics)
	if err != nil {
		return nil, err
	}

	entries := make([]models.ComparisonEntry, len(req.Outputs))
	best := 0
	for i, output := range req.Outputs {
		one := &models.QualityAssessmentRequest{
			InputPrompt: req.InputPrompt,
			AIOutput:    output,
			ContextData: req.ContextData,
		}
		result := s.assess(ctx, s.order, one, metrics, models.StrategyComparative, nil)
		entries[i] = models.ComparisonEntry{Index: i, OverallScore: result.OverallScore, Result: result}
		if result.OverallScore > entries[best].OverallScore {
			best = i
		}
	}
	return &models.ComparisonResult{Entries: entries, Best: best}, nil
}

// ExecuteAIQualityTest runs an AI quality scenario and wraps the assessment
// into a TestResult. The judged output comes from context metadata under
// "ai_output"; the error return is reserved for invalid input.
func (s *Service) ExecuteAIQualityTest(ctx context.Context, sc *models.TestScenario, tc models.TestContext) (*models.TestResult, error) {
	spec := sc.AIQualitySpec
	if spec == nil {
		return nil, models.NewValidationError("ai_quality_spec", "required for AI quality scenarios")
	}
	if strings.TrimSpace(spec.InputPrompt) == "" {
		return nil, models.NewValidationError("ai_quality_spec.input_prompt", "must not be empty")
	}
	output := metadataString(tc, "ai_output")
	if output == "" {
		return nil, models.NewValidationError("ai_output", "context metadata must carry the output under assessment")
	}
	metrics, err := normalizeMetrics(spec.QualityMetrics)
	if err != nil {
		return nil, err
	}
	strategy, err := s.resolveStrategy(spec.Strategy)
	if err != nil {
		return nil, err
	}
	judgeNames, err := s.judgeSubset(spec.AssessmentModels)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	executionID := newExecutionID()
	req := &models.QualityAssessmentRequest{
		InputPrompt: spec.InputPrompt,
		AIOutput:    output,
		ContextData: assessmentContext(spec),
	}
	assessment := s.assess(ctx, judgeNames, req, metrics, strategy, nil)

	passed, recommendations := evaluateAssessment(sc, spec, assessment)
	result := &models.TestResult{
		ExecutionID:      executionID,
		ScenarioID:       sc.ID,
		TestType:         models.TestTypeAIQuality,
		Passed:           passed,
		Score:            assessment.OverallScore,
		DurationMS:       time.Since(start).Milliseconds(),
		AIQualityResults: assessment,
		QualityScores:    assessment.MetricScores(),
		Recommendations:  recommendations,
		CreatedAt:        time.Now().UTC(),
	}
	s.history.Record(result)

	slog.Info("AI quality test finished",
		"execution_id", executionID,
		"scenario_id", sc.ID,
		"strategy", strategy,
		"overall_score", assessment.OverallScore,
		"passed", passed,
		"cache_hit", assessment.CacheHit)
	return result, nil
}

// assess is the shared strategy dispatcher. Inputs are validated and
// canonicalized by the callers; it never fails, because every judge failure
// is already absorbed as a fallback score.
func (s *Service) assess(ctx context.Context, judgeNames []string, req *models.QualityAssessmentRequest, metrics []models.QualityMetric, strategy models.JudgeStrategy, weights map[models.QualityMetric]float64) *models.QualityAssessmentResult {
	key := cacheKey(req.InputPrompt, req.AIOutput, metrics, strategy, judgeNames, s.promptHash)
	if cached, ok := s.cache.Get(key); ok {
		// Per-metric scores are weight-independent; only the overall needs
		// recomputing under the caller's weights.
		finalize(cached, metrics, weights)
		slog.Debug("Assessment served from cache", "strategy", strategy, "metrics", len(metrics))
		return cached
	}

	start := time.Now()
	result := &models.QualityAssessmentResult{
		AssessmentID: uuid.New().String(),
		Strategy:     strategy,
		Scores:       make(map[models.QualityMetric]models.QualityScore, len(metrics)),
		CreatedAt:    time.Now().UTC(),
	}

	switch strategy {
	case models.StrategySingleJudge:
		s.assessSingle(ctx, judgeNames, req, metrics, result)
	case models.StrategyMultiJudge:
		s.assessMulti(ctx, judgeNames, req, metrics, result)
	case models.StrategyEnsemble, models.StrategyComparative:
		s.assessEnsemble(ctx, judgeNames, req, metrics, result)
	case models.StrategySpecialized:
		s.assessSpecialized(ctx, judgeNames, req, metrics, result)
	}

	finalize(result, metrics, weights)
	result.DurationMS = time.Since(start).Milliseconds()
	s.cache.Put(key, result)
	return result
}

// assessSingle sends every metric to the primary judge sequentially.
func (s *Service) assessSingle(ctx context.Context, judgeNames []string, req *models.QualityAssessmentRequest, metrics []models.QualityMetric, result *models.QualityAssessmentResult) {
	judge := s.judges[primaryName(judgeNames)]
	result.Models = []string{judge.Model()}
	for _, metric := range metrics {
		result.Scores[metric] = judge.Assess(ctx, req.InputPrompt, req.AIOutput, metric, req.ContextData)
	}
}

// assessMulti collects every judge x metric verdict and averages per metric.
// Individual verdicts survive in the result.
func (s *Service) assessMulti(ctx context.Context, judgeNames []string, req *models.QualityAssessmentRequest, metrics []models.QualityMetric, result *models.QualityAssessmentResult) {
	verdicts := s.collectVerdicts(ctx, judgeNames, req, metrics)
	result.IndividualVerdicts = verdicts
	result.Models = s.modelsOf(judgeNames)
	for _, metric := range metrics {
		result.Scores[metric] = meanVerdict(verdictsFor(verdicts, metric))
	}
}

// assessEnsemble combines per-metric verdicts into a confidence-weighted
// consensus. COMPARATIVE scoring reuses it: each candidate output is scored
// independently by the full ensemble.
func (s *Service) assessEnsemble(ctx context.Context, judgeNames []string, req *models.QualityAssessmentRequest, metrics []models.QualityMetric, result *models.QualityAssessmentResult) {
	verdicts := s.collectVerdicts(ctx, judgeNames, req, metrics)
	result.IndividualVerdicts = verdicts
	result.Models = s.modelsOf(judgeNames)
	for _, metric := range metrics {
		result.Scores[metric] = ensembleScore(verdictsFor(verdicts, metric))
	}
}

// assessSpecialized round-robins metrics over the sorted judge list, so each
// metric is scored by exactly one judge and the assignment is deterministic.
func (s *Service) assessSpecialized(ctx context.Context, judgeNames []string, req *models.QualityAssessmentRequest, metrics []models.QualityMetric, result *models.QualityAssessmentResult) {
	seen := make(map[string]bool, len(judgeNames))
	for i, metric := range metrics {
		judge := s.judges[judgeNames[i%len(judgeNames)]]
		score := judge.Assess(ctx, req.InputPrompt, req.AIOutput, metric, req.ContextData)
		result.Scores[metric] = score
		result.IndividualVerdicts = append(result.IndividualVerdicts, models.JudgeVerdict{
			Judge:        judge.Name(),
			Model:        judge.Model(),
			Metric:       metric,
			QualityScore: score,
		})
		if !seen[judge.Model()] {
			seen[judge.Model()] = true
			result.Models = append(result.Models, judge.Model())
		}
	}
}

// collectVerdicts fans out one goroutine per judge, each scoring every
// metric sequentially, and returns the verdicts in (judge, metric) order.
func (s *Service) collectVerdicts(ctx context.Context, judgeNames []string, req *models.QualityAssessmentRequest, metrics []models.QualityMetric) []models.JudgeVerdict {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		verdicts = make([]models.JudgeVerdict, 0, len(judgeNames)*len(metrics))
	)
	for _, name := range judgeNames {
		judge := s.judges[name]
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, metric := range metrics {
				score := judge.Assess(ctx, req.InputPrompt, req.AIOutput, metric, req.ContextData)
				mu.Lock()
				verdicts = append(verdicts, models.JudgeVerdict{
					Judge:        judge.Name(),
					Model:        judge.Model(),
					Metric:       metric,
					QualityScore: score,
				})
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	sort.SliceStable(verdicts, func(i, j int) bool {
		if verdicts[i].Judge != verdicts[j].Judge {
			return verdicts[i].Judge < verdicts[j].Judge
		}
		return metricRank(verdicts[i].Metric) < metricRank(verdicts[j].Metric)
	})
	return verdicts
}

// finalize guarantees every requested metric has a score, then computes the
// weighted overall score and the mean confidence.
func finalize(result *models.QualityAssessmentResult, metrics []models.QualityMetric, weights map[models.QualityMetric]float64) {
	for _, metric := range metrics {
		if _, ok := result.Scores[metric]; !ok {
			result.Scores[metric] = models.FallbackScore("no verdict produced")
		}
	}

	var weighted, weightTotal, confidenceSum float64
	for _, metric := range metrics {
		score := result.Scores[metric]
		w, ok := weights[metric]
		if !ok {
			w = DefaultMetricWeights[metric]
		}
		weighted += score.Score * w
		weightTotal += w
		confidenceSum += score.Confidence
	}
	if weightTotal > 0 {
		result.OverallScore = weighted / weightTotal
	}
	if len(metrics) > 0 {
		result.OverallConfidence = confidenceSum / float64(len(metrics))
	}
}

// meanVerdict is the MULTI_JUDGE combination: an unweighted average. The
// preserved individual verdicts carry the per-judge detail.
func meanVerdict(verdicts []models.JudgeVerdict) models.QualityScore {
	if len(verdicts) == 0 {
		return models.FallbackScore("no verdict produced")
	}
	var scoreSum, confidenceSum float64
	for _, v := range verdicts {
		scoreSum += v.Score
		confidenceSum += v.Confidence
	}
	n := float64(len(verdicts))
	return models.QualityScore{
		Score:      scoreSum / n,
		Confidence: confidenceSum / n,
		Reasoning:  fmt.Sprintf("mean of %d judge verdicts", len(verdicts)),
	}
}

// ensembleScore is the ENSEMBLE combination: scores averaged by confidence
// weight, reasoning concatenated, evidence and suggestions unioned. When
// every judge failed the metric the consensus is the fallback itself.
func ensembleScore(verdicts []models.JudgeVerdict) models.QualityScore {
	usable := false
	for _, v := range verdicts {
		if v.Confidence > models.FallbackConfidence {
			usable = true
			break
		}
	}
	if !usable {
		return models.FallbackScore("all judges failed this metric")
	}

	var (
		weighted, weightTotal, confidenceSum float64
		reasons                              []string
		evidence, suggestions                []string
		seenEvidence                         = map[string]bool{}
		seenSuggestion                       = map[string]bool{}
	)
	for _, v := range verdicts {
		weighted += v.Score * v.Confidence
		weightTotal += v.Confidence
		confidenceSum += v.Confidence
		if v.Reasoning != "" {
			reasons = append(reasons, fmt.Sprintf("%s: %s", v.Judge, v.Reasoning))
		}
		for _, e := range v.Evidence {
			if !seenEvidence[e] {
				seenEvidence[e] = true
				evidence = append(evidence, e)
			}
		}
		for _, sug := range v.Suggestions {
			if !seenSuggestion[sug] {
				seenSuggestion[sug] = true
				suggestions = append(suggestions, sug)
			}
		}
	}
	return models.QualityScore{
		Score:       weighted / weightTotal,
		Confidence:  confidenceSum / float64(len(verdicts)),
		Reasoning:   strings.Join(reasons, "\n"),
		Evidence:    evidence,
		Suggestions: suggestions,
	}
}

// evaluateAssessment applies scenario thresholds and baselines. A scenario
// without thresholds passes on assessment alone; baseline regressions beyond
// the tolerance fail it.
func evaluateAssessment(sc *models.TestScenario, spec *models.AIQualitySpec, assessment *models.QualityAssessmentResult) (bool, []string) {
	const baselineTolerance = 0.05

	passed := true
	var recommendations []string

	for _, metric := range models.AllQualityMetrics {
		threshold, ok := sc.QualityThresholds[metric]
		if !ok {
			continue
		}
		score, scored := assessment.Scores[metric]
		if !scored {
			continue
		}
		if score.Score < threshold {
			passed = false
			recommendations = append(recommendations,
				fmt.Sprintf("%s scored %.2f, below the %.2f threshold", metric, score.Score, threshold))
		}
	}

	for _, metric := range models.AllQualityMetrics {
		baseline, ok := spec.BaselineScores[metric]
		if !ok {
			continue
		}
		score, scored := assessment.Scores[metric]
		if !scored {
			continue
		}
		if score.Score < baseline-baselineTolerance {
			passed = false
			recommendations = append(recommendations,
				fmt.Sprintf("%s regressed to %.2f from the %.2f baseline", metric, score.Score, baseline))
		}
	}

	for _, score := range orderedScores(assessment) {
		for _, sug := range score.Suggestions {
			if len(recommendations) >= 8 {
				return passed, recommendations
			}
			if !containsString(recommendations, sug) {
				recommendations = append(recommendations, sug)
			}
		}
	}
	return passed, recommendations
}

// orderedScores returns the per-metric scores in canonical metric order so
// recommendation assembly is deterministic.
func orderedScores(assessment *models.QualityAssessmentResult) []models.QualityScore {
	out := make([]models.QualityScore, 0, len(assessment.Scores))
	for _, metric := range models.AllQualityMetrics {
		if score, ok := assessment.Scores[metric]; ok {
			out = append(out, score)
		}
	}
	return out
}

// assessmentContext merges the spec's context data with its reference
// outputs so consistency judging sees the reference material.
func assessmentContext(spec *models.AIQualitySpec) map[string]any {
	if len(spec.ReferenceOutputs) == 0 {
		return spec.ContextData
	}
	merged := make(map[string]any, len(spec.ContextData)+1)
	for k, v := range spec.ContextData {
		merged[k] = v
	}
	merged["reference_outputs"] = strings.Join(spec.ReferenceOutputs, "\n---\n")
	return merged
}

// judgeSubset resolves assessment_models against the configured judges.
// Unknown names are skipped with a warning; an empty list selects every
// judge.
func (s *Service) judgeSubset(names []string) ([]string, error) {
	if len(names) == 0 {
		return s.order, nil
	}
	known := make(map[string]bool, len(names))
	for _, name := range names {
		if _, ok := s.judges[name]; !ok {
			slog.Warn("Scenario names unconfigured judge", "judge", name)
			continue
		}
		known[name] = true
	}
	if len(known) == 0 {
		return nil, models.NewValidationError("ai_quality_spec.assessment_models", "no configured judge matches")
	}
	subset := make([]string, 0, len(known))
	for _, name := range s.order {
		if known[name] {
			subset = append(subset, name)
		}
	}
	return subset, nil
}

func (s *Service) resolveStrategy(requested models.JudgeStrategy) (models.JudgeStrategy, error) {
	if requested == "" {
		requested = models.JudgeStrategy(strings.ToUpper(s.cfg.DefaultStrategy))
	}
	if !requested.IsValid() {
		return "", models.NewValidationError("strategy", fmt.Sprintf("unknown strategy %q", requested))
	}
	return requested, nil
}

func (s *Service) modelsOf(judgeNames []string) []string {
	seen := make(map[string]bool, len(judgeNames))
	out := make([]string, 0, len(judgeNames))
	for _, name := range judgeNames {
		model := s.judges[name].Model()
		if !seen[model] {
			seen[model] = true
			out = append(out, model)
		}
	}
	return out
}

// normalizeMetrics validates and canonicalizes the metric list: an empty
// request selects every metric, duplicates collapse, and the result follows
// the AllQualityMetrics order.
func normalizeMetrics(requested []models.QualityMetric) ([]models.QualityMetric, error) {
	if len(requested) == 0 {
		return append([]models.QualityMetric(nil), models.AllQualityMetrics...), nil
	}
	want := make(map[models.QualityMetric]bool, len(requested))
	for _, m := range requested {
		if !m.IsValid() {
			return nil, models.NewValidationError("quality_metrics", fmt.Sprintf("unknown metric %q", m))
		}
		want[m] = true
	}
	out := make([]models.QualityMetric, 0, len(want))
	for _, m := range models.AllQualityMetrics {
		if want[m] {
			out = append(out, m)
		}
	}
	return out, nil
}

// primaryName picks the SINGLE_JUDGE judge: the one literally named
// "primary" when configured, else the first in sorted order.
func primaryName(judgeNames []string) string {
	for _, name := range judgeNames {
		if name == "primary" {
			return name
		}
	}
	return judgeNames[0]
}

func verdictsFor(verdicts []models.JudgeVerdict, metric models.QualityMetric) []models.JudgeVerdict {
	var out []models.JudgeVerdict
	for _, v := range verdicts {
		if v.Metric == metric {
			out = append(out, v)
		}
	}
	return out
}

func metricRank(metric models.QualityMetric) int {
	for i, m := range models.AllQualityMetrics {
		if m == metric {
			return i
		}
	}
	return len(models.AllQualityMetrics)
}

func metadataString(tc models.TestContext, key string) string {
	if tc.Metadata == nil {
		return ""
	}
	if v, ok := tc.Metadata[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func newExecutionID() string {
	return "quality_" + uuid.New().String()
}
