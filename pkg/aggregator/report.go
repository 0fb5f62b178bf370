package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/cruciblehq/crucible/pkg/models"
)

// topN is the cut for the failure and performer rankings.
const topN = 5

// GenerateReport assembles an AggregatedResults over the requested window.
// A zero end time means now; a zero start time means one window-age before
// the end. An empty window yields a zero-valued summary, never an error.
func (s *Service) GenerateReport(ctx context.Context, req *models.ReportRequest) (*models.AggregatedResults, error) {
	if req == nil {
		return nil, models.NewValidationError("request", "report request is required")
	}
	end := req.EndTime
	if end.IsZero() {
		end = time.Now().UTC()
	}
	start := req.StartTime
	if start.IsZero() {
		start = end.Add(-time.Duration(s.cfg.WindowDays) * 24 * time.Hour)
	}
	if end.Before(start) {
		return nil, models.NewValidationError("end_time", "must not precede start_time")
	}

	results := filterResults(s.window.Between(start, end), req.TestTypes, req.Services)

	report := &models.AggregatedResults{
		ReportID:         "report_" + uuid.New().String(),
		GeneratedAt:      time.Now().UTC(),
		StartTime:        start,
		EndTime:          end,
		Summary:          summarize(results),
		ByTestType:       summarizeByTestType(results),
		ByService:        summarizeByService(results),
		Performance:      performanceSummary(results),
		TopFailures:      topFailures(results, topN),
		TopPerformers:    topPerformers(results, topN),
		DataCompleteness: s.dataCompleteness(len(results), start, end),
		ResultCount:      len(results),
	}

	var anomalies []models.Anomaly
	if req.IncludeTrends || req.IncludeInsights {
		anomalies = detectAnomalies(results)
	}
	if req.IncludeTrends {
		report.Trends = analyzeTrends(results, s.cfg.MinDataPointsForTrend)
		report.Anomalies = anomalies
	}
	if req.IncludeInsights {
		report.Insights = detectInsights(results, anomalies, s.cfg.MinDataPointsForTrend)
	}
	report.Recommendations = buildRecommendations(report)

	s.retain(report)
	if s.publisher != nil {
		s.publisher.PublishAggregateUpdated(ctx, report)
	}
	slog.Info("Aggregated report generated",
		"report_id", report.ReportID,
		"results", report.ResultCount,
		"pass_rate", report.Summary.PassRate,
		"trends", len(report.Trends),
		"insights", len(report.Insights))
	return report, nil
}

// Report returns a retained report by id.
func (s *Service) Report(reportID string) (*models.AggregatedResults, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	report, ok := s.reports[reportID]
	if !ok {
		return nil, fmt.Errorf("report %s: %w", reportID, models.ErrNotFound)
	}
	return report, nil
}

func (s *Service) retain(report *models.AggregatedResults) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[report.ReportID] = report
	s.reportOrder = append(s.reportOrder, report.ReportID)
	if len(s.reportOrder) > maxRetainedReports {
		evict := s.reportOrder[0]
		s.reportOrder = s.reportOrder[1:]
		delete(s.reports, evict)
	}
}

func filterResults(results []*models.TestResult, types []models.TestType, services []string) []*models.TestResult {
	if len(types) == 0 && len(services) == 0 {
		return results
	}
	out := make([]*models.TestResult, 0, len(results))
	for _, r := range results {
		if len(types) > 0 && !slices.Contains(types, r.TestType) {
			continue
		}
		if len(services) > 0 && !slices.Contains(services, models.ServiceFromExecutionID(r.ExecutionID)) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// topFailures ranks scenarios by failure count, ties broken by scenario id.
func topFailures(results []*models.TestResult, n int) []models.FailurePattern {
	byScenario := make(map[string]*models.FailurePattern)
	for _, r := range results {
		if r.Passed {
			continue
		}
		fp, ok := byScenario[r.ScenarioID]
		if !ok {
			fp = &models.FailurePattern{ScenarioID: r.ScenarioID}
			byScenario[r.ScenarioID] = fp
		}
		fp.FailureCount++
		if r.CreatedAt.After(fp.LastFailure) {
			fp.LastFailure = r.CreatedAt
		}
		if r.ErrorMessage != "" && len(fp.SampleErrors) < 3 && !slices.Contains(fp.SampleErrors, r.ErrorMessage) {
			fp.SampleErrors = append(fp.SampleErrors, r.ErrorMessage)
		}
	}
	out := make([]models.FailurePattern, 0, len(byScenario))
	for _, fp := range byScenario {
		out = append(out, *fp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FailureCount != out[j].FailureCount {
			return out[i].FailureCount > out[j].FailureCount
		}
		return out[i].ScenarioID < out[j].ScenarioID
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// topPerformers ranks scenarios by avg_score / max(avg_duration_s, 0.1),
// ties broken by scenario id.
func topPerformers(results []*models.TestResult, n int) []models.PerformerEntry {
	type acc struct {
		scoreSum    float64
		durationSum float64
		count       int
	}
	byScenario := make(map[string]*acc)
	for _, r := range results {
		a, ok := byScenario[r.ScenarioID]
		if !ok {
			a = &acc{}
			byScenario[r.ScenarioID] = a
		}
		a.scoreSum += r.Score
		a.durationSum += float64(r.DurationMS)
		a.count++
	}
	out := make([]models.PerformerEntry, 0, len(byScenario))
	for scenarioID, a := range byScenario {
		avgScore := a.scoreSum / float64(a.count)
		avgDurationMS := a.durationSum / float64(a.count)
		out = append(out, models.PerformerEntry{
			ScenarioID:    scenarioID,
			AvgScore:      avgScore,
			AvgDurationMS: avgDurationMS,
			Efficiency:    avgScore / math.Max(avgDurationMS/1000, 0.1),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Efficiency != out[j].Efficiency {
			return out[i].Efficiency > out[j].Efficiency
		}
		return out[i].ScenarioID < out[j].ScenarioID
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// dataCompleteness compares the observed result count against the
// expected-tests-per-hour baseline over the window.
func (s *Service) dataCompleteness(count int, start, end time.Time) float64 {
	perHour := s.cfg.ExpectedTestsPerHour
	hours := end.Sub(start).Hours()
	if perHour <= 0 || hours <= 0 {
		return 1
	}
	return clamp01(float64(count) / (perHour * hours))
}

// buildRecommendations derives the report's action list from its own
// findings. Output is deterministic for equal reports.
func buildRecommendations(report *models.AggregatedResults) []string {
	var recs []string
	if report.Summary.TotalTests == 0 {
		return []string{"No results in the window; confirm executors are publishing and pull sources are reachable"}
	}
	if report.Summary.PassRate < 0.8 {
		recs = append(recs, fmt.Sprintf("Investigate failing scenarios; pass rate is %.0f%%", report.Summary.PassRate*100))
	}
	for _, t := range report.Trends {
		switch t.Direction {
		case models.TrendDeclining:
			recs = append(recs, fmt.Sprintf("Address the declining %s trend", t.Metric))
		case models.TrendVolatile:
			recs = append(recs, fmt.Sprintf("Stabilise the volatile %s series", t.Metric))
		}
	}
	for _, fp := range report.TopFailures {
		if fp.FailureCount >= 3 {
			recs = append(recs, fmt.Sprintf("Prioritise scenario %s with %d failures in the window", fp.ScenarioID, fp.FailureCount))
		}
	}
	if report.DataCompleteness < 0.5 {
		recs = append(recs, "Result volume is below half the expected cadence; check collection coverage")
	}
	return recs
}
