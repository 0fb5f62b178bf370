package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cruciblehq/crucible/pkg/config"
	"github.com/cruciblehq/crucible/pkg/events"
	"github.com/cruciblehq/crucible/pkg/models"
)

var reportBase = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

func testAggregator(t *testing.T, mutate func(*config.AggregationConfig)) *Service {
	t.Helper()
	cfg := config.DefaultAggregationConfig()
	cfg.ExportDir = t.TempDir()
	if mutate != nil {
		mutate(cfg)
	}
	svc, err := NewService(cfg, nil, nil)
	require.NoError(t, err)
	return svc
}

func seedResult(executionID, scenarioID string, tt models.TestType, passed bool, score float64, durationMS int64, at time.Time) *models.TestResult {
	return &models.TestResult{
		ExecutionID: executionID,
		ScenarioID:  scenarioID,
		TestType:    tt,
		Passed:      passed,
		Score:       score,
		DurationMS:  durationMS,
		CreatedAt:   at,
	}
}

func TestNewService_RequiresConfig(t *testing.T) {
	_, err := NewService(nil, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration")
}

func TestIngest_Dedupes(t *testing.T) {
	svc := testAggregator(t, nil)

	r := seedResult("api_1", "sc-1", models.TestTypeAPI, true, 0.9, 100, reportBase)
	assert.True(t, svc.Ingest(r))
	assert.False(t, svc.Ingest(r))
	assert.Equal(t, 1, svc.WindowSize())
}

func TestGenerateReport_ValidatesRequest(t *testing.T) {
	svc := testAggregator(t, nil)
	ctx := context.Background()

	_, err := svc.GenerateReport(ctx, nil)
	var ve *models.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "request", ve.Field)

	_, err = svc.GenerateReport(ctx, &models.ReportRequest{
		StartTime: reportBase,
		EndTime:   reportBase.Add(-time.Hour),
	})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "end_time", ve.Field)
}

func TestGenerateReport_EmptyWindow(t *testing.T) {
	svc := testAggregator(t, nil)

	report, err := svc.GenerateReport(context.Background(), &models.ReportRequest{
		StartTime: reportBase,
		EndTime:   reportBase.Add(time.Hour),
	})
	require.NoError(t, err)

	assert.Equal(t, models.TestSummary{}, report.Summary)
	assert.Equal(t, 0, report.ResultCount)
	assert.Equal(t, 0.0, report.DataCompleteness)
	assert.Nil(t, report.ByTestType)
	assert.Nil(t, report.Performance)
	assert.Equal(t,
		[]string{"No results in the window; confirm executors are publishing and pull sources are reachable"},
		report.Recommendations)
}

func TestGenerateReport_SummariesAndRankings(t *testing.T) {
	svc := testAggregator(t, nil)
	at := func(i int) time.Time { return reportBase.Add(time.Duration(i) * time.Minute) }

	fail := seedResult("api_f1", "flaky", models.TestTypeAPI, false, 0.2, 500, at(0))
	fail.ErrorMessage = "connection reset"
	svc.Ingest(fail)
	fail2 := seedResult("api_f2", "flaky", models.TestTypeAPI, false, 0.2, 500, at(1))
	fail2.ErrorMessage = "connection reset"
	svc.Ingest(fail2)
	fail3 := seedResult("api_f3", "flaky", models.TestTypeAPI, false, 0.1, 500, at(2))
	fail3.ErrorMessage = "status 500"
	svc.Ingest(fail3)
	svc.Ingest(seedResult("browser_b1", "bad", models.TestTypeUI, false, 0.3, 900, at(3)))
	svc.Ingest(seedResult("api_p1", "fast", models.TestTypeAPI, true, 0.9, 100, at(4)))
	svc.Ingest(seedResult("api_p2", "fast", models.TestTypeAPI, true, 0.9, 100, at(5)))

	report, err := svc.GenerateReport(context.Background(), &models.ReportRequest{
		StartTime: reportBase,
		EndTime:   reportBase.Add(time.Hour),
	})
	require.NoError(t, err)

	assert.Equal(t, 6, report.Summary.TotalTests)
	assert.Equal(t, 2, report.Summary.Passed)
	assert.Equal(t, 4, report.Summary.Failed)
	assert.InDelta(t, 1.0/3, report.Summary.PassRate, 1e-9)

	assert.Equal(t, 5, report.ByTestType[models.TestTypeAPI].TotalTests)
	assert.Equal(t, 1, report.ByTestType[models.TestTypeUI].TotalTests)
	assert.Equal(t, 5, report.ByService["api"].TotalTests)
	assert.Equal(t, 1, report.ByService["browser"].TotalTests)

	require.NotEmpty(t, report.TopFailures)
	assert.Equal(t, "flaky", report.TopFailures[0].ScenarioID)
	assert.Equal(t, 3, report.TopFailures[0].FailureCount)
	assert.Equal(t, []string{"connection reset", "status 500"}, report.TopFailures[0].SampleErrors)
	assert.True(t, report.TopFailures[0].LastFailure.Equal(at(2)))

	require.NotEmpty(t, report.TopPerformers)
	assert.Equal(t, "fast", report.TopPerformers[0].ScenarioID)
	assert.InDelta(t, 9.0, report.TopPerformers[0].Efficiency, 1e-9)

	assert.Contains(t, report.Recommendations, "Investigate failing scenarios; pass rate is 33%")
	assert.Contains(t, report.Recommendations, "Prioritise scenario flaky with 3 failures in the window")

	require.NotNil(t, report.Performance)
	assert.InDelta(t, 433.33, report.Performance.AvgDurationMS, 0.01)
}

func TestGenerateReport_WindowAndFilters(t *testing.T) {
	svc := testAggregator(t, nil)

	svc.Ingest(seedResult("api_in", "sc-1", models.TestTypeAPI, true, 0.9, 100, reportBase.Add(time.Minute)))
	svc.Ingest(seedResult("api_out", "sc-1", models.TestTypeAPI, true, 0.9, 100, reportBase.Add(-time.Hour)))
	svc.Ingest(seedResult("browser_in", "sc-2", models.TestTypeUI, true, 0.8, 400, reportBase.Add(2*time.Minute)))

	window := &models.ReportRequest{StartTime: reportBase, EndTime: reportBase.Add(time.Hour)}
	report, err := svc.GenerateReport(context.Background(), window)
	require.NoError(t, err)
	assert.Equal(t, 2, report.ResultCount)

	byType, err := svc.GenerateReport(context.Background(), &models.ReportRequest{
		StartTime: window.StartTime,
		EndTime:   window.EndTime,
		TestTypes: []models.TestType{models.TestTypeUI},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, byType.ResultCount)
	assert.Equal(t, 1, byType.ByTestType[models.TestTypeUI].TotalTests)

	byService, err := svc.GenerateReport(context.Background(), &models.ReportRequest{
		StartTime: window.StartTime,
		EndTime:   window.EndTime,
		Services:  []string{"api"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, byService.ResultCount)
	assert.Equal(t, 1, byService.ByService["api"].TotalTests)
}

func TestGenerateReport_TrendAndInsightGating(t *testing.T) {
	svc := testAggregator(t, nil)
	for day, score := range []float64{0.5, 0.55, 0.6, 0.65, 0.7, 0.75} {
		svc.Ingest(seedResult(fmt.Sprintf("api_%d", day), "sc-1", models.TestTypeAPI, true, score, 100,
			reportBase.AddDate(0, 0, day)))
	}
	window := &models.ReportRequest{StartTime: reportBase.Add(-time.Hour), EndTime: reportBase.AddDate(0, 0, 6)}

	plain, err := svc.GenerateReport(context.Background(), window)
	require.NoError(t, err)
	assert.Nil(t, plain.Trends)
	assert.Nil(t, plain.Insights)
	assert.Nil(t, plain.Anomalies)

	full, err := svc.GenerateReport(context.Background(), &models.ReportRequest{
		StartTime:       window.StartTime,
		EndTime:         window.EndTime,
		IncludeTrends:   true,
		IncludeInsights: true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, full.Trends)
	trend := findTrend(t, full.Trends, "score")
	assert.Equal(t, models.TrendImproving, trend.Direction)
}

func TestGenerateReport_DataCompleteness(t *testing.T) {
	svc := testAggregator(t, func(cfg *config.AggregationConfig) {
		cfg.ExpectedTestsPerHour = 10
	})
	for i := 0; i < 5; i++ {
		svc.Ingest(seedResult(fmt.Sprintf("api_%d", i), "sc-1", models.TestTypeAPI, true, 0.9, 100,
			reportBase.Add(time.Duration(i)*time.Minute)))
	}

	report, err := svc.GenerateReport(context.Background(), &models.ReportRequest{
		StartTime: reportBase,
		EndTime:   reportBase.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, report.DataCompleteness, 1e-9)
}

func TestReport_RetainedByID(t *testing.T) {
	svc := testAggregator(t, nil)

	report, err := svc.GenerateReport(context.Background(), &models.ReportRequest{
		StartTime: reportBase,
		EndTime:   reportBase.Add(time.Hour),
	})
	require.NoError(t, err)

	got, err := svc.Report(report.ReportID)
	require.NoError(t, err)
	assert.Same(t, report, got)

	_, err = svc.Report("report_unknown")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestExportReport_JSONRoundTrip(t *testing.T) {
	svc := testAggregator(t, nil)
	for day, score := range []float64{0.5, 0.55, 0.6, 0.65, 0.7, 0.75} {
		svc.Ingest(seedResult(fmt.Sprintf("api_%d", day), "sc-1", models.TestTypeAPI, true, score, 100,
			reportBase.AddDate(0, 0, day)))
	}
	report, err := svc.GenerateReport(context.Background(), &models.ReportRequest{
		StartTime:     reportBase.Add(-time.Hour),
		EndTime:       reportBase.AddDate(0, 0, 6),
		IncludeTrends: true,
	})
	require.NoError(t, err)

	data, contentType, err := svc.ExportReport(report.ReportID, "json")
	require.NoError(t, err)
	assert.Equal(t, "application/json", contentType)

	var parsed models.AggregatedResults
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Equal(t, report.ReportID, parsed.ReportID)
	assert.Equal(t, report.Summary, parsed.Summary)
	assert.Equal(t, report.ByTestType, parsed.ByTestType)
	assert.Equal(t, report.ByService, parsed.ByService)
	assert.Equal(t, report.Trends, parsed.Trends)
	assert.Equal(t, report.TopPerformers, parsed.TopPerformers)
	assert.Equal(t, report.Recommendations, parsed.Recommendations)
	assert.Equal(t, report.ResultCount, parsed.ResultCount)
	assert.True(t, report.GeneratedAt.Equal(parsed.GeneratedAt))
	assert.True(t, report.StartTime.Equal(parsed.StartTime))
	assert.True(t, report.EndTime.Equal(parsed.EndTime))
}

func TestExportReport_MarkdownAndCSVDeterministic(t *testing.T) {
	svc := testAggregator(t, nil)
	svc.Ingest(seedResult("api_1", "checkout", models.TestTypeAPI, true, 0.9, 100, reportBase))
	svc.Ingest(seedResult("browser_1", "landing", models.TestTypeUI, false, 0.4, 800, reportBase.Add(time.Minute)))

	report, err := svc.GenerateReport(context.Background(), &models.ReportRequest{
		StartTime: reportBase,
		EndTime:   reportBase.Add(time.Hour),
	})
	require.NoError(t, err)

	md1, contentType, err := svc.ExportReport(report.ReportID, "markdown")
	require.NoError(t, err)
	assert.Equal(t, "text/markdown", contentType)
	md2, _, err := svc.ExportReport(report.ReportID, "markdown")
	require.NoError(t, err)
	assert.Equal(t, md1, md2)

	text := string(md1)
	assert.Contains(t, text, "# Aggregated Test Report")
	assert.Contains(t, text, "## Summary")
	assert.Contains(t, text, "checkout")
	assert.Contains(t, text, "| API |")
	assert.NotContains(t, text, "—")

	csv1, contentType, err := svc.ExportReport(report.ReportID, "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)
	csv2, _, err := svc.ExportReport(report.ReportID, "csv")
	require.NoError(t, err)
	assert.Equal(t, csv1, csv2)

	lines := strings.Split(strings.TrimRight(string(csv1), "\n"), "\n")
	assert.Equal(t, "scope,name,total_tests,passed,failed,pass_rate,avg_score,avg_duration_ms", lines[0])
	// Overall, two test types, two services.
	assert.Len(t, lines, 6)
	assert.True(t, strings.HasPrefix(lines[1], "overall,"))
	assert.True(t, strings.HasPrefix(lines[2], "test_type,API,"))
	assert.True(t, strings.HasPrefix(lines[4], "service,api,"))
}

func TestExportReport_HTML(t *testing.T) {
	svc := testAggregator(t, nil)
	svc.Ingest(seedResult("api_1", "checkout", models.TestTypeAPI, true, 0.9, 100, reportBase))

	report, err := svc.GenerateReport(context.Background(), &models.ReportRequest{
		StartTime: reportBase,
		EndTime:   reportBase.Add(time.Hour),
	})
	require.NoError(t, err)

	data, contentType, err := svc.ExportReport(report.ReportID, "html")
	require.NoError(t, err)
	assert.Equal(t, "text/html", contentType)
	text := string(data)
	assert.Contains(t, text, "<h2>Summary</h2>")
	assert.Contains(t, text, report.ReportID)
	assert.Contains(t, text, "checkout")
}

func TestExportReport_PersistsToExportDir(t *testing.T) {
	dir := t.TempDir()
	svc := testAggregator(t, func(cfg *config.AggregationConfig) { cfg.ExportDir = dir })

	report, err := svc.GenerateReport(context.Background(), &models.ReportRequest{
		StartTime: reportBase,
		EndTime:   reportBase.Add(time.Hour),
	})
	require.NoError(t, err)

	_, _, err = svc.ExportReport(report.ReportID, "json")
	require.NoError(t, err)
	_, _, err = svc.ExportReport(report.ReportID, "markdown")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, report.ReportID+".json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, report.ReportID+".md"))
	assert.NoError(t, err)
}

func TestExportReport_Errors(t *testing.T) {
	svc := testAggregator(t, nil)

	_, _, err := svc.ExportReport("report_unknown", "json")
	assert.ErrorIs(t, err, models.ErrNotFound)

	report, err := svc.GenerateReport(context.Background(), &models.ReportRequest{
		StartTime: reportBase,
		EndTime:   reportBase.Add(time.Hour),
	})
	require.NoError(t, err)

	_, _, err = svc.ExportReport(report.ReportID, "xml")
	var ve *models.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "format", ve.Field)
}

func TestBusIngestion(t *testing.T) {
	bus := events.NewBus(0)
	defer bus.Close()

	cfg := config.DefaultAggregationConfig()
	cfg.ExportDir = t.TempDir()
	svc, err := NewService(cfg, bus, events.NewPublisher(bus))
	require.NoError(t, err)

	svc.Start(context.Background())
	defer svc.Stop()

	ctx := context.Background()
	// Headline-only events carry no record and are skipped.
	require.NoError(t, bus.Publish(ctx, events.ResultsChannel, map[string]any{"type": events.EventTypeResultCompleted}))

	pub := events.NewPublisher(bus)
	pub.PublishResultCompleted(ctx, "sess-1", seedResult("api_1", "sc-1", models.TestTypeAPI, true, 0.9, 100, time.Now().UTC()))

	assert.Eventually(t, func() bool { return svc.WindowSize() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestGenerateReport_PublishesAggregateUpdated(t *testing.T) {
	bus := events.NewBus(0)
	defer bus.Close()

	cfg := config.DefaultAggregationConfig()
	cfg.ExportDir = t.TempDir()
	svc, err := NewService(cfg, bus, events.NewPublisher(bus))
	require.NoError(t, err)

	sub := bus.Subscribe(events.AggregatesChannel)
	defer bus.Unsubscribe(sub)

	svc.Ingest(seedResult("api_1", "sc-1", models.TestTypeAPI, true, 0.9, 100, reportBase))
	report, err := svc.GenerateReport(context.Background(), &models.ReportRequest{
		StartTime: reportBase,
		EndTime:   reportBase.Add(time.Hour),
	})
	require.NoError(t, err)

	select {
	case m := <-sub.Events():
		var payload events.AggregateUpdatedPayload
		require.NoError(t, json.Unmarshal(m.Data, &payload))
		assert.Equal(t, events.EventTypeAggregateUpdated, payload.Type)
		assert.Equal(t, report.ReportID, payload.ReportID)
		assert.Equal(t, 1, payload.ResultCount)
		require.NotNil(t, payload.Report)
		assert.Equal(t, report.Summary, payload.Report.Summary)
	case <-time.After(2 * time.Second):
		t.Fatal("no aggregate.updated event received")
	}
}

type historySource struct {
	mu      sync.Mutex
	since   string
	results []*models.TestResult
}

func (h *historySource) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.mu.Lock()
		h.since = r.URL.Query().Get("since")
		h.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"results": h.results, "count": len(h.results)})
	}
}

func (h *historySource) sinceParam() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.since
}

func TestCollect_PullsFromSources(t *testing.T) {
	now := time.Now().UTC()
	srcA := &historySource{results: []*models.TestResult{
		seedResult("api_1", "sc-1", models.TestTypeAPI, true, 0.9, 100, now),
		seedResult("api_2", "sc-1", models.TestTypeAPI, true, 0.8, 120, now),
	}}
	srcB := &historySource{results: []*models.TestResult{
		seedResult("browser_1", "sc-2", models.TestTypeUI, false, 0.4, 700, now),
	}}
	serverA := httptest.NewServer(srcA.handler())
	defer serverA.Close()
	serverB := httptest.NewServer(srcB.handler())
	defer serverB.Close()

	svc := testAggregator(t, func(cfg *config.AggregationConfig) {
		cfg.PullSources = []string{serverA.URL, serverB.URL}
	})

	since := now.Add(-time.Hour)
	resp, err := svc.Collect(context.Background(), &models.CollectRequest{Since: since})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Collected)
	assert.Equal(t, 2, resp.BySource[serverA.URL])
	assert.Equal(t, 1, resp.BySource[serverB.URL])
	assert.Empty(t, resp.Errors)
	assert.Equal(t, 3, svc.WindowSize())
	assert.Equal(t, since.Format(time.RFC3339Nano), srcA.sinceParam())

	// Re-collection returns nothing new.
	resp, err = svc.Collect(context.Background(), &models.CollectRequest{Since: since})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Collected)
	assert.Equal(t, 3, svc.WindowSize())
}

func TestCollect_ReportsSourceFailures(t *testing.T) {
	now := time.Now().UTC()
	good := &historySource{results: []*models.TestResult{
		seedResult("api_1", "sc-1", models.TestTypeAPI, true, 0.9, 100, now),
	}}
	goodServer := httptest.NewServer(good.handler())
	defer goodServer.Close()
	badServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer badServer.Close()

	svc := testAggregator(t, func(cfg *config.AggregationConfig) {
		cfg.PullSources = []string{goodServer.URL, badServer.URL}
	})

	resp, err := svc.Collect(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Collected)
	assert.Equal(t, 0, resp.BySource[badServer.URL])
	require.Len(t, resp.Errors, 1)
	assert.Contains(t, resp.Errors[0], "status 500")
}

func TestCollect_NoSources(t *testing.T) {
	svc := testAggregator(t, nil)
	resp, err := svc.Collect(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Collected)
	assert.Empty(t, resp.Errors)
}

func TestCleanup_EvictsExpiredResults(t *testing.T) {
	svc := testAggregator(t, nil)
	svc.Ingest(seedResult("api_old", "sc-1", models.TestTypeAPI, true, 0.9, 100,
		time.Now().UTC().AddDate(0, 0, -8)))
	svc.Ingest(seedResult("api_new", "sc-1", models.TestTypeAPI, true, 0.9, 100, time.Now().UTC()))

	svc.cleanup()
	assert.Equal(t, 1, svc.WindowSize())
}

func TestStartStop_Lifecycle(t *testing.T) {
	svc := testAggregator(t, nil)

	// Stop before Start is a no-op.
	svc.Stop()

	svc.Start(context.Background())
	svc.Start(context.Background())
	svc.Stop()
}

func TestReportRetention_EvictsOldest(t *testing.T) {
	svc := testAggregator(t, nil)

	var first string
	for i := 0; i < maxRetainedReports+1; i++ {
		report, err := svc.GenerateReport(context.Background(), &models.ReportRequest{
			StartTime: reportBase,
			EndTime:   reportBase.Add(time.Hour),
		})
		require.NoError(t, err)
		if i == 0 {
			first = report.ReportID
		}
	}

	_, err := svc.Report(first)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDataCompleteness_NoBaseline(t *testing.T) {
	svc := testAggregator(t, func(cfg *config.AggregationConfig) { cfg.ExpectedTestsPerHour = 0 })
	svc.Ingest(seedResult("api_1", "sc-1", models.TestTypeAPI, true, 0.9, 100, reportBase))

	report, err := svc.GenerateReport(context.Background(), &models.ReportRequest{
		StartTime: reportBase,
		EndTime:   reportBase.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, report.DataCompleteness)
}

func TestGenerateReport_DefaultWindow(t *testing.T) {
	svc := testAggregator(t, nil)
	svc.Ingest(seedResult("api_1", "sc-1", models.TestTypeAPI, true, 0.9, 100, time.Now().UTC()))

	report, err := svc.GenerateReport(context.Background(), &models.ReportRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.ResultCount)
	assert.False(t, report.StartTime.IsZero())
	assert.False(t, report.EndTime.IsZero())
	assert.InDelta(t, float64(7*24)*time.Hour.Seconds(), report.EndTime.Sub(report.StartTime).Seconds(), 1)
}
