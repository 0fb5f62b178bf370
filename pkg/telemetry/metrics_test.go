package telemetry

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cruciblehq/crucible/pkg/models"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()

	m.RecordExecution(models.TestTypeAPI, models.ExecutionCompleted)
	m.RecordExecution(models.TestTypeAPI, models.ExecutionCompleted)
	m.RecordExecution(models.TestTypeUI, models.ExecutionFailed)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.executions.WithLabelValues("API", "COMPLETED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.executions.WithLabelValues("UI", "FAILED")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.executions.WithLabelValues("AI_QUALITY", "COMPLETED")))

	m.RecordJudgeCall("anthropic", "ok")
	m.RecordJudgeCall("anthropic", "error")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.judgeCalls.WithLabelValues("anthropic", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.judgeCalls.WithLabelValues("anthropic", "error")))

	m.RecordNotificationDelivery(models.ChannelSlack, models.NotificationSent)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deliveries.WithLabelValues("SLACK", "SENT")))
}

func TestMetrics_HandlerServesRegistry(t *testing.T) {
	m := NewMetrics()
	m.RecordExecution(models.TestTypeAPI, models.ExecutionCompleted)
	m.ObserveHTTPRequest("GET", "/health", 200, 37*time.Millisecond)
	m.TrackAggregatorWindow(func() int { return 7 })
	m.TrackActiveSessions(func() int { return 3 })

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")

	body := rec.Body.String()
	assert.Contains(t, body, `crucible_executions_total{status="COMPLETED",test_type="API"} 1`)
	assert.Contains(t, body, `crucible_http_request_duration_seconds_count{method="GET",path="/health",status="200"} 1`)
	assert.Contains(t, body, "crucible_aggregator_window_results 7")
	assert.Contains(t, body, "crucible_active_sessions 3")
	assert.Contains(t, body, "go_goroutines")
}
