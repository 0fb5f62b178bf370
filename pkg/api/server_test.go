package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cruciblehq/crucible/pkg/config"
	"github.com/cruciblehq/crucible/pkg/events"
	"github.com/cruciblehq/crucible/pkg/telemetry"
)

func newTestConfig() *config.Config {
	return &config.Config{
		Server: config.DefaultServerConfig(),
		Events: config.DefaultEventsConfig(),
	}
}

// newTestServer builds a server over the given services with a fresh bus.
// Tests drive it through Handler() without a listener.
func newTestServer(t *testing.T, services Services) (*Server, *events.Bus) {
	t.Helper()
	bus := events.NewBus(64)
	t.Cleanup(bus.Close)

	srv, err := NewServer(newTestConfig(), services, bus, nil)
	require.NoError(t, err)
	return srv, bus
}

// perform runs one request through the full middleware and routing chain.
func perform(t *testing.T, srv *Server, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

// decode unmarshals a recorded JSON response body.
func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

func TestNewServer_Validation(t *testing.T) {
	bus := events.NewBus(8)
	defer bus.Close()

	_, err := NewServer(nil, Services{}, bus, nil)
	require.ErrorContains(t, err, "server configuration")

	_, err = NewServer(newTestConfig(), Services{}, nil, nil)
	require.ErrorContains(t, err, "event bus")
}

func TestServer_RoutesGatedByHostedServices(t *testing.T) {
	srv, _ := newTestServer(t, Services{})

	// No services hosted: executor routes do not exist.
	for _, path := range []string{"/test", "/execute", "/assess", "/collect", "/alert", "/scenarios"} {
		rec := perform(t, srv, http.MethodPost, path, map[string]any{})
		assert.Equal(t, http.StatusNotFound, rec.Code, "POST %s", path)
	}

	// Health and the event stream are always registered.
	rec := perform(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_SecurityHeaders(t *testing.T) {
	srv, _ := newTestServer(t, Services{})

	rec := perform(t, srv, http.MethodGet, "/health", nil)

	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", rec.Header().Get("Referrer-Policy"))
	assert.Equal(t, "camera=(), microphone=(), geolocation=()", rec.Header().Get("Permissions-Policy"))
}

func TestServer_MetricsEndpoint(t *testing.T) {
	bus := events.NewBus(8)
	t.Cleanup(bus.Close)
	srv, err := NewServer(newTestConfig(), Services{}, bus, telemetry.NewMetrics())
	require.NoError(t, err)

	// One instrumented request, then scrape.
	rec := perform(t, srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = perform(t, srv, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(),
		`crucible_http_request_duration_seconds_count{method="GET",path="/health",status="200"} 1`)
}

func TestServer_MetricsEndpointAbsentWithoutRegistry(t *testing.T) {
	srv, _ := newTestServer(t, Services{})

	rec := perform(t, srv, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoutePattern(t *testing.T) {
	cases := map[string]string{
		"/health":                   "/health",
		"/test":                     "/test",
		"/test/history":             "/test/history",
		"/sessions/abc-123":         "/sessions/:id",
		"/sessions/abc-123/cancel":  "/sessions/:id/cancel",
		"/scenarios/templates":      "/scenarios/templates",
		"/scenarios/generate":       "/scenarios/generate",
		"/scenarios/import/postman": "/scenarios/import/postman",
		"/scenarios/sc-9":           "/scenarios/:id",
		"/collections/c1":           "/collections/:id",
		"/collections/c1/scenarios": "/collections/:id/scenarios",
		"/alerts/a1/acknowledge":    "/alerts/:id/acknowledge",
		"/alerts/a1/resolve":        "/alerts/:id/resolve",
		"/export/report_42":         "/export/:report_id",
	}
	for path, want := range cases {
		assert.Equal(t, want, routePattern(path), "path %s", path)
	}
}

func TestRecoverPanics(t *testing.T) {
	h := recoverPanics(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "internal server error")
}
