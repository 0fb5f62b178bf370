package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cruciblehq/crucible/pkg/models"
)

// SidecarDriver speaks JSON over HTTP to a browser engine sidecar that
// owns the real browser processes. One sidecar session maps to one
// browser context.
type SidecarDriver struct {
	baseURL string
	client  *http.Client
}

func NewSidecarDriver(baseURL string, timeout time.Duration) *SidecarDriver {
	return &SidecarDriver{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (d *SidecarDriver) Name() string { return "sidecar" }

func (d *SidecarDriver) Healthy(ctx context.Context) error {
	return d.doJSON(ctx, http.MethodGet, "/healthz", nil, nil)
}

type sidecarSessionRequest struct {
	Browser     models.BrowserType `json:"browser"`
	Viewport    models.Viewport    `json:"viewport"`
	RecordVideo bool               `json:"record_video,omitempty"`
	RecordTrace bool               `json:"record_trace,omitempty"`
}

func (d *SidecarDriver) NewSession(ctx context.Context, opts SessionOptions) (Session, error) {
	var created struct {
		SessionID string `json:"session_id"`
	}
	req := sidecarSessionRequest{
		Browser:     opts.Browser,
		Viewport:    opts.Viewport,
		RecordVideo: opts.RecordVideo,
		RecordTrace: opts.RecordTrace,
	}
	if err := d.doJSON(ctx, http.MethodPost, "/session", req, &created); err != nil {
		return nil, fmt.Errorf("failed to create browser session: %w", err)
	}
	if created.SessionID == "" {
		return nil, fmt.Errorf("browser engine returned no session id")
	}
	return &sidecarSession{driver: d, id: created.SessionID}, nil
}

// doJSON issues one request against the sidecar. A nil out discards the
// response body; non-2xx statuses surface the engine's error message.
func (d *SidecarDriver) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return sidecarError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode engine response: %w", err)
	}
	return nil
}

func (d *SidecarDriver) raw(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, sidecarError(resp)
	}
	return io.ReadAll(resp.Body)
}

func sidecarError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var engineErr struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &engineErr) == nil && engineErr.Error != "" {
		return fmt.Errorf("browser engine: %s (status %d)", engineErr.Error, resp.StatusCode)
	}
	return fmt.Errorf("browser engine returned status %d", resp.StatusCode)
}

type sidecarSession struct {
	driver *SidecarDriver
	id     string
}

func (s *sidecarSession) path(suffix string) string {
	return "/session/" + s.id + suffix
}

type sidecarAction struct {
	Type     string `json:"type"`
	Selector string `json:"selector,omitempty"`
	Value    string `json:"value,omitempty"`
	Pixels   int    `json:"pixels,omitempty"`
}

func (s *sidecarSession) action(ctx context.Context, a sidecarAction) error {
	return s.driver.doJSON(ctx, http.MethodPost, s.path("/action"), a, nil)
}

func (s *sidecarSession) Navigate(ctx context.Context, url string) error {
	in := struct {
		URL string `json:"url"`
	}{URL: url}
	return s.driver.doJSON(ctx, http.MethodPost, s.path("/navigate"), in, nil)
}

func (s *sidecarSession) Click(ctx context.Context, selector string) error {
	return s.action(ctx, sidecarAction{Type: "click", Selector: selector})
}

func (s *sidecarSession) Type(ctx context.Context, selector, text string) error {
	return s.action(ctx, sidecarAction{Type: "type", Selector: selector, Value: text})
}

func (s *sidecarSession) Select(ctx context.Context, selector, option string) error {
	return s.action(ctx, sidecarAction{Type: "select", Selector: selector, Value: option})
}

func (s *sidecarSession) Hover(ctx context.Context, selector string) error {
	return s.action(ctx, sidecarAction{Type: "hover", Selector: selector})
}

func (s *sidecarSession) Press(ctx context.Context, selector, key string) error {
	return s.action(ctx, sidecarAction{Type: "press", Selector: selector, Value: key})
}

func (s *sidecarSession) ScrollIntoView(ctx context.Context, selector string) error {
	return s.action(ctx, sidecarAction{Type: "scroll", Selector: selector})
}

func (s *sidecarSession) ScrollBy(ctx context.Context, pixels int) error {
	return s.action(ctx, sidecarAction{Type: "scroll", Pixels: pixels})
}

// query asks the engine for one page fact. The engine answers with the
// field matching the query kind.
type sidecarQuery struct {
	Kind     string `json:"kind"`
	Selector string `json:"selector,omitempty"`
}

type sidecarQueryResult struct {
	Visible bool   `json:"visible"`
	Text    string `json:"text"`
	Value   string `json:"value"`
	Count   int    `json:"count"`
	URL     string `json:"url"`
	Title   string `json:"title"`
}

func (s *sidecarSession) query(ctx context.Context, kind, selector string) (*sidecarQueryResult, error) {
	var out sidecarQueryResult
	in := sidecarQuery{Kind: kind, Selector: selector}
	if err := s.driver.doJSON(ctx, http.MethodPost, s.path("/query"), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *sidecarSession) IsVisible(ctx context.Context, selector string) (bool, error) {
	out, err := s.query(ctx, "visible", selector)
	if err != nil {
		return false, err
	}
	return out.Visible, nil
}

func (s *sidecarSession) Text(ctx context.Context, selector string) (string, error) {
	out, err := s.query(ctx, "text", selector)
	if err != nil {
		return "", err
	}
	return out.Text, nil
}

func (s *sidecarSession) Value(ctx context.Context, selector string) (string, error) {
	out, err := s.query(ctx, "value", selector)
	if err != nil {
		return "", err
	}
	return out.Value, nil
}

func (s *sidecarSession) Count(ctx context.Context, selector string) (int, error) {
	out, err := s.query(ctx, "count", selector)
	if err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (s *sidecarSession) URL(ctx context.Context) (string, error) {
	out, err := s.query(ctx, "url", "")
	if err != nil {
		return "", err
	}
	return out.URL, nil
}

func (s *sidecarSession) Title(ctx context.Context) (string, error) {
	out, err := s.query(ctx, "title", "")
	if err != nil {
		return "", err
	}
	return out.Title, nil
}

func (s *sidecarSession) SetViewport(ctx context.Context, vp models.Viewport) error {
	return s.driver.doJSON(ctx, http.MethodPost, s.path("/viewport"), vp, nil)
}

func (s *sidecarSession) Screenshot(ctx context.Context) ([]byte, error) {
	return s.driver.raw(ctx, s.path("/screenshot"))
}

func (s *sidecarSession) Metrics(ctx context.Context) (*models.PerformanceCapture, error) {
	var out models.PerformanceCapture
	if err := s.driver.doJSON(ctx, http.MethodGet, s.path("/metrics"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *sidecarSession) Accessibility(ctx context.Context) (*AccessibilityScan, error) {
	var out AccessibilityScan
	if err := s.driver.doJSON(ctx, http.MethodGet, s.path("/accessibility"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *sidecarSession) Layout(ctx context.Context) (*LayoutInfo, error) {
	var out LayoutInfo
	if err := s.driver.doJSON(ctx, http.MethodGet, s.path("/layout"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *sidecarSession) ConsoleErrors(ctx context.Context) ([]string, error) {
	var out struct {
		Errors []string `json:"errors"`
	}
	if err := s.driver.doJSON(ctx, http.MethodGet, s.path("/console"), nil, &out); err != nil {
		return nil, err
	}
	return out.Errors, nil
}

func (s *sidecarSession) Close(ctx context.Context) (*SessionEvidence, error) {
	var out SessionEvidence
	if err := s.driver.doJSON(ctx, http.MethodDelete, s.path(""), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
