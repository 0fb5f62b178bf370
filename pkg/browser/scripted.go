package browser

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sort"
	"sync"
	"time"

	"github.com/cruciblehq/crucible/pkg/models"
)

// ScriptedDriver renders declarative page fixtures instead of driving a
// real browser. It backs the "scripted" engine for self-contained
// deployments and doubles as the deterministic engine for tests.
type ScriptedDriver struct {
	mu    sync.RWMutex
	pages map[string]*PageState
}

// PageState declares how one URL behaves under the scripted driver.
type PageState struct {
	Title    string
	Elements map[string]*ElementState

	Metrics       *models.PerformanceCapture
	Accessibility *AccessibilityScan
	Layout        *LayoutInfo
	// MobileLayout overrides Layout for viewports narrower than 768px.
	MobileLayout  *LayoutInfo
	ConsoleErrors []string

	// Screenshot overrides the synthesized capture when set.
	Screenshot  []byte
	NavigateErr error
}

// ElementState is the scripted state of one selector.
type ElementState struct {
	Visible bool
	Text    string
	Value   string
	Count   int

	// VisibleAfter delays visibility until this long after navigation,
	// for exercising assertion polling.
	VisibleAfter time.Duration
	// Reveals lists selectors that become visible when this element is
	// clicked.
	Reveals []string
	// Navigates, when set, makes a click load that URL.
	Navigates string
}

func NewScriptedDriver() *ScriptedDriver {
	return &ScriptedDriver{pages: make(map[string]*PageState)}
}

// ScriptPage registers or replaces the fixture behind a URL.
func (d *ScriptedDriver) ScriptPage(url string, page PageState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pages[url] = &page
}

func (d *ScriptedDriver) Name() string { return "scripted" }

func (d *ScriptedDriver) Healthy(ctx context.Context) error { return nil }

func (d *ScriptedDriver) NewSession(ctx context.Context, opts SessionOptions) (Session, error) {
	return &scriptedSession{driver: d, viewport: opts.Viewport}, nil
}

// scriptedSession navigates the driver's fixtures. Element state is
// copied on navigation so typing in one session never leaks into another.
type scriptedSession struct {
	driver   *ScriptedDriver
	viewport models.Viewport

	page     *PageState
	elements map[string]*ElementState
	url      string
	loadedAt time.Time
}

func (s *scriptedSession) Navigate(ctx context.Context, url string) error {
	s.driver.mu.RLock()
	page, ok := s.driver.pages[url]
	s.driver.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no page at %s", url)
	}
	if page.NavigateErr != nil {
		return page.NavigateErr
	}

	elements := make(map[string]*ElementState, len(page.Elements))
	for sel, el := range page.Elements {
		copied := *el
		elements[sel] = &copied
	}

	s.page = page
	s.elements = elements
	s.url = url
	s.loadedAt = time.Now()
	return nil
}

func (s *scriptedSession) element(selector string) (*ElementState, error) {
	if s.page == nil {
		return nil, fmt.Errorf("no page loaded")
	}
	el, ok := s.elements[selector]
	if !ok {
		return nil, fmt.Errorf("no element matches %q", selector)
	}
	return el, nil
}

func (s *scriptedSession) Click(ctx context.Context, selector string) error {
	el, err := s.element(selector)
	if err != nil {
		return err
	}
	if !s.isVisibleNow(el) {
		return fmt.Errorf("element %q is not visible", selector)
	}
	for _, revealed := range el.Reveals {
		if target, ok := s.elements[revealed]; ok {
			target.Visible = true
			target.VisibleAfter = 0
		}
	}
	if el.Navigates != "" {
		return s.Navigate(ctx, el.Navigates)
	}
	return nil
}

func (s *scriptedSession) Type(ctx context.Context, selector, text string) error {
	el, err := s.element(selector)
	if err != nil {
		return err
	}
	el.Value = text
	return nil
}

func (s *scriptedSession) Select(ctx context.Context, selector, option string) error {
	el, err := s.element(selector)
	if err != nil {
		return err
	}
	el.Value = option
	return nil
}

func (s *scriptedSession) Hover(ctx context.Context, selector string) error {
	_, err := s.element(selector)
	return err
}

func (s *scriptedSession) Press(ctx context.Context, selector, key string) error {
	_, err := s.element(selector)
	return err
}

func (s *scriptedSession) ScrollIntoView(ctx context.Context, selector string) error {
	_, err := s.element(selector)
	return err
}

func (s *scriptedSession) ScrollBy(ctx context.Context, pixels int) error {
	if s.page == nil {
		return fmt.Errorf("no page loaded")
	}
	return nil
}

func (s *scriptedSession) isVisibleNow(el *ElementState) bool {
	if el.VisibleAfter > 0 && time.Since(s.loadedAt) < el.VisibleAfter {
		return false
	}
	return el.Visible
}

func (s *scriptedSession) IsVisible(ctx context.Context, selector string) (bool, error) {
	if s.page == nil {
		return false, fmt.Errorf("no page loaded")
	}
	el, ok := s.elements[selector]
	if !ok {
		return false, nil
	}
	return s.isVisibleNow(el), nil
}

func (s *scriptedSession) Text(ctx context.Context, selector string) (string, error) {
	el, err := s.element(selector)
	if err != nil {
		return "", err
	}
	return el.Text, nil
}

func (s *scriptedSession) Value(ctx context.Context, selector string) (string, error) {
	el, err := s.element(selector)
	if err != nil {
		return "", err
	}
	return el.Value, nil
}

func (s *scriptedSession) Count(ctx context.Context, selector string) (int, error) {
	if s.page == nil {
		return 0, fmt.Errorf("no page loaded")
	}
	el, ok := s.elements[selector]
	if !ok {
		return 0, nil
	}
	if el.Count > 0 {
		return el.Count, nil
	}
	return 1, nil
}

func (s *scriptedSession) URL(ctx context.Context) (string, error) {
	if s.page == nil {
		return "", fmt.Errorf("no page loaded")
	}
	return s.url, nil
}

func (s *scriptedSession) Title(ctx context.Context) (string, error) {
	if s.page == nil {
		return "", fmt.Errorf("no page loaded")
	}
	return s.page.Title, nil
}

func (s *scriptedSession) SetViewport(ctx context.Context, vp models.Viewport) error {
	s.viewport = vp
	return nil
}

// Screenshot synthesizes a capture whose pixels are a pure function of the
// rendered content, so identical pages produce identical baselines and any
// content change flips the visual comparison.
func (s *scriptedSession) Screenshot(ctx context.Context) ([]byte, error) {
	if s.page == nil {
		return nil, fmt.Errorf("no page loaded")
	}
	if s.page.Screenshot != nil {
		return s.page.Screenshot, nil
	}

	h := sha256.New()
	fmt.Fprintf(h, "%s|%s", s.url, s.page.Title)
	selectors := make([]string, 0, len(s.elements))
	for sel := range s.elements {
		selectors = append(selectors, sel)
	}
	sort.Strings(selectors)
	for _, sel := range selectors {
		el := s.elements[sel]
		fmt.Fprintf(h, "|%s=%s:%s:%t", sel, el.Text, el.Value, el.Visible)
	}
	sum := h.Sum(nil)

	img := image.NewRGBA(image.Rect(0, 0, 120, 80))
	fill := color.RGBA{R: sum[0], G: sum[1], B: sum[2], A: 255}
	for y := 0; y < 80; y++ {
		for x := 0; x < 120; x++ {
			img.Set(x, y, fill)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *scriptedSession) Metrics(ctx context.Context) (*models.PerformanceCapture, error) {
	if s.page == nil {
		return nil, fmt.Errorf("no page loaded")
	}
	if s.page.Metrics != nil {
		copied := *s.page.Metrics
		return &copied, nil
	}
	load, dcl, fcp := 800.0, 500.0, 600.0
	return &models.PerformanceCapture{
		LoadTimeMS:         &load,
		DOMContentLoadedMS: &dcl,
		FirstContentfulMS:  &fcp,
		ResourceCount:      10,
		ResourceBytes:      350_000,
	}, nil
}

func (s *scriptedSession) Accessibility(ctx context.Context) (*AccessibilityScan, error) {
	if s.page == nil {
		return nil, fmt.Errorf("no page loaded")
	}
	if s.page.Accessibility == nil {
		return nil, fmt.Errorf("accessibility engine not available")
	}
	copied := *s.page.Accessibility
	copied.Violations = append([]models.AccessibilityViolation(nil), s.page.Accessibility.Violations...)
	copied.Incomplete = append([]string(nil), s.page.Accessibility.Incomplete...)
	return &copied, nil
}

func (s *scriptedSession) Layout(ctx context.Context) (*LayoutInfo, error) {
	if s.page == nil {
		return nil, fmt.Errorf("no page loaded")
	}
	layout := s.page.Layout
	if s.viewport.Width > 0 && s.viewport.Width < 768 && s.page.MobileLayout != nil {
		layout = s.page.MobileLayout
	}
	if layout == nil {
		return &LayoutInfo{HasViewportMeta: true}, nil
	}
	copied := *layout
	return &copied, nil
}

func (s *scriptedSession) ConsoleErrors(ctx context.Context) ([]string, error) {
	if s.page == nil {
		return nil, fmt.Errorf("no page loaded")
	}
	return append([]string(nil), s.page.ConsoleErrors...), nil
}

func (s *scriptedSession) Close(ctx context.Context) (*SessionEvidence, error) {
	s.page = nil
	s.elements = nil
	return &SessionEvidence{}, nil
}
