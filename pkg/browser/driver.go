// Package browser executes UI flow scenarios against a browser engine:
// ordered actions, declared-order assertions, visual regression,
// accessibility and performance capture, and a responsive layout sweep.
// The engine itself sits behind the Driver interface; the service never
// talks to a real browser directly.
package browser

import (
	"context"

	"github.com/cruciblehq/crucible/pkg/models"
)

// SessionOptions configure one isolated browser context.
type SessionOptions struct {
	Browser  models.BrowserType `json:"browser"`
	Viewport models.Viewport    `json:"viewport"`

	// Video and trace recording are debug-environment only.
	RecordVideo bool `json:"record_video"`
	RecordTrace bool `json:"record_trace"`
}

// LayoutInfo carries the per-viewport layout facts the responsive checks
// evaluate. Counters are page-wide.
type LayoutInfo struct {
	HasHorizontalScroll bool `json:"has_horizontal_scroll"`
	HasViewportMeta     bool `json:"has_viewport_meta"`

	Images           int `json:"images"`
	ResponsiveImages int `json:"responsive_images"`

	TouchTargets      int `json:"touch_targets"`
	SmallTouchTargets int `json:"small_touch_targets"` // interactive elements under 44px

	FixedWidthElements int `json:"fixed_width_elements"`

	TextNodes         int `json:"text_nodes"`
	ReadableTextNodes int `json:"readable_text_nodes"` // font size >= 16px
}

// AccessibilityScan is the raw outcome of an axe-style engine scan, before
// the service derives the score.
type AccessibilityScan struct {
	Violations []models.AccessibilityViolation `json:"violations"`
	Passes     int                             `json:"passes"`
	Incomplete []string                        `json:"incomplete"`
}

// Evidence paths returned by the engine when a session closes. Empty when
// nothing was recorded.
type SessionEvidence struct {
	VideoPath string `json:"video_path,omitempty"`
	TracePath string `json:"trace_path,omitempty"`
}

// Driver abstracts the browser engine. Each browser type is launched at
// most once per driver lifetime; sessions are isolated contexts within it.
type Driver interface {
	// Name identifies the engine in health output.
	Name() string

	// Healthy reports whether the engine is reachable.
	Healthy(ctx context.Context) error

	// NewSession opens an isolated context. The caller must Close it.
	NewSession(ctx context.Context, opts SessionOptions) (Session, error)
}

// Session is one isolated page context. All operations honour ctx
// deadlines; visibility polling for assertions happens above this
// interface.
type Session interface {
	Navigate(ctx context.Context, url string) error

	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	Select(ctx context.Context, selector, value string) error
	Hover(ctx context.Context, selector string) error
	Press(ctx context.Context, selector, key string) error
	ScrollIntoView(ctx context.Context, selector string) error
	ScrollBy(ctx context.Context, pixels int) error

	IsVisible(ctx context.Context, selector string) (bool, error)
	Text(ctx context.Context, selector string) (string, error)
	Value(ctx context.Context, selector string) (string, error)
	Count(ctx context.Context, selector string) (int, error)
	URL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)

	SetViewport(ctx context.Context, vp models.Viewport) error
	Screenshot(ctx context.Context) ([]byte, error)

	Metrics(ctx context.Context) (*models.PerformanceCapture, error)
	Accessibility(ctx context.Context) (*AccessibilityScan, error)
	Layout(ctx context.Context) (*LayoutInfo, error)
	ConsoleErrors(ctx context.Context) ([]string, error)

	// Close destroys the context and returns any recorded evidence.
	Close(ctx context.Context) (*SessionEvidence, error)
}
