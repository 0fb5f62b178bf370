package browser

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/cruciblehq/crucible/pkg/models"
)

// viewportPreset is one device class the responsive sweep renders the page
// under.
type viewportPreset struct {
	name     string
	viewport models.Viewport
	mobile   bool
}

// responsivePresets covers the device classes from small phones to 4K
// desktops. Order is the report order.
var responsivePresets = []viewportPreset{
	{name: "mobile_portrait", viewport: models.Viewport{Width: 375, Height: 667}, mobile: true},
	{name: "mobile_landscape", viewport: models.Viewport{Width: 667, Height: 375}, mobile: true},
	{name: "tablet", viewport: models.Viewport{Width: 768, Height: 1024}},
	{name: "desktop_small", viewport: models.Viewport{Width: 1366, Height: 768}},
	{name: "desktop_medium", viewport: models.Viewport{Width: 1920, Height: 1080}},
	{name: "desktop_large", viewport: models.Viewport{Width: 2560, Height: 1440}},
	{name: "desktop_xl", viewport: models.Viewport{Width: 3840, Height: 2160}},
}

// runResponsiveSweep renders the page in a fresh session per preset and
// scores its layout. Each preset session takes a pool slot, so the sweep
// queues behind regular executions instead of bursting past the context
// limit. The caller must not hold a pool slot.
func (s *Service) runResponsiveSweep(ctx context.Context, spec *models.UITestSpec) (*models.ResponsiveReport, error) {
	checks := make([]models.ViewportCheck, len(responsivePresets))

	g, gctx := errgroup.WithContext(ctx)
	for i, preset := range responsivePresets {
		g.Go(func() error {
			release, err := s.pool.Acquire(gctx)
			if err != nil {
				return fmt.Errorf("responsive sweep aborted: %w", err)
			}
			defer release()
			checks[i] = s.checkViewport(gctx, spec, preset)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &models.ResponsiveReport{Checks: checks}
	var sum float64
	for _, c := range checks {
		sum += c.Score
	}
	report.Score = sum / float64(len(checks))
	return report, nil
}

func (s *Service) checkViewport(ctx context.Context, spec *models.UITestSpec, preset viewportPreset) models.ViewportCheck {
	check := models.ViewportCheck{Preset: preset.name, Viewport: preset.viewport}

	session, err := s.driver.NewSession(ctx, SessionOptions{
		Browser:  spec.Browser,
		Viewport: preset.viewport,
	})
	if err != nil {
		check.Issues = append(check.Issues, fmt.Sprintf("session unavailable: %v", err))
		return check
	}
	defer session.Close(ctx)

	if err := session.Navigate(ctx, spec.PageURL); err != nil {
		check.Issues = append(check.Issues, fmt.Sprintf("navigation failed: %v", err))
		return check
	}

	layout, err := session.Layout(ctx)
	if err != nil {
		check.Issues = append(check.Issues, fmt.Sprintf("layout inspection failed: %v", err))
		return check
	}

	check.Score, check.Issues = scoreLayout(layout, preset)
	return check
}

// scoreLayout grades one rendered viewport. Each detected problem subtracts
// a fixed penalty from a perfect 1.0; the floor is 0.
func scoreLayout(layout *LayoutInfo, preset viewportPreset) (float64, []string) {
	score := 1.0
	var issues []string

	if layout.HasHorizontalScroll {
		score -= 0.25
		issues = append(issues, "content overflows horizontally")
	}
	if !layout.HasViewportMeta {
		score -= 0.20
		issues = append(issues, "missing viewport meta tag")
	}
	if layout.Images > 0 {
		ratio := float64(layout.ResponsiveImages) / float64(layout.Images)
		if ratio < 0.5 {
			score -= 0.15
			issues = append(issues, fmt.Sprintf("only %d of %d images are responsive", layout.ResponsiveImages, layout.Images))
		}
	}
	if preset.mobile && layout.SmallTouchTargets > 0 {
		score -= 0.20
		issues = append(issues, fmt.Sprintf("%d touch targets below 44px", layout.SmallTouchTargets))
	}
	if layout.FixedWidthElements > 0 {
		score -= 0.10
		issues = append(issues, fmt.Sprintf("%d fixed-width elements", layout.FixedWidthElements))
	}
	if layout.TextNodes > 0 {
		ratio := float64(layout.ReadableTextNodes) / float64(layout.TextNodes)
		if ratio < 0.9 {
			score -= 0.10
			issues = append(issues, "text below readable size on this viewport")
		}
	}

	if score < 0 {
		score = 0
	}
	sort.Strings(issues)
	return score, issues
}
