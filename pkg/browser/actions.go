package browser

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cruciblehq/crucible/pkg/models"
)

// visibilityPollInterval paces the visible/hidden assertion polls.
const visibilityPollInterval = 100 * time.Millisecond

// runActions executes the declared actions in order. A failed action is
// recorded and the sequence continues, preserving evidence beyond the
// first break.
func (s *Service) runActions(ctx context.Context, session Session, spec *models.UITestSpec) []models.ActionResult {
	results := make([]models.ActionResult, 0, len(spec.Actions))
	for i, action := range spec.Actions {
		start := time.Now()
		err := s.runAction(ctx, session, action)

		result := models.ActionResult{
			Index:      i,
			Type:       action.Type,
			Selector:   action.Selector,
			Success:    err == nil,
			DurationMS: time.Since(start).Milliseconds(),
		}
		if err != nil {
			result.Error = err.Error()
		}
		results = append(results, result)
	}
	return results
}

func (s *Service) runAction(ctx context.Context, session Session, action models.UIAction) error {
	opCtx, cancel := s.opContext(ctx, action.TimeoutMS, s.cfg.ActionTimeout)
	defer cancel()

	switch action.Type {
	case "click":
		return session.Click(opCtx, action.Selector)
	case "type":
		return session.Type(opCtx, action.Selector, action.StringValue())
	case "select":
		return session.Select(opCtx, action.Selector, action.StringValue())
	case "hover":
		return session.Hover(opCtx, action.Selector)
	case "press":
		return session.Press(opCtx, action.Selector, action.StringValue())
	case "wait":
		seconds, ok := action.FloatValue()
		if !ok {
			return fmt.Errorf("wait action requires a numeric value, got %v", action.Value)
		}
		select {
		case <-time.After(time.Duration(seconds * float64(time.Second))):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	case "scroll":
		if action.Selector != "" {
			return session.ScrollIntoView(opCtx, action.Selector)
		}
		pixels, ok := action.FloatValue()
		if !ok {
			return fmt.Errorf("scroll action requires a selector or pixel value")
		}
		return session.ScrollBy(opCtx, int(pixels))
	default:
		return fmt.Errorf("unknown action type %q", action.Type)
	}
}

// runAssertions evaluates every declared assertion in order, after all
// actions. Failures never abort the sequence.
func (s *Service) runAssertions(ctx context.Context, session Session, spec *models.UITestSpec) []models.AssertionResult {
	results := make([]models.AssertionResult, 0, len(spec.Assertions))
	for i, assertion := range spec.Assertions {
		result := s.runAssertion(ctx, session, assertion)
		result.Index = i
		results = append(results, result)
	}
	return results
}

func (s *Service) runAssertion(ctx context.Context, session Session, assertion models.UIAssertion) models.AssertionResult {
	result := models.AssertionResult{
		Type:     assertion.Type,
		Selector: assertion.Selector,
		Expected: assertion.Expected,
	}

	opCtx, cancel := s.opContext(ctx, assertion.TimeoutMS, s.cfg.AssertionTimeout)
	defer cancel()

	var (
		actual string
		passed bool
		err    error
	)
	switch assertion.Type {
	case "visible":
		passed, err = s.pollVisibility(opCtx, session, assertion.Selector, true)
		actual = visibilityString(passed)
	case "hidden":
		passed, err = s.pollVisibility(opCtx, session, assertion.Selector, false)
		actual = visibilityString(!passed)
	case "text":
		actual, err = session.Text(opCtx, assertion.Selector)
		passed = err == nil && strings.Contains(actual, assertion.Expected)
	case "value":
		actual, err = session.Value(opCtx, assertion.Selector)
		passed = err == nil && actual == assertion.Expected
	case "count":
		var n, want int
		n, err = session.Count(opCtx, assertion.Selector)
		actual = strconv.Itoa(n)
		if err == nil {
			want, err = strconv.Atoi(assertion.Expected)
			passed = err == nil && n == want
		}
	case "url":
		actual, err = session.URL(opCtx)
		passed = err == nil && strings.Contains(actual, assertion.Expected)
	case "title":
		actual, err = session.Title(opCtx)
		passed = err == nil && strings.Contains(actual, assertion.Expected)
	default:
		err = fmt.Errorf("unknown assertion type %q", assertion.Type)
	}

	result.Actual = actual
	result.Passed = passed
	if err != nil {
		result.Error = err.Error()
		result.Passed = false
	}
	return result
}

// pollVisibility re-checks the element until it reaches the wanted state
// or the deadline passes. The final state decides the verdict.
func (s *Service) pollVisibility(ctx context.Context, session Session, selector string, want bool) (bool, error) {
	for {
		visible, err := session.IsVisible(ctx, selector)
		if err != nil {
			// Absent elements are simply not visible; other errors end the
			// poll.
			if ctx.Err() != nil {
				return false, nil
			}
			return false, err
		}
		if visible == want {
			return true, nil
		}

		select {
		case <-ctx.Done():
			return false, nil
		case <-time.After(visibilityPollInterval):
		}
	}
}

func visibilityString(visible bool) string {
	if visible {
		return "visible"
	}
	return "hidden"
}

func (s *Service) opContext(ctx context.Context, overrideMS *int, def time.Duration) (context.Context, context.CancelFunc) {
	timeout := def
	if overrideMS != nil && *overrideMS > 0 {
		timeout = time.Duration(*overrideMS) * time.Millisecond
	}
	return context.WithTimeout(ctx, timeout)
}
