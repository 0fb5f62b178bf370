package apitester

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/cruciblehq/crucible/pkg/models"
)

// intraSessionDelay keeps a load session from busy-looping the target.
const intraSessionDelay = 100 * time.Millisecond

// maxDistinctErrors bounds the error strings reported in LoadStats.
const maxDistinctErrors = 10

// sessionStats accumulates one logical user's observations.
type sessionStats struct {
	times     []float64 // milliseconds
	successes int
	failures  int
	errors    map[string]struct{}
}

// RunLoadTest drives the scenario's request from concurrentUsers parallel
// sessions for durationSeconds each. Failed requests are recorded, never
// fatal; the run completes even when every request fails. The error return
// is reserved for invalid input.
func (s *Service) RunLoadTest(ctx context.Context, sc *models.TestScenario, concurrentUsers, durationSeconds int) (*models.LoadStats, error) {
	spec := sc.APISpec
	if spec == nil {
		return nil, models.NewValidationError("api_spec", "required for load tests")
	}
	if concurrentUsers <= 0 {
		return nil, models.NewValidationError("concurrent_users", "must be > 0")
	}
	if concurrentUsers > s.cfg.MaxLoadUsers {
		return nil, models.NewValidationError("concurrent_users",
			fmt.Sprintf("exceeds configured maximum of %d", s.cfg.MaxLoadUsers))
	}
	if durationSeconds <= 0 {
		return nil, models.NewValidationError("duration_seconds", "must be > 0")
	}
	if limit := int(s.cfg.MaxLoadDuration.Seconds()); durationSeconds > limit {
		return nil, models.NewValidationError("duration_seconds",
			fmt.Sprintf("exceeds configured maximum of %ds", limit))
	}

	target := buildURL(spec, models.TestContext{})
	headers := mergeHeaders(spec, models.TestContext{})
	body, err := encodeBody(spec.RequestBody)
	if err != nil {
		return nil, models.NewValidationError("api_spec.request_body", err.Error())
	}

	// Optional global pacing shared by all sessions.
	var limiter *rate.Limiter
	if rps, ok := sc.PerformanceThresholds["max_requests_per_second"]; ok && rps > 0 {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}

	slog.Info("Load test started",
		"scenario_id", sc.ID,
		"concurrent_users", concurrentUsers,
		"duration_seconds", durationSeconds)

	duration := time.Duration(durationSeconds) * time.Second
	perSession := make([]sessionStats, concurrentUsers)
	wallStart := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < concurrentUsers; i++ {
		wg.Add(1)
		go func(session *sessionStats) {
			defer wg.Done()
			s.runSession(ctx, session, spec, target, headers, body, limiter, duration)
		}(&perSession[i])
	}
	wg.Wait()

	wallClock := time.Since(wallStart)
	stats := buildLoadStats(concurrentUsers, durationSeconds, wallClock, perSession)

	slog.Info("Load test finished",
		"scenario_id", sc.ID,
		"total_requests", stats.TotalRequests,
		"success_rate", stats.SuccessRate,
		"requests_per_second", stats.RequestsPerSecond)
	return stats, nil
}

// runSession loops one logical user from its own start time until the
// session budget is spent or the context is cancelled.
func (s *Service) runSession(ctx context.Context, session *sessionStats, spec *models.APITestSpec, target string, headers map[string]string, body []byte, limiter *rate.Limiter, duration time.Duration) {
	session.errors = make(map[string]struct{})
	localStart := time.Now()

	for time.Since(localStart) < duration {
		if ctx.Err() != nil {
			return
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
		}

		resp, err := s.do(spec.Method, target, headers, body, s.cfg.RequestTimeout)
		if err != nil {
			session.failures++
			session.errors[err.Error()] = struct{}{}
		} else {
			session.times = append(session.times, float64(resp.responseTime.Milliseconds()))
			if resp.statusCode == spec.ExpectedStatus {
				session.successes++
			} else {
				session.failures++
				session.errors[fmt.Sprintf("unexpected status %d", resp.statusCode)] = struct{}{}
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(intraSessionDelay):
		}
	}
}

func buildLoadStats(users, durationSeconds int, wallClock time.Duration, perSession []sessionStats) *models.LoadStats {
	stats := &models.LoadStats{
		ConcurrentUsers: users,
		DurationSeconds: float64(durationSeconds),
	}

	var times []float64
	distinct := make(map[string]struct{})
	for _, session := range perSession {
		stats.SuccessfulRequests += session.successes
		stats.FailedRequests += session.failures
		times = append(times, session.times...)
		for e := range session.errors {
			distinct[e] = struct{}{}
		}
	}
	stats.TotalRequests = stats.SuccessfulRequests + stats.FailedRequests

	if stats.TotalRequests > 0 {
		stats.SuccessRate = float64(stats.SuccessfulRequests) / float64(stats.TotalRequests)
	}
	if wallClock > 0 {
		stats.RequestsPerSecond = float64(stats.TotalRequests) / wallClock.Seconds()
	}

	if len(times) > 0 {
		sort.Float64s(times)
		var sum float64
		for _, t := range times {
			sum += t
		}
		stats.AverageResponseTimeMS = sum / float64(len(times))
		stats.MinResponseTimeMS = times[0]
		stats.MaxResponseTimeMS = times[len(times)-1]
		stats.P50ResponseTimeMS = Percentile(times, 50)
		stats.P95ResponseTimeMS = Percentile(times, 95)
	}

	for e := range distinct {
		if len(stats.Errors) == maxDistinctErrors {
			break
		}
		stats.Errors = append(stats.Errors, e)
	}
	sort.Strings(stats.Errors)
	return stats
}
