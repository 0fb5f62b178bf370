package aggregator

import (
	"math"
	"sort"

	"github.com/cruciblehq/crucible/pkg/models"
)

// summarize folds a result set into a TestSummary. An empty set produces
// the zero value.
func summarize(results []*models.TestResult) models.TestSummary {
	s := models.TestSummary{TotalTests: len(results)}
	if len(results) == 0 {
		return s
	}
	var scoreSum, durationSum float64
	for _, r := range results {
		if r.Passed {
			s.Passed++
		} else {
			s.Failed++
		}
		scoreSum += r.Score
		durationSum += float64(r.DurationMS)
	}
	n := float64(len(results))
	s.PassRate = float64(s.Passed) / n
	s.AvgScore = scoreSum / n
	s.AvgDurationMS = durationSum / n
	return s
}

// summarizeByTestType groups results by test type.
func summarizeByTestType(results []*models.TestResult) map[models.TestType]models.TestSummary {
	if len(results) == 0 {
		return nil
	}
	groups := make(map[models.TestType][]*models.TestResult)
	for _, r := range results {
		groups[r.TestType] = append(groups[r.TestType], r)
	}
	out := make(map[models.TestType]models.TestSummary, len(groups))
	for tt, rs := range groups {
		out[tt] = summarize(rs)
	}
	return out
}

// summarizeByService groups results by the producing service, the leading
// token of the execution ID.
func summarizeByService(results []*models.TestResult) map[string]models.TestSummary {
	if len(results) == 0 {
		return nil
	}
	groups := make(map[string][]*models.TestResult)
	for _, r := range results {
		svc := models.ServiceFromExecutionID(r.ExecutionID)
		groups[svc] = append(groups[svc], r)
	}
	out := make(map[string]models.TestSummary, len(groups))
	for svc, rs := range groups {
		out[svc] = summarize(rs)
	}
	return out
}

// performanceSummary aggregates duration and the per-result performance
// metrics across the set.
func performanceSummary(results []*models.TestResult) *models.PerformanceSummary {
	if len(results) == 0 {
		return nil
	}
	durations := make([]float64, 0, len(results))
	series := make(map[string][]float64)
	for _, r := range results {
		durations = append(durations, float64(r.DurationMS))
		for name, v := range r.PerformanceMetrics {
			series[name] = append(series[name], v)
		}
	}
	sort.Float64s(durations)

	ps := &models.PerformanceSummary{
		AvgDurationMS: mean(durations),
		P95DurationMS: percentile(durations, 95),
	}
	if len(series) > 0 {
		ps.Metrics = make(map[string]models.MetricStats, len(series))
		for name, vs := range series {
			sort.Float64s(vs)
			ps.Metrics[name] = models.MetricStats{
				Count: len(vs),
				Mean:  mean(vs),
				Min:   vs[0],
				Max:   vs[len(vs)-1],
				P95:   percentile(vs, 95),
			}
		}
	}
	return ps
}

// percentile returns the p-th percentile (0..100) of ascending-sorted
// samples, interpolating linearly between adjacent ranks.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	frac := rank - float64(lower)
	if frac == 0 {
		return sorted[lower]
	}
	return sorted[lower] + frac*(sorted[lower+1]-sorted[lower])
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64, m float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)))
}
