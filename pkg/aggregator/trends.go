package aggregator

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/cruciblehq/crucible/pkg/models"
)

// Correlation below this magnitude means no usable direction signal.
const stableCorrelationThreshold = 0.3

// Coefficient of variation above this marks a series volatile regardless of
// slope.
const volatileCVThreshold = 0.5

// Points deviating more than this many standard deviations from the series
// mean are anomalous.
const anomalySigma = 2.0

// sample is one observation of a metric series.
type sample struct {
	at          time.Time
	value       float64
	executionID string
}

// metricSeries extracts the analysable series from a result set: the
// headline score, pass/fail as success_rate, duration_ms, and one series
// per observed quality metric. Each series is sorted by observation time.
func metricSeries(results []*models.TestResult) map[string][]sample {
	series := make(map[string][]sample)
	add := func(name string, r *models.TestResult, v float64) {
		series[name] = append(series[name], sample{at: r.CreatedAt, value: v, executionID: r.ExecutionID})
	}
	for _, r := range results {
		add("score", r, r.Score)
		if r.Passed {
			add("success_rate", r, 1)
		} else {
			add("success_rate", r, 0)
		}
		add("duration_ms", r, float64(r.DurationMS))
		for metric, score := range r.QualityScores {
			add("quality_"+strings.ToLower(string(metric)), r, score)
		}
	}
	for name := range series {
		s := series[name]
		sort.SliceStable(s, func(i, j int) bool { return s[i].at.Before(s[j].at) })
	}
	return series
}

// lowerIsBetter reports whether decreasing values of the metric are an
// improvement.
func lowerIsBetter(metric string) bool {
	return metric == "duration_ms" || strings.HasSuffix(metric, "_ms")
}

// analyzeTrends runs the daily-mean regression over every series with at
// least minPoints samples. Output order is deterministic (metric name).
func analyzeTrends(results []*models.TestResult, minPoints int) []models.TrendAnalysis {
	series := metricSeries(results)
	names := make([]string, 0, len(series))
	for name := range series {
		names = append(names, name)
	}
	sort.Strings(names)

	var trends []models.TrendAnalysis
	for _, name := range names {
		samples := series[name]
		if len(samples) < minPoints {
			continue
		}
		trends = append(trends, analyzeSeries(name, samples))
	}
	return trends
}

func analyzeSeries(name string, samples []sample) models.TrendAnalysis {
	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.value
	}
	m := mean(values)
	sd := stddev(values, m)
	cv := 0.0
	if m != 0 {
		cv = sd / math.Abs(m)
	}

	slope, r := linearRegression(dailyMeans(samples))

	direction := models.TrendStable
	switch {
	case cv > volatileCVThreshold:
		direction = models.TrendVolatile
	case math.Abs(r) < stableCorrelationThreshold:
		direction = models.TrendStable
	case lowerIsBetter(name):
		if slope < 0 {
			direction = models.TrendImproving
		} else {
			direction = models.TrendDeclining
		}
	default:
		if slope > 0 {
			direction = models.TrendImproving
		} else {
			direction = models.TrendDeclining
		}
	}

	return models.TrendAnalysis{
		Metric:                 name,
		Direction:              direction,
		Slope:                  slope,
		Correlation:            r,
		Confidence:             clamp01(math.Abs(r)),
		DataPoints:             len(samples),
		CoefficientOfVariation: cv,
	}
}

// dailyMeans buckets samples by UTC day and returns the per-day means in
// chronological order.
func dailyMeans(samples []sample) []float64 {
	type bucket struct {
		sum   float64
		count int
	}
	buckets := make(map[time.Time]*bucket)
	for _, s := range samples {
		day := s.at.UTC().Truncate(24 * time.Hour)
		b, ok := buckets[day]
		if !ok {
			b = &bucket{}
			buckets[day] = b
		}
		b.sum += s.value
		b.count++
	}
	days := make([]time.Time, 0, len(buckets))
	for day := range buckets {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	means := make([]float64, len(days))
	for i, day := range days {
		b := buckets[day]
		means[i] = b.sum / float64(b.count)
	}
	return means
}

// linearRegression fits y against the implicit x-axis 0..n-1 and returns
// the least-squares slope and the Pearson correlation. Degenerate series
// (fewer than two points, zero variance) yield 0, 0.
func linearRegression(ys []float64) (slope, r float64) {
	n := len(ys)
	if n < 2 {
		return 0, 0
	}
	xMean := float64(n-1) / 2
	yMean := mean(ys)

	var sxx, sxy, syy float64
	for i, y := range ys {
		dx := float64(i) - xMean
		dy := y - yMean
		sxx += dx * dx
		sxy += dx * dy
		syy += dy * dy
	}
	if sxx == 0 {
		return 0, 0
	}
	slope = sxy / sxx
	if syy == 0 {
		return slope, 0
	}
	return slope, sxy / math.Sqrt(sxx*syy)
}

// detectAnomalies flags samples deviating more than two standard deviations
// from their series mean. Only series with at least ten samples are
// examined; anomalies feed insights, never alerts directly.
func detectAnomalies(results []*models.TestResult) []models.Anomaly {
	series := metricSeries(results)
	names := make([]string, 0, len(series))
	for name := range series {
		names = append(names, name)
	}
	sort.Strings(names)

	var anomalies []models.Anomaly
	for _, name := range names {
		samples := series[name]
		if len(samples) < 10 {
			continue
		}
		values := make([]float64, len(samples))
		for i, s := range samples {
			values[i] = s.value
		}
		m := mean(values)
		sd := stddev(values, m)
		if sd == 0 {
			continue
		}
		for _, s := range samples {
			if dev := math.Abs(s.value - m); dev > anomalySigma*sd {
				anomalies = append(anomalies, models.Anomaly{
					Metric:      name,
					ExecutionID: s.executionID,
					Timestamp:   s.at,
					Value:       s.value,
					Mean:        m,
					StdDev:      sd,
					Deviation:   dev / sd,
				})
			}
		}
	}
	return anomalies
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
