package aggregator

import (
	"fmt"
	"math"
	"sort"

	"github.com/cruciblehq/crucible/pkg/models"
)

const (
	// recentShiftWindow is how many trailing results the regression and
	// improvement detector compares against the preceding window.
	recentShiftWindow = 10

	// shiftDelta triggers the recent-shift detector; shiftHighDelta raises
	// its priority to HIGH.
	shiftDelta     = 0.1
	shiftHighDelta = 0.2

	// Pattern detector thresholds over score-scaled series.
	patternConsistentMaxStdDev = 0.05
	patternConsistentMinMean   = 0.8
	patternVariableStdDev      = 0.2

	// comparativeDelta triggers the current-vs-historical comparison.
	comparativeDelta = 0.05
)

// detectInsights runs the quality insight detectors over a window of
// results. Anomalies computed for the same window surface here as grouped
// insights. Output order is deterministic: recent shift, per-metric
// patterns, comparative, anomalies.
func detectInsights(results []*models.TestResult, anomalies []models.Anomaly, minPoints int) []models.QualityInsight {
	ordered := make([]*models.TestResult, len(results))
	copy(ordered, results)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].CreatedAt.Before(ordered[j].CreatedAt) })

	var insights []models.QualityInsight
	if in, ok := detectRecentShift(ordered); ok {
		insights = append(insights, in)
	}
	insights = append(insights, detectPatterns(ordered, minPoints)...)
	if in, ok := detectComparative(ordered, minPoints); ok {
		insights = append(insights, in)
	}
	insights = append(insights, anomalyInsights(anomalies)...)
	return insights
}

// detectRecentShift compares the mean score of the trailing window against
// everything before it.
func detectRecentShift(ordered []*models.TestResult) (models.QualityInsight, bool) {
	if len(ordered) <= recentShiftWindow {
		return models.QualityInsight{}, false
	}
	split := len(ordered) - recentShiftWindow
	previous := scoresOf(ordered[:split])
	recent := scoresOf(ordered[split:])

	previousMean := mean(previous)
	recentMean := mean(recent)
	delta := recentMean - previousMean
	if math.Abs(delta) <= shiftDelta {
		return models.QualityInsight{}, false
	}

	insightType := models.InsightImprovement
	title := "Recent quality improvement"
	recommendations := []string{"Record the current configuration as the new quality baseline"}
	if delta < 0 {
		insightType = models.InsightRegression
		title = "Recent quality regression"
		recommendations = []string{
			"Review changes deployed since the regression window began",
			"Re-run the affected scenarios to confirm the drop",
		}
	}
	priority := models.PriorityMedium
	if math.Abs(delta) > shiftHighDelta {
		priority = models.PriorityHigh
	}

	return models.QualityInsight{
		Type:       insightType,
		Confidence: clamp01(math.Abs(delta) * 5),
		Title:      title,
		Description: fmt.Sprintf("Mean score moved from %.2f to %.2f over the last %d results",
			previousMean, recentMean, recentShiftWindow),
		AffectedMetrics: []string{"score"},
		Evidence: map[string]any{
			"previous_mean":  previousMean,
			"recent_mean":    recentMean,
			"delta":          delta,
			"recent_count":   len(recent),
			"previous_count": len(previous),
		},
		Recommendations: recommendations,
		Priority:        priority,
	}, true
}

// detectPatterns examines every score-scaled series with enough samples for
// consistently high or unusually spread readings.
func detectPatterns(ordered []*models.TestResult, minPoints int) []models.QualityInsight {
	series := metricSeries(ordered)
	names := make([]string, 0, len(series))
	for name := range series {
		if !lowerIsBetter(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var insights []models.QualityInsight
	for _, name := range names {
		samples := series[name]
		if len(samples) < minPoints {
			continue
		}
		values := make([]float64, len(samples))
		for i, s := range samples {
			values[i] = s.value
		}
		m := mean(values)
		sd := stddev(values, m)

		switch {
		case sd <= patternConsistentMaxStdDev && m >= patternConsistentMinMean:
			insights = append(insights, models.QualityInsight{
				Type:       models.InsightPattern,
				Confidence: clamp01(1 - sd),
				Title:      fmt.Sprintf("Consistent %s performance", name),
				Description: fmt.Sprintf("%s held a %.2f mean with %.3f standard deviation across %d results",
					name, m, sd, len(values)),
				AffectedMetrics: []string{name},
				Evidence:        map[string]any{"mean": m, "std_dev": sd, "samples": len(values)},
				Priority:        models.PriorityLow,
			})
		case sd > patternVariableStdDev:
			insights = append(insights, models.QualityInsight{
				Type:       models.InsightPattern,
				Confidence: clamp01(sd / (2 * patternVariableStdDev)),
				Title:      fmt.Sprintf("Variable %s performance", name),
				Description: fmt.Sprintf("%s readings spread %.3f standard deviation around a %.2f mean across %d results",
					name, sd, m, len(values)),
				AffectedMetrics: []string{name},
				Evidence:        map[string]any{"mean": m, "std_dev": sd, "samples": len(values)},
				Recommendations: []string{fmt.Sprintf("Investigate nondeterminism behind the %s readings", name)},
				Priority:        models.PriorityMedium,
			})
		}
	}
	return insights
}

// detectComparative splits the window into halves of equal size and
// compares their mean scores.
func detectComparative(ordered []*models.TestResult, minPoints int) (models.QualityInsight, bool) {
	half := len(ordered) / 2
	if half < minPoints {
		return models.QualityInsight{}, false
	}
	historical := mean(scoresOf(ordered[:half]))
	current := mean(scoresOf(ordered[len(ordered)-half:]))
	delta := current - historical
	if math.Abs(delta) <= comparativeDelta {
		return models.QualityInsight{}, false
	}

	direction := "improved"
	if delta < 0 {
		direction = "degraded"
	}
	priority := models.PriorityLow
	if math.Abs(delta) > 2*comparativeDelta {
		priority = models.PriorityMedium
	}

	return models.QualityInsight{
		Type:       models.InsightComparative,
		Confidence: clamp01(math.Abs(delta) * 10),
		Title:      fmt.Sprintf("Quality %s against the prior window", direction),
		Description: fmt.Sprintf("Mean score %.2f over the current %d results vs %.2f previously",
			current, half, historical),
		AffectedMetrics: []string{"score"},
		Evidence: map[string]any{
			"current_mean":    current,
			"historical_mean": historical,
			"delta":           delta,
			"window_size":     half,
		},
		Priority: priority,
	}, true
}

// anomalyInsights groups anomalies by metric into one insight each.
func anomalyInsights(anomalies []models.Anomaly) []models.QualityInsight {
	if len(anomalies) == 0 {
		return nil
	}
	byMetric := make(map[string][]models.Anomaly)
	for _, a := range anomalies {
		byMetric[a.Metric] = append(byMetric[a.Metric], a)
	}
	metrics := make([]string, 0, len(byMetric))
	for m := range byMetric {
		metrics = append(metrics, m)
	}
	sort.Strings(metrics)

	insights := make([]models.QualityInsight, 0, len(metrics))
	for _, metric := range metrics {
		group := byMetric[metric]
		maxDeviation := 0.0
		var executionIDs []string
		for _, a := range group {
			if a.Deviation > maxDeviation {
				maxDeviation = a.Deviation
			}
			if len(executionIDs) < 3 && a.ExecutionID != "" {
				executionIDs = append(executionIDs, a.ExecutionID)
			}
		}
		priority := models.PriorityMedium
		if maxDeviation > 3 {
			priority = models.PriorityHigh
		}
		insights = append(insights, models.QualityInsight{
			Type:       models.InsightAnomaly,
			Confidence: clamp01(maxDeviation / 4),
			Title:      fmt.Sprintf("Anomalous %s readings", metric),
			Description: fmt.Sprintf("%d %s readings deviated more than %.0f standard deviations from the mean (worst %.1fσ)",
				len(group), metric, anomalySigma, maxDeviation),
			AffectedMetrics: []string{metric},
			Evidence: map[string]any{
				"count":         len(group),
				"max_deviation": maxDeviation,
				"execution_ids": executionIDs,
			},
			Recommendations: []string{"Inspect the flagged executions for environmental interference"},
			Priority:        priority,
		})
	}
	return insights
}

func scoresOf(results []*models.TestResult) []float64 {
	out := make([]float64, len(results))
	for i, r := range results {
		out[i] = r.Score
	}
	return out
}
