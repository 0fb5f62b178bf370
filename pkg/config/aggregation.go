package config

import "time"

// AggregationConfig controls the result aggregator's sliding window,
// trend analysis, and collection from remote executors.
type AggregationConfig struct {
	// WindowDays is the sliding-window age limit on stored results.
	WindowDays int `yaml:"window_days"`

	// MaxStoredResults caps the window by count; whichever of age and
	// count is hit first evicts.
	MaxStoredResults int `yaml:"max_stored_results"`

	// MinDataPointsForTrend is the minimum samples before a metric gets
	// trend analysis.
	MinDataPointsForTrend int `yaml:"min_data_points_for_trend"`

	// ExpectedTestsPerHour is the baseline cadence behind the report's
	// data_completeness value.
	ExpectedTestsPerHour float64 `yaml:"expected_tests_per_hour"`

	// PullSources lists remote executor base URLs to collect results
	// from. Empty in single-process deployments, where results arrive on
	// the bus.
	PullSources []string `yaml:"pull_sources"`

	// PullInterval is how often remote sources are polled.
	PullInterval time.Duration `yaml:"pull_interval"`

	// CleanupInterval is how often expired results are evicted.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`

	// ExportDir is where exported reports are written.
	ExportDir string `yaml:"export_dir"`
}

// DefaultAggregationConfig returns the built-in aggregation defaults.
func DefaultAggregationConfig() *AggregationConfig {
	return &AggregationConfig{
		WindowDays:            7,
		MaxStoredResults:      10000,
		MinDataPointsForTrend: 5,
		ExpectedTestsPerHour:  10,
		PullInterval:          30 * time.Second,
		CleanupInterval:       1 * time.Hour,
		ExportDir:             "data/reports",
	}
}
