package config

import "time"

// OrchestratorConfig controls session scheduling and the composite verdict.
type OrchestratorConfig struct {
	// MaxConcurrentSessions is the cap on sessions processed at once.
	// Session submissions beyond the cap are rejected with a capacity error.
	MaxConcurrentSessions int `yaml:"max_concurrent_sessions"`

	// QualityThreshold is the minimum overall score for a passing verdict.
	// overall_passed requires every phase passed AND overall_score >= this.
	QualityThreshold float64 `yaml:"quality_threshold"`

	// SessionTimeout is the maximum time one session can run.
	SessionTimeout time.Duration `yaml:"session_timeout"`

	// GracefulShutdownTimeout is the max time to wait for active sessions
	// to complete during shutdown. Should match SessionTimeout.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`
}

// DefaultOrchestratorConfig returns the built-in orchestrator defaults.
func DefaultOrchestratorConfig() *OrchestratorConfig {
	return &OrchestratorConfig{
		MaxConcurrentSessions:   5,
		QualityThreshold:        0.8,
		SessionTimeout:          15 * time.Minute,
		GracefulShutdownTimeout: 15 * time.Minute,
	}
}
