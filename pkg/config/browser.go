package config

import "time"

// BrowserAutomationConfig controls the browser test executor.
type BrowserAutomationConfig struct {
	// Engine selects the driver: "sidecar" (Playwright-protocol sidecar)
	// or "scripted" (no real browser).
	Engine BrowserEngine `yaml:"engine"`

	// EngineURL is the sidecar base URL. Required for the sidecar engine;
	// reachability is checked at startup.
	EngineURL string `yaml:"engine_url"`

	// MaxConcurrentContexts bounds the browser context pool. Acquisition
	// beyond the cap fails with an explicit limit-reached error.
	MaxConcurrentContexts int `yaml:"max_concurrent_contexts"`

	// ActionTimeout is the default per-action deadline.
	ActionTimeout time.Duration `yaml:"action_timeout"`

	// AssertionTimeout is the default per-assertion deadline.
	AssertionTimeout time.Duration `yaml:"assertion_timeout"`

	// EvidenceDir is where screenshots, videos, and traces are written.
	EvidenceDir string `yaml:"evidence_dir"`

	// BaselineDir is where visual regression baselines are kept.
	BaselineDir string `yaml:"baseline_dir"`
}

// DefaultBrowserAutomationConfig returns the built-in browser defaults.
func DefaultBrowserAutomationConfig() *BrowserAutomationConfig {
	return &BrowserAutomationConfig{
		Engine:                BrowserEngineScripted,
		MaxConcurrentContexts: 10,
		ActionTimeout:         30 * time.Second,
		AssertionTimeout:      5 * time.Second,
		EvidenceDir:           "data/evidence",
		BaselineDir:           "data/baselines",
	}
}
