package config

import "time"

// AIQualityConfig controls the quality assessment executor.
type AIQualityConfig struct {
	// DefaultStrategy applies when an assessment request names none.
	DefaultStrategy string `yaml:"default_strategy"`

	// CacheTTLSeconds bounds how long cached assessments are served.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`

	// CacheMaxEntries bounds the cache size; oldest entries are evicted.
	CacheMaxEntries int `yaml:"cache_max_entries"`

	// RequestTimeout is the per-judge-call deadline.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// Judges is loaded from judges.yaml, keyed by judge name.
	Judges map[string]JudgeConfig `yaml:"-"`
}

// JudgeConfig describes one configured judge backend.
type JudgeConfig struct {
	// Provider selects the backend implementation.
	Provider JudgeProvider `yaml:"provider"`

	// Model is the provider model identifier (e.g. "gemini-2.5-flash").
	Model string `yaml:"model"`

	// APIKeyEnv is the env var holding the API key. Checked at startup
	// for providers that require one.
	APIKeyEnv string `yaml:"api_key_env,omitempty"`

	// Endpoint overrides the provider's default base URL (proxies,
	// OpenAI-compatible gateways).
	Endpoint string `yaml:"endpoint,omitempty"`

	// MaxTokens bounds the judge's response length.
	MaxTokens int `yaml:"max_tokens,omitempty"`

	// Temperature for the judge call. Low values keep verdicts stable.
	Temperature *float64 `yaml:"temperature,omitempty"`
}

// DefaultAIQualityConfig returns the built-in quality defaults.
func DefaultAIQualityConfig() *AIQualityConfig {
	return &AIQualityConfig{
		DefaultStrategy: "ensemble",
		CacheTTLSeconds: 3600,
		CacheMaxEntries: 1000,
		RequestTimeout:  60 * time.Second,
	}
}
