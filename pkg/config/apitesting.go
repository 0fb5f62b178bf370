package config

import "time"

// APITestingConfig controls the API test executor.
type APITestingConfig struct {
	// RequestTimeout is the fallback HTTP timeout for probes whose
	// scenario does not set timeout_seconds.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// MaxLoadUsers caps concurrent_users on load test requests.
	MaxLoadUsers int `yaml:"max_load_users"`

	// MaxLoadDuration caps duration_seconds on load test requests.
	MaxLoadDuration time.Duration `yaml:"max_load_duration"`

	// InsecureSkipVerify disables TLS verification for probes against
	// targets with self-signed certificates. Staging environments only.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// DefaultAPITestingConfig returns the built-in API tester defaults.
func DefaultAPITestingConfig() *APITestingConfig {
	return &APITestingConfig{
		RequestTimeout:  30 * time.Second,
		MaxLoadUsers:    100,
		MaxLoadDuration: 5 * time.Minute,
	}
}
