package config

// TelemetryConfig controls tracing and metrics export.
type TelemetryConfig struct {
	// TracingEnabled turns OTLP trace export on.
	TracingEnabled bool `yaml:"tracing_enabled"`

	// OTLPEndpoint is the gRPC collector address.
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// SampleRatio is the trace sampling ratio in [0,1].
	SampleRatio float64 `yaml:"sample_ratio"`

	// MetricsEnabled exposes Prometheus metrics on /metrics. Nil means
	// enabled.
	MetricsEnabled *bool `yaml:"metrics_enabled,omitempty"`
}

// MetricsOn reports whether the Prometheus endpoint is enabled.
func (t *TelemetryConfig) MetricsOn() bool {
	return t.MetricsEnabled == nil || *t.MetricsEnabled
}

// DefaultTelemetryConfig returns the built-in telemetry defaults.
func DefaultTelemetryConfig() *TelemetryConfig {
	return &TelemetryConfig{
		TracingEnabled: false,
		OTLPEndpoint:   "localhost:4317",
		SampleRatio:    1.0,
	}
}
