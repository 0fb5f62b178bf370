package config

import "time"

// ServerConfig holds HTTP server settings shared by all hosted services.
type ServerConfig struct {
	// Host is the listen address.
	Host string `yaml:"host"`

	// Port is the listen port.
	Port int `yaml:"port"`

	// AllowedWSOrigins is additional WebSocket origin patterns beyond the
	// server's own host (supports wildcards, e.g. "*.example.com").
	AllowedWSOrigins []string `yaml:"allowed_ws_origins"`

	// ReadTimeout bounds request header+body reads.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// ShutdownTimeout is the max time to wait for in-flight requests
	// during graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DefaultServerConfig returns the built-in server defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}
