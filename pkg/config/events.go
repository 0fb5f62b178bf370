package config

import "time"

// EventsConfig controls the in-process event bus and WebSocket fan-out.
type EventsConfig struct {
	// ReplaySize is the per-channel replay ring capacity. Clients that
	// fall further behind get a catchup overflow and must reload.
	ReplaySize int `yaml:"replay_size"`

	// WriteTimeout bounds one WebSocket send; slow clients are dropped.
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DefaultEventsConfig returns the built-in events defaults.
func DefaultEventsConfig() *EventsConfig {
	return &EventsConfig{
		ReplaySize:   200,
		WriteTimeout: 5 * time.Second,
	}
}
