package config

// ScenariosConfig controls scenario storage and hot-reload.
type ScenariosConfig struct {
	// Dir is where scenario and collection JSON files are persisted.
	// Scenarios are stored as {id}.json, collections as collection_{id}.json.
	Dir string `yaml:"dir"`

	// Watch enables filesystem watching of Dir: scenario files edited
	// out-of-band are reloaded into the in-memory store.
	Watch bool `yaml:"watch"`
}

// DefaultScenariosConfig returns the built-in scenario storage defaults.
func DefaultScenariosConfig() *ScenariosConfig {
	return &ScenariosConfig{
		Dir:   "data/scenarios",
		Watch: false,
	}
}
