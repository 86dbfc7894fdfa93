// Package config loads strata configuration via Viper from a TOML file,
// environment variables (STRATA_*) and built-in defaults.
package config

// Config represents the strata configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Enhance  EnhanceConfig  `mapstructure:"enhance"`
	Log      LogConfig      `mapstructure:"log"`
}

// DatabaseConfig configures the SQLite database.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// EnhanceConfig configures the auto-enhancement engine and its scheduler.
type EnhanceConfig struct {
	// FrequencyThreshold is the minimum sighting count before a fragment
	// can be promoted (default: 3).
	FrequencyThreshold int `mapstructure:"frequency_threshold"`

	// ConfidenceThreshold is the minimum type-agreement fraction before a
	// fragment can be promoted (default: 0.85).
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`

	// TickerIntervalSeconds is how often the scheduler scans the fragment
	// ledger (default: 30).
	TickerIntervalSeconds int `mapstructure:"ticker_interval_seconds"`

	// SampleLimit bounds how many fragment values are retained for type
	// inference (default: 10).
	SampleLimit int `mapstructure:"sample_limit"`
}

// LogConfig configures logging output.
type LogConfig struct {
	JSON bool `mapstructure:"json"`
}
