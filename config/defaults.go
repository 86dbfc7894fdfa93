package config

import "github.com/spf13/viper"

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "strata.db")

	// Auto-enhancement defaults. The thresholds gate schema promotion;
	// loosening them makes the schema grow faster and noisier.
	v.SetDefault("enhance.frequency_threshold", 3)
	v.SetDefault("enhance.confidence_threshold", 0.85)
	v.SetDefault("enhance.ticker_interval_seconds", 30)
	v.SetDefault("enhance.sample_limit", 10)

	v.SetDefault("log.json", false)
}
