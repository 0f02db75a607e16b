package config

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "brandforge.db")

	// Engine defaults
	v.SetDefault("engine.item_concurrency", 1)   // Sequential items within a job
	v.SetDefault("engine.max_in_flight_jobs", 8) // Bound across all tenants

	// Generation backend defaults
	v.SetDefault("generation.base_url", "http://localhost:9510")
	v.SetDefault("generation.poll_interval_ms", 2000) // Poll handle every 2 seconds
	v.SetDefault("generation.max_polls", 60)          // Poll-count timeout: 2 minutes of polls
	v.SetDefault("generation.hard_timeout_seconds", 180)
	v.SetDefault("generation.retry_delay_ms", 1500)
	v.SetDefault("generation.max_calls_per_second", 4.0)
	// Must be true while the default base_url is a local backend; flip to
	// false when pointing at a hosted backend.
	v.SetDefault("generation.allow_private_backend", true)

	// Progress heuristic defaults. Calibration numbers per kind, flagged as a
	// product decision rather than a derived one; override in config.
	v.SetDefault("progress.expected_seconds", map[string]int{
		"video.promo":  180,
		"audio.jingle": 90,
	})

	// Artifact storage defaults
	v.SetDefault("artifacts.dir", "artifacts")

	// Logging defaults
	v.SetDefault("log.json", false)
}
