// Package config holds the BrandForge configuration, loaded with Viper from a
// TOML file plus BRANDFORGE_* environment variables.
package config

// Config represents the core BrandForge configuration
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Server     ServerConfig     `mapstructure:"server"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Generation GenerationConfig `mapstructure:"generation"`
	Progress   ProgressConfig   `mapstructure:"progress"`
	Artifacts  ArtifactsConfig  `mapstructure:"artifacts"`
	Log        LogConfig        `mapstructure:"log"`
}

// ArtifactsConfig configures where produced artifacts are written
type ArtifactsConfig struct {
	Dir string `mapstructure:"dir"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the BrandForge HTTP server
type ServerConfig struct {
	Port           *int     `mapstructure:"port"` // nil = default 8710, 0 is invalid (omit for default)
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DefaultServerPort is used when server.port is omitted.
const DefaultServerPort = 8710

// EngineConfig configures the async generation job engine
type EngineConfig struct {
	// ItemConcurrency is the number of items of a single job processed in
	// parallel. 1 = sequential item processing.
	ItemConcurrency int `mapstructure:"item_concurrency"`

	// MaxInFlightJobs bounds how many jobs may be processing at once across
	// all tenants. Jobs submitted beyond the bound stay pending until a slot
	// frees; they are never dropped.
	MaxInFlightJobs int `mapstructure:"max_in_flight_jobs"`
}

// GenerationConfig configures the external generation backend and the
// poll/timeout/retry policy applied on top of it.
type GenerationConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`

	PollIntervalMS     int `mapstructure:"poll_interval_ms"`     // fixed interval between handle polls
	MaxPolls           int `mapstructure:"max_polls"`            // poll-count timeout
	HardTimeoutSeconds int `mapstructure:"hard_timeout_seconds"` // wall-clock ceiling per attempt
	RetryDelayMS       int `mapstructure:"retry_delay_ms"`       // delay before the single retry

	// Client-side pacing of backend calls (token bucket). 0 = unpaced.
	MaxCallsPerSecond float64 `mapstructure:"max_calls_per_second"`

	// AllowPrivateBackend permits base_url to point at localhost or a private
	// address, as the default local backend does. Artifact location downloads
	// off the backend's own host stay blocked regardless.
	AllowPrivateBackend bool `mapstructure:"allow_private_backend"`
}

// ProgressConfig configures the time-based progress heuristic for single-unit
// jobs. ExpectedSeconds values are calibration numbers per job kind, not
// measured durations; see engine.EstimatePercent.
type ProgressConfig struct {
	ExpectedSeconds map[string]int `mapstructure:"expected_seconds"`
}

// LogConfig configures logging output
type LogConfig struct {
	JSON bool `mapstructure:"json"`
}
