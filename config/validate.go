package config

import (
	"net/url"

	"github.com/brandforge/brandforge/errors"
	"github.com/brandforge/brandforge/internal/httpclient"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Server port: 0 is invalid (omit for default), negative is invalid
	if c.Server.Port != nil && *c.Server.Port <= 0 {
		return errors.Newf("server.port must be positive, got %d (omit for default %d)", *c.Server.Port, DefaultServerPort)
	}

	if c.Engine.ItemConcurrency < 1 {
		return errors.Newf("engine.item_concurrency must be >= 1, got %d", c.Engine.ItemConcurrency)
	}
	if c.Engine.MaxInFlightJobs < 1 {
		return errors.Newf("engine.max_in_flight_jobs must be >= 1, got %d", c.Engine.MaxInFlightJobs)
	}

	// Catch a guard/URL mismatch at startup rather than as per-item failures
	// once jobs start running.
	u, err := url.Parse(c.Generation.BaseURL)
	if err != nil || u.Hostname() == "" {
		return errors.Newf("generation.base_url %q is not a valid URL", c.Generation.BaseURL)
	}
	if !c.Generation.AllowPrivateBackend && httpclient.IsPrivateHost(u.Hostname()) {
		return errors.Newf("generation.base_url %q points at a private address; set generation.allow_private_backend = true to permit it", c.Generation.BaseURL)
	}

	if c.Generation.PollIntervalMS <= 0 {
		return errors.Newf("generation.poll_interval_ms must be > 0, got %d", c.Generation.PollIntervalMS)
	}
	if c.Generation.MaxPolls <= 0 {
		return errors.Newf("generation.max_polls must be > 0, got %d", c.Generation.MaxPolls)
	}
	if c.Generation.HardTimeoutSeconds <= 0 {
		return errors.Newf("generation.hard_timeout_seconds must be > 0, got %d", c.Generation.HardTimeoutSeconds)
	}
	if c.Generation.RetryDelayMS < 0 {
		return errors.Newf("generation.retry_delay_ms must be >= 0, got %d", c.Generation.RetryDelayMS)
	}
	if c.Generation.MaxCallsPerSecond < 0 {
		return errors.Newf("generation.max_calls_per_second must be >= 0, got %f", c.Generation.MaxCallsPerSecond)
	}

	for kind, secs := range c.Progress.ExpectedSeconds {
		if secs <= 0 {
			return errors.Newf("progress.expected_seconds[%s] must be > 0, got %d", kind, secs)
		}
	}

	return nil
}
