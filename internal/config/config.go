// Package config provides configuration types for the bare-client CLI.
//
// Configuration comes from a YAML file (bare-client.yaml), BARE_CLIENT_*
// environment variables and command-line flags, in increasing priority.
// Only the gateway URL is required; everything else has a default.
package config

import (
	"time"

	"github.com/Sentinel-Gate/bareclient/pkg/bare"
)

// Config is the top-level configuration of the bare-client CLI.
type Config struct {
	// Server configures how the Bare gateway is reached.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Client configures the defaults applied to fetches.
	Client ClientConfig `yaml:"client" mapstructure:"client"`

	// Discovery configures retries of the capability fetch.
	Discovery DiscoveryConfig `yaml:"discovery" mapstructure:"discovery"`

	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn", "error".
	// Defaults to "info" if empty.
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// Metrics prints the client's Prometheus metrics after each command.
	Metrics bool `yaml:"metrics" mapstructure:"metrics"`

	// Tracing writes OpenTelemetry spans to stderr.
	Tracing bool `yaml:"tracing" mapstructure:"tracing"`
}

// ServerConfig configures the gateway connection.
type ServerConfig struct {
	// URL is the gateway base URL (e.g., "https://bare.example.com/").
	URL string `yaml:"url" mapstructure:"url" validate:"required,http_url"`

	// Timeout bounds each round trip to the gateway (e.g., "30s").
	// "0s" disables the timeout. Default: "30s".
	Timeout string `yaml:"timeout" mapstructure:"timeout" validate:"omitempty,duration"`

	// InsecureSkipVerify disables TLS verification toward the gateway.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify" mapstructure:"insecure_skip_verify"`
}

// ClientConfig holds fetch defaults.
type ClientConfig struct {
	// Redirect is the redirect policy: "follow", "manual" or "error".
	// Default: "follow".
	Redirect string `yaml:"redirect" mapstructure:"redirect" validate:"omitempty,redirect_policy"`

	// Cache is the cache policy sent to the gateway. Default: "default".
	Cache string `yaml:"cache" mapstructure:"cache"`

	// Allow is a CEL rule every remote URL must satisfy, redirects and
	// WebSockets included (e.g., `scheme == "https" && !ip_in_cidr(host, "10.0.0.0/8")`).
	// Empty allows everything.
	Allow string `yaml:"allow" mapstructure:"allow" validate:"omitempty,max=1024"`
}

// DiscoveryConfig configures capability fetch retries.
// The client itself never retries; the CLI does, with exponential backoff.
type DiscoveryConfig struct {
	// Attempts is the number of capability fetches before giving up.
	// Default: 3.
	Attempts int `yaml:"attempts" mapstructure:"attempts" validate:"min=1,max=20"`

	// MinBackoff is the delay after the first failure. Default: "200ms".
	MinBackoff string `yaml:"min_backoff" mapstructure:"min_backoff" validate:"omitempty,duration"`

	// MaxBackoff caps the delay between attempts. Default: "5s".
	MaxBackoff string `yaml:"max_backoff" mapstructure:"max_backoff" validate:"omitempty,duration"`

	// CacheFile is where fetched capability documents are kept between
	// runs. Empty disables the cache.
	CacheFile string `yaml:"cache_file" mapstructure:"cache_file"`

	// CacheTTL is how long a cached document stays usable.
	// "0s" keeps entries forever. Default: "1h".
	CacheTTL string `yaml:"cache_ttl" mapstructure:"cache_ttl" validate:"omitempty,duration"`
}

// SetDefaults applies default values to unset fields.
func (c *Config) SetDefaults() {
	if c.Server.Timeout == "" {
		c.Server.Timeout = "30s"
	}

	if c.Client.Redirect == "" {
		c.Client.Redirect = string(bare.RedirectFollow)
	}
	if c.Client.Cache == "" {
		c.Client.Cache = bare.DefaultCache
	}

	if c.Discovery.Attempts == 0 {
		c.Discovery.Attempts = 3
	}
	if c.Discovery.MinBackoff == "" {
		c.Discovery.MinBackoff = "200ms"
	}
	if c.Discovery.MaxBackoff == "" {
		c.Discovery.MaxBackoff = "5s"
	}
	if c.Discovery.CacheTTL == "" {
		c.Discovery.CacheTTL = "1h"
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// TimeoutDuration returns Server.Timeout parsed. Invalid values yield 0;
// Validate rejects them beforehand.
func (c *Config) TimeoutDuration() time.Duration {
	return parseDuration(c.Server.Timeout)
}

// BackoffRange returns the parsed discovery backoff bounds.
func (c *Config) BackoffRange() (lo, hi time.Duration) {
	return parseDuration(c.Discovery.MinBackoff), parseDuration(c.Discovery.MaxBackoff)
}

// CacheTTL returns Discovery.CacheTTL parsed.
func (c *Config) CacheTTL() time.Duration {
	return parseDuration(c.Discovery.CacheTTL)
}

// RedirectPolicy returns the configured redirect policy.
func (c *Config) RedirectPolicy() bare.RedirectPolicy {
	return bare.ParseRedirectPolicy(c.Client.Redirect)
}

func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
