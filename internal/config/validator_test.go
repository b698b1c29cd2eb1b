package config

import (
	"strings"
	"testing"
)

// minimalValidConfig returns a minimal valid Config for testing.
func minimalValidConfig() *Config {
	cfg := &Config{Server: ServerConfig{URL: "https://bare.example/"}}
	cfg.SetDefaults()
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing url",
			mutate:  func(c *Config) { c.Server.URL = "" },
			wantErr: "Config.Server.URL is required",
		},
		{
			name:    "non-http url",
			mutate:  func(c *Config) { c.Server.URL = "ftp://bare.example/" },
			wantErr: "must be an http or https URL",
		},
		{
			name:    "bad timeout",
			mutate:  func(c *Config) { c.Server.Timeout = "soon" },
			wantErr: "Config.Server.Timeout must be a duration",
		},
		{
			name:    "negative timeout",
			mutate:  func(c *Config) { c.Server.Timeout = "-1s" },
			wantErr: "must be a duration",
		},
		{
			name:    "unknown redirect policy",
			mutate:  func(c *Config) { c.Client.Redirect = "folow" },
			wantErr: "Config.Client.Redirect must be one of: follow manual error",
		},
		{
			name:    "too many attempts",
			mutate:  func(c *Config) { c.Discovery.Attempts = 50 },
			wantErr: "Config.Discovery.Attempts must be at most 20",
		},
		{
			name:    "negative attempts",
			mutate:  func(c *Config) { c.Discovery.Attempts = -1 },
			wantErr: "must be at least 1",
		},
		{
			name:    "bad cache ttl",
			mutate:  func(c *Config) { c.Discovery.CacheTTL = "forever" },
			wantErr: "Config.Discovery.CacheTTL must be a duration",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.LogLevel = "verbose" },
			wantErr: "Config.LogLevel must be one of",
		},
		{
			name: "inverted backoff",
			mutate: func(c *Config) {
				c.Discovery.MinBackoff = "10s"
				c.Discovery.MaxBackoff = "1s"
			},
			wantErr: "min_backoff (10s) exceeds max_backoff (1s)",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := minimalValidConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidate_RedirectPolicies(t *testing.T) {
	t.Parallel()

	for _, policy := range []string{"follow", "manual", "error"} {
		cfg := minimalValidConfig()
		cfg.Client.Redirect = policy
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate(redirect=%s) unexpected error: %v", policy, err)
		}
	}
}

func TestValidate_ZeroTimeout(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Server.Timeout = "0s"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}

func TestValidRedirectPolicy(t *testing.T) {
	t.Parallel()

	tests := map[string]bool{
		"follow": true,
		"manual": true,
		"error":  true,
		"":       false,
		"manul":  false,
		"Follow": false,
	}
	for in, want := range tests {
		if got := ValidRedirectPolicy(in); got != want {
			t.Errorf("ValidRedirectPolicy(%q) = %v, want %v", in, got, want)
		}
	}
}
