package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment variables.
// If configFile is empty, it searches for bare-client.yaml/.yml in standard locations.
// The search requires an explicit YAML extension so the binary itself is never
// picked up as a config file.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// ReadInConfig then returns ConfigFileNotFoundError, which callers tolerate.
		viper.SetConfigName("bare-client")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: BARE_CLIENT_SERVER_URL
	viper.SetEnvPrefix("BARE_CLIENT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for a bare-client config file.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".bare-client"),
	}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "bare-client"))
		}
	} else {
		paths = append(paths, "/etc/bare-client")
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths searches the given directories for bare-client.yaml or .yml.
// Returns the full path of the first match, or empty string if none found.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "bare-client"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds nested keys so that BARE_CLIENT_* variables
// override them even when the config file does not mention them.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.url")
	_ = viper.BindEnv("server.timeout")
	_ = viper.BindEnv("server.insecure_skip_verify")

	_ = viper.BindEnv("client.redirect")
	_ = viper.BindEnv("client.cache")
	_ = viper.BindEnv("client.allow")

	_ = viper.BindEnv("discovery.attempts")
	_ = viper.BindEnv("discovery.min_backoff")
	_ = viper.BindEnv("discovery.max_backoff")
	_ = viper.BindEnv("discovery.cache_file")
	_ = viper.BindEnv("discovery.cache_ttl")

	_ = viper.BindEnv("log_level")
	_ = viper.BindEnv("metrics")
	_ = viper.BindEnv("tracing")
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, validates and returns the Config.
func LoadConfig() (*Config, error) {
	cfg, err := LoadConfigRaw()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigRaw reads the configuration file and applies defaults,
// but does NOT validate. Use this when CLI flags may still override
// fields (such as the gateway URL) before validation.
func LoadConfigRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file: environment variables and flags only.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was loaded.
// Returns an empty string if no config file was found.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
