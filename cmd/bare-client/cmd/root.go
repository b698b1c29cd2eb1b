// Package cmd provides the CLI commands for bare-client.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/bareclient/internal/config"
)

var (
	cfgFile     string
	serverURL   string
	logLevel    string
	verbose     bool
	showMetrics bool
	traceSpans  bool
	insecure    bool
	capsCache   string
	allowRule   string
)

var rootCmd = &cobra.Command{
	Use:   "bare-client",
	Short: "bare-client - talk to remote hosts through a Bare gateway",
	Long: `bare-client sends HTTP requests and opens WebSockets to arbitrary
remote hosts by tunneling them through a Bare gateway.

Quick start:
  bare-client --server https://bare.example.com/ info
  bare-client --server https://bare.example.com/ fetch https://example.org/

Configuration:
  Config is loaded from bare-client.yaml in the current directory,
  $HOME/.bare-client/, or /etc/bare-client/.

  Environment variables can override config values with the BARE_CLIENT_ prefix.
  Example: BARE_CLIENT_SERVER_URL=https://bare.example.com/

Commands:
  info        Show the gateway's capabilities and the negotiated version
  fetch       Fetch a URL through the gateway
  ws          Open a WebSocket through the gateway
  version     Print version information`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. An interrupt cancels the command's context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ./bare-client.yaml)")
	flags.StringVarP(&serverURL, "server", "s", "", "Bare gateway URL (overrides server.url)")
	flags.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides log_level)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "shorthand for --log-level debug")
	flags.BoolVar(&showMetrics, "metrics", false, "print Prometheus metrics to stderr when done")
	flags.BoolVar(&traceSpans, "trace", false, "print OpenTelemetry spans to stderr")
	flags.BoolVar(&insecure, "insecure", false, "skip TLS verification toward the gateway")
	flags.StringVar(&allowRule, "allow", "", "CEL rule remote URLs must satisfy (overrides client.allow)")
	flags.StringVar(&capsCache, "caps-cache", "", "file caching gateway capabilities between runs (overrides discovery.cache_file)")
}

func initConfig() {
	config.InitViper(cfgFile)
}

// loadConfig loads the configuration and applies the persistent flags
// before validating it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("server") {
		cfg.Server.URL = serverURL
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if showMetrics {
		cfg.Metrics = true
	}
	if traceSpans {
		cfg.Tracing = true
	}
	if insecure {
		cfg.Server.InsecureSkipVerify = true
	}
	if flags.Changed("allow") {
		cfg.Client.Allow = allowRule
	}
	if flags.Changed("caps-cache") {
		cfg.Discovery.CacheFile = capsCache
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}
