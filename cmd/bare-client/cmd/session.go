package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/jpillora/backoff"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Sentinel-Gate/bareclient/internal/adapter/outbound/capstore"
	"github.com/Sentinel-Gate/bareclient/internal/adapter/outbound/cel"
	"github.com/Sentinel-Gate/bareclient/internal/adapter/outbound/transport"
	"github.com/Sentinel-Gate/bareclient/internal/config"
	"github.com/Sentinel-Gate/bareclient/internal/port/outbound"
	"github.com/Sentinel-Gate/bareclient/pkg/bare"
	"github.com/Sentinel-Gate/bareclient/pkg/bareclient"
)

// session holds everything a command needs to talk to the gateway.
type session struct {
	cfg      *config.Config
	logger   *slog.Logger
	client   *bareclient.Client
	registry *prometheus.Registry
	tracer   *sdktrace.TracerProvider
	stderr   io.Writer

	// cache is nil unless discovery.cache_file is set.
	cache  outbound.CapabilityStore
	cached bool
}

// newSession loads the configuration and builds the client with the
// configured logger, metrics and tracing.
func newSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, stderr: cmd.ErrOrStderr()}

	level := parseLogLevel(cfg.LogLevel)
	s.logger = slog.New(slog.NewTextHandler(s.stderr, &slog.HandlerOptions{
		Level: level,
	}))
	s.logger.Debug("log level configured", "level", cfg.LogLevel, "effective", level.String())
	if configFile := config.ConfigFileUsed(); configFile != "" {
		s.logger.Debug("loaded config", "file", configFile)
	}

	opts := []bareclient.Option{
		bareclient.WithLogger(s.logger),
		bareclient.WithHTTPClient(transport.NewHTTPClient(
			transport.WithTimeout(cfg.TimeoutDuration()),
			transport.WithInsecureSkipVerify(cfg.Server.InsecureSkipVerify),
		)),
		bareclient.WithSocketDialer(transport.NewWebSocketDialer(
			cfg.TimeoutDuration(),
			cfg.Server.InsecureSkipVerify,
		)),
	}

	if cfg.Client.Allow != "" {
		guard, err := cel.NewGuard(cfg.Client.Allow)
		if err != nil {
			return nil, fmt.Errorf("invalid client.allow rule: %w", err)
		}
		opts = append(opts, bareclient.WithGuard(guard))
	}

	if cfg.Metrics {
		s.registry = prometheus.NewRegistry()
		opts = append(opts, bareclient.WithMetrics(bareclient.NewMetrics(s.registry)))
	}

	if cfg.Tracing {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(s.stderr), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		s.tracer = sdktrace.NewTracerProvider(
			sdktrace.WithSyncer(exporter),
			sdktrace.WithResource(resource.NewSchemaless(
				attribute.String("service.name", "bare-client"),
				attribute.String("service.version", Version),
			)),
		)
		opts = append(opts, bareclient.WithTracerProvider(s.tracer))
	}

	client, err := bareclient.New(cfg.Server.URL, opts...)
	if err != nil {
		return nil, err
	}
	s.client = client

	if cfg.Discovery.CacheFile != "" {
		s.cache = capstore.NewFileStore(cfg.Discovery.CacheFile, s.logger)
		s.preloadCached(opts)
	}
	return s, nil
}

// preloadCached rebuilds the client with the cached capability document of
// its gateway, if there is a fresh one. Cache problems only cost a
// discovery request.
func (s *session) preloadCached(opts []bareclient.Option) {
	server := s.client.Server()
	caps, ok, err := s.cache.Lookup(server, s.cfg.CacheTTL())
	if err != nil {
		s.logger.Warn("failed to read capability cache", "error", err)
		return
	}
	if !ok {
		return
	}

	client, err := bareclient.New(server, append(opts, bareclient.WithCapabilities(caps))...)
	if err != nil {
		s.logger.Warn("ignoring cached capabilities", "server", server, "error", err)
		return
	}
	s.logger.Debug("using cached capabilities", "server", server)
	s.client = client
	s.cached = true
}

// close flushes spans and prints metrics.
func (s *session) close() {
	if s.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.tracer.Shutdown(ctx); err != nil {
			s.logger.Warn("failed to flush spans", "error", err)
		}
	}
	if s.registry != nil {
		if err := writeMetrics(s.stderr, s.registry); err != nil {
			s.logger.Warn("failed to write metrics", "error", err)
		}
	}
}

// discover fetches the gateway's capabilities, retrying failed fetches
// with exponential backoff. Incompatible gateways are not retried.
// A freshly fetched document is written to the capability cache.
func (s *session) discover(ctx context.Context) (bare.Capabilities, error) {
	lo, hi := s.cfg.BackoffRange()
	b := &backoff.Backoff{Min: lo, Max: hi, Factor: 2, Jitter: true}
	caps, err := discoverWithRetry(ctx, s.client, s.cfg.Discovery.Attempts, b, s.logger)
	if err != nil {
		return bare.Capabilities{}, err
	}
	if s.cache != nil && !s.cached {
		if err := s.cache.Store(s.client.Server(), caps); err != nil {
			s.logger.Warn("failed to update capability cache", "error", err)
		}
	}
	return caps, nil
}

// capabilityFetcher is the part of bareclient.Client used by discovery.
type capabilityFetcher interface {
	Capabilities(ctx context.Context) (bare.Capabilities, error)
}

func discoverWithRetry(ctx context.Context, client capabilityFetcher, attempts int, b *backoff.Backoff, logger *slog.Logger) (bare.Capabilities, error) {
	for {
		caps, err := client.Capabilities(ctx)
		if err == nil {
			return caps, nil
		}
		if !errors.Is(err, bare.ErrCapabilityFetch) {
			return bare.Capabilities{}, err
		}

		attempt := int(b.Attempt()) + 1
		if attempt >= attempts {
			return bare.Capabilities{}, fmt.Errorf("gateway discovery failed after %d attempts: %w", attempt, err)
		}

		d := b.Duration()
		logger.Warn("gateway discovery failed, retrying",
			"attempt", fmt.Sprintf("%d/%d", attempt, attempts),
			"retry_in", d,
			"error", err,
		)

		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return bare.Capabilities{}, &bare.CancelledError{Cause: ctx.Err()}
		case <-timer.C:
		}
	}
}

// writeMetrics writes every gathered metric family in the Prometheus text format.
func writeMetrics(w io.Writer, gatherer prometheus.Gatherer) error {
	families, err := gatherer.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	return encodeFamilies(w, families)
}

func encodeFamilies(w io.Writer, families []*dto.MetricFamily) error {
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
