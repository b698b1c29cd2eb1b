package bareclient

import (
	"context"
	"io"
	"log/slog"
	"net/url"

	"go.opentelemetry.io/otel/trace"

	"github.com/Sentinel-Gate/bareclient/pkg/bare"
)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for gateway requests.
// If not set, a client without cookie jar or redirect following is used.
func WithHTTPClient(hc HTTPDoer) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithSocketDialer sets the dialer used by Connect.
// If not set, a gorilla/websocket dialer is used.
func WithSocketDialer(d SocketDialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

// WithCapabilities preloads the gateway's capability document so that no
// discovery request is made. New fails if no version matches.
func WithCapabilities(caps bare.Capabilities) Option {
	return func(c *Client) {
		c.preload = &caps
	}
}

// WithFramer sets the serializer for WebSocket connect metadata.
// If not set, bare.DefaultFramer is used.
func WithFramer(f bare.Framer) Option {
	return func(c *Client) {
		c.framer = f
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithMetrics enables Prometheus metrics recording.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider.
// If not set, the global provider is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		c.tracerProvider = tp
	}
}

// FetchInit holds the optional parameters of Fetch.
type FetchInit struct {
	// Method defaults to GET.
	Method string

	// Header is sent to the remote. Use bare.HeadersFromHTTP or
	// bare.HeadersFromMap to convert other header shapes.
	Header bare.Headers

	// Body is nil for requests without a body. Followed redirects resend
	// it unchanged, which works for an io.Seeker or a *bytes.Buffer;
	// other readers make Fetch fail with a RedirectError on redirect.
	Body io.Reader

	// Cache defaults to bare.DefaultCache.
	Cache string

	// Redirect defaults to bare.RedirectFollow.
	Redirect bare.RedirectPolicy
}

// Target is a remote URL about to be sent through the gateway.
type Target struct {
	Method string
	URL    *url.URL
	// WebSocket is set for Connect.
	WebSocket bool
	// Hop counts followed redirects; 0 for the first request.
	Hop int
}

// Guard vets remote URLs. Fetch consults it before every hop, including
// redirects, and Connect before dialing. A non-nil error aborts the call
// and is returned as is.
type Guard interface {
	Allow(ctx context.Context, t Target) error
}

// WithGuard sets a Guard. Request is never guarded.
func WithGuard(g Guard) Option {
	return func(c *Client) {
		c.guard = g
	}
}
