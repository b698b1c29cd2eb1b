// Package transport provides the outbound adapters that carry Bare
// envelopes to the gateway: net/http for requests and gorilla/websocket
// for sockets.
package transport

import (
	"crypto/tls"
	"net/http"
	"time"
)

// HTTPOption is a functional option for configuring NewHTTPClient.
type HTTPOption func(*httpConfig)

type httpConfig struct {
	timeout            time.Duration
	insecureSkipVerify bool
}

// WithTimeout sets the overall timeout of each gateway round trip.
// Zero means no timeout; response bodies are streamed, so a non-zero
// timeout also bounds body reads.
func WithTimeout(d time.Duration) HTTPOption {
	return func(c *httpConfig) {
		c.timeout = d
	}
}

// WithInsecureSkipVerify disables TLS certificate verification toward the gateway.
func WithInsecureSkipVerify(skip bool) HTTPOption {
	return func(c *httpConfig) {
		c.insecureSkipVerify = skip
	}
}

// NewHTTPClient creates the http.Client used to talk to the gateway.
//
// The client has no cookie jar and never follows redirects: a redirect
// status from the gateway itself is handed back as-is, while remote
// redirects travel inside the envelope and are handled by the caller.
func NewHTTPClient(opts ...HTTPOption) *http.Client {
	cfg := &httpConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	return &http.Client{
		Timeout: cfg.timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				MinVersion:         tls.VersionTLS12,
				InsecureSkipVerify: cfg.insecureSkipVerify, //nolint:gosec // opt-in for self-signed gateways
			},
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 5,
			IdleConnTimeout:     90 * time.Second,
			// Bodies are relayed verbatim; the remote's encoding is
			// described by the envelope headers, not by the transport.
			DisableCompression: true,
		},
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
