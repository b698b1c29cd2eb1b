// Package bareclient sends HTTP requests and opens WebSockets through a
// Bare gateway.
//
// Quick start:
//
//	client, err := bareclient.New("https://bare.example.com/")
//	if err != nil {
//	    return err
//	}
//	resp, err := client.Fetch(ctx, "https://example.org/", bareclient.FetchInit{})
//	if err != nil {
//	    var redirect *bare.RedirectError
//	    if errors.As(err, &redirect) {
//	        fmt.Println("redirect rejected:", redirect.Reason)
//	    }
//	    return err
//	}
//	defer resp.Body.Close()
//
// The first request discovers the gateway's protocol versions and selects
// the newest one both sides speak. Discovery happens once per Client.
package bareclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/Sentinel-Gate/bareclient/internal/adapter/outbound/transport"
	"github.com/Sentinel-Gate/bareclient/internal/port/outbound"
	"github.com/Sentinel-Gate/bareclient/pkg/bare"
)

const (
	tracerName = "github.com/Sentinel-Gate/bareclient/pkg/bareclient"

	// maxCapabilitiesSize caps the capability document.
	maxCapabilitiesSize = 1024 * 1024 // 1MB

	// discoveryKey is the singleflight key of the capability fetch.
	discoveryKey = "capabilities"
)

// HTTPDoer executes gateway requests. *http.Client satisfies it.
type HTTPDoer = outbound.HTTPDoer

// SocketDialer opens gateway WebSockets.
type SocketDialer = outbound.SocketDialer

// SocketConn is an open gateway WebSocket.
type SocketConn = outbound.SocketConn

// Client talks to one Bare gateway. It is safe for concurrent use.
type Client struct {
	server         *url.URL
	httpClient     HTTPDoer
	dialer         SocketDialer
	framer         bare.Framer
	logger         *slog.Logger
	metrics        *Metrics
	tracerProvider trace.TracerProvider
	tracer         trace.Tracer
	preload        *bare.Capabilities
	guard          Guard

	// Written once, on the first successful discovery.
	mu    sync.RWMutex
	caps  *bare.Capabilities
	codec bare.Codec

	discovery singleflight.Group
}

// New creates a client for the gateway at server, an absolute http(s) URL.
func New(server string, opts ...Option) (*Client, error) {
	u, err := url.Parse(server)
	if err != nil {
		return nil, fmt.Errorf("invalid gateway URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid gateway URL %q: scheme must be http or https", server)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid gateway URL %q: missing host", server)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}

	c := &Client{
		server: u,
		framer: bare.DefaultFramer,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = transport.NewHTTPClient()
	}
	if c.dialer == nil {
		c.dialer = transport.NewWebSocketDialer(45*time.Second, false)
	}
	if c.tracerProvider == nil {
		c.tracerProvider = otel.GetTracerProvider()
	}
	c.tracer = c.tracerProvider.Tracer(tracerName)

	if c.preload != nil {
		if err := c.preload.Validate(); err != nil {
			return nil, err
		}
		if _, err := c.load(*c.preload); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Server returns the gateway base URL.
func (c *Client) Server() string {
	return c.server.String()
}

// Capabilities returns the gateway's capability document, discovering it
// on first use.
func (c *Client) Capabilities(ctx context.Context) (bare.Capabilities, error) {
	if _, err := c.ready(ctx); err != nil {
		return bare.Capabilities{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return *c.caps, nil
}

// Version returns the negotiated protocol version.
func (c *Client) Version(ctx context.Context) (string, error) {
	codec, err := c.ready(ctx)
	if err != nil {
		return "", err
	}
	return codec.Version(), nil
}

// ready returns the selected codec, discovering the gateway if needed.
// Concurrent callers share one capability fetch, which runs under the
// context of the caller that started it. A failed fetch is not cached:
// the next call tries again.
func (c *Client) ready(ctx context.Context) (bare.Codec, error) {
	c.mu.RLock()
	codec := c.codec
	c.mu.RUnlock()
	if codec != nil {
		return codec, nil
	}

	for {
		ch := c.discovery.DoChan(discoveryKey, func() (any, error) {
			c.mu.RLock()
			codec := c.codec
			c.mu.RUnlock()
			if codec != nil {
				return codec, nil
			}

			caps, err := c.fetchCapabilities(ctx)
			if err != nil {
				c.metrics.discovery("error")
				return nil, err
			}
			c.metrics.discovery("ok")
			return c.load(caps)
		})

		select {
		case <-ctx.Done():
			return nil, &bare.CancelledError{Cause: ctx.Err()}
		case res := <-ch:
			// The shared fetch ran under the leader's context. Its
			// cancellation says nothing about ours, so try again.
			if errors.Is(res.Err, bare.ErrCancelled) && ctx.Err() == nil {
				continue
			}
			if res.Err != nil {
				return nil, res.Err
			}
			return res.Val.(bare.Codec), nil
		}
	}
}

// load selects a codec for caps and publishes both.
func (c *Client) load(caps bare.Capabilities) (bare.Codec, error) {
	codec, err := bare.Select(caps, c.server, c.framer)
	if err != nil {
		c.logger.Error("gateway is incompatible",
			"server", c.server.String(),
			"offered", caps.Versions,
			"supported", bare.SupportedVersions(),
		)
		return nil, err
	}

	c.mu.Lock()
	c.caps = &caps
	c.codec = codec
	c.mu.Unlock()

	c.logger.Info("bare gateway ready",
		"server", c.server.String(),
		"version", codec.Version(),
		"offered", caps.Versions,
	)
	return codec, nil
}

// fetchCapabilities GETs the capability document from the gateway root.
func (c *Client) fetchCapabilities(ctx context.Context) (bare.Capabilities, error) {
	ctx, span := c.tracer.Start(ctx, "bare.discover",
		trace.WithAttributes(attribute.String("bare.server", c.server.String())))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.server.String(), nil)
	if err != nil {
		return bare.Capabilities{}, &bare.CapabilityFetchError{Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "discovery failed")
		if ctx.Err() != nil {
			return bare.Capabilities{}, &bare.CancelledError{Cause: ctx.Err()}
		}
		return bare.Capabilities{}, &bare.CapabilityFetchError{Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCapabilitiesSize))
	if err != nil {
		span.SetStatus(codes.Error, "unreadable capability document")
		return bare.Capabilities{}, &bare.CapabilityFetchError{Status: resp.StatusCode, Cause: err}
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		span.SetStatus(codes.Error, "non-2xx capability response")
		return bare.Capabilities{}, &bare.CapabilityFetchError{
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(body)),
		}
	}

	caps, err := bare.ParseCapabilities(body)
	if err != nil {
		span.SetStatus(codes.Error, "malformed capability document")
		return bare.Capabilities{}, &bare.CapabilityFetchError{Status: resp.StatusCode, Cause: err}
	}
	return caps, nil
}

// Request sends one logical request through the gateway without
// following redirects.
func (c *Client) Request(ctx context.Context, req *bare.Request) (*bare.Response, error) {
	codec, err := c.ready(ctx)
	if err != nil {
		return nil, err
	}

	ctx, span := c.tracer.Start(ctx, "bare.request", trace.WithAttributes(
		attribute.String("bare.version", codec.Version()),
		attribute.String("http.request.method", req.Method),
		attribute.String("bare.remote.host", req.Target.Host),
		attribute.String("bare.remote.port", req.Target.Port),
	))
	defer span.End()

	start := time.Now()
	resp, err := c.roundTrip(ctx, codec, req)
	outcome := "ok"
	switch {
	case errors.Is(err, bare.ErrCancelled):
		outcome = "cancelled"
	case err != nil:
		outcome = "error"
	}
	c.metrics.observeRequest(codec.Version(), outcome, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.Status))
	return resp, nil
}

func (c *Client) roundTrip(ctx context.Context, codec bare.Codec, req *bare.Request) (*bare.Response, error) {
	httpReq, err := codec.EncodeRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &bare.CancelledError{Cause: ctx.Err()}
		}
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}

	resp, err := codec.DecodeResponse(httpResp)
	if err != nil {
		httpResp.Body.Close()
		c.metrics.envelopeError(codec.Version())
		c.logger.Warn("invalid gateway response",
			"server", c.server.String(),
			"version", codec.Version(),
			"gateway_status", httpResp.StatusCode,
			"error", err,
		)
		return nil, err
	}
	return resp, nil
}

// Fetch requests rawURL through the gateway, applying init.Redirect to
// redirect responses. The returned response carries FinalURL.
func (c *Client) Fetch(ctx context.Context, rawURL string, init FetchInit) (*bare.Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("invalid URL %q: must be absolute", rawURL)
	}

	method := init.Method
	if method == "" {
		method = http.MethodGet
	}
	cache := init.Cache
	if cache == "" {
		cache = bare.DefaultCache
	}
	policy := bare.ParseRedirectPolicy(string(init.Redirect))
	header := init.Header.Clone()
	body := replayableBody(init.Body)

	ctx, span := c.tracer.Start(ctx, "bare.fetch", trace.WithAttributes(
		attribute.String("url.full", u.String()),
		attribute.String("bare.redirect", string(policy)),
	))
	defer span.End()

	for hop := 0; ; hop++ {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, "cancelled")
			return nil, &bare.CancelledError{Cause: err}
		}

		if err := c.allow(ctx, Target{Method: method, URL: u, Hop: hop}); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "target denied")
			return nil, err
		}

		header.Set("host", u.Host)
		resp, err := c.Request(ctx, &bare.Request{
			Method: method,
			Header: header,
			Body:   body,
			Target: bare.TargetFromURL(u),
			Cache:  cache,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "request failed")
			return nil, err
		}
		resp.FinalURL = u.String()

		if !bare.IsRedirect(resp.Status) {
			span.SetAttributes(attribute.Int("bare.hops", hop+1))
			return resp, nil
		}

		switch policy {
		case bare.RedirectManual:
			c.metrics.redirect("returned")
			span.SetAttributes(attribute.Int("bare.hops", hop+1))
			return resp, nil

		case bare.RedirectErrorPolicy:
			resp.Body.Close()
			c.metrics.redirect("rejected")
			return nil, &bare.RedirectError{URL: resp.FinalURL, Reason: "redirect mode is set to error"}
		}

		location := resp.Header.Get("location")
		if hop >= bare.MaxRedirects {
			resp.Body.Close()
			c.metrics.redirect("rejected")
			return nil, &bare.RedirectError{URL: resp.FinalURL, Reason: "too many redirects"}
		}
		if location == "" {
			resp.Body.Close()
			c.metrics.redirect("rejected")
			return nil, &bare.RedirectError{URL: resp.FinalURL, Reason: "redirect without location"}
		}
		next, err := u.Parse(location)
		if err != nil {
			resp.Body.Close()
			c.metrics.redirect("rejected")
			return nil, &bare.RedirectError{URL: resp.FinalURL, Reason: fmt.Sprintf("invalid location %q", location)}
		}
		resp.Body.Close()

		body, err = rewindBody(body)
		if err != nil {
			c.metrics.redirect("rejected")
			return nil, &bare.RedirectError{URL: resp.FinalURL, Reason: err.Error()}
		}

		c.metrics.redirect("followed")
		c.logger.Debug("following redirect",
			"from", resp.FinalURL,
			"to", next.String(),
			"status", resp.Status,
			"hop", hop+1,
		)
		u = next
	}
}

// allow consults the guard, if any.
func (c *Client) allow(ctx context.Context, t Target) error {
	if c.guard == nil {
		return nil
	}
	if err := c.guard.Allow(ctx, t); err != nil {
		c.metrics.denied()
		c.logger.Warn("remote target denied",
			"method", t.Method,
			"url", t.URL.String(),
			"hop", t.Hop,
			"error", err,
		)
		return err
	}
	return nil
}

// replayableBody returns a seekable view of the in-memory body types
// net/http also knows how to resend. Other readers are returned as is.
// A *bytes.Buffer is read through its unread bytes and left untouched.
func replayableBody(body io.Reader) io.Reader {
	if buf, ok := body.(*bytes.Buffer); ok {
		return bytes.NewReader(buf.Bytes())
	}
	return body
}

// rewindBody prepares body to be sent again on the next hop. The method
// and headers of a redirected request never change; only the body has to
// be rewound, which requires an io.Seeker.
func rewindBody(body io.Reader) (io.Reader, error) {
	if body == nil {
		return nil, nil
	}
	seeker, ok := body.(io.Seeker)
	if !ok {
		return nil, errors.New("request body cannot be replayed")
	}
	if _, err := seeker.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("request body cannot be replayed: %w", err)
	}
	return body, nil
}
