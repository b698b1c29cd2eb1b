package bareclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sentinel-Gate/bareclient/pkg/bare"
)

// bareSubprotocol is offered ahead of the serialized connect metadata.
const bareSubprotocol = "bare"

// Socket is a WebSocket tunneled through the gateway.
type Socket struct {
	SocketConn

	// ID keys the socket's connect metadata on the gateway.
	ID string
	// Version is the protocol version used to open the socket.
	Version string

	client *Client
	codec  bare.Codec

	mu   sync.Mutex
	meta *bare.SocketMeta
}

// PrepareSocket encodes a connect intent for rawURL (ws: or wss:) and
// returns the socket URL to dial and the serialized metadata to offer as
// a sub-protocol after "bare". A non-empty id is embedded so the
// handshake metadata can later be fetched with SocketMeta.
func (c *Client) PrepareSocket(ctx context.Context, rawURL string, header bare.Headers, protocols []string, id string) (socketURL, serialized string, err error) {
	codec, err := c.ready(ctx)
	if err != nil {
		return "", "", err
	}
	p, err := c.prepareSocket(codec, rawURL, header, protocols, id)
	if err != nil {
		return "", "", err
	}
	return p.socketURL, p.serialized, nil
}

// preparedSocket is an encoded connect intent.
type preparedSocket struct {
	remote     *url.URL
	target     bare.RemoteTarget
	socketURL  string
	serialized string
}

func (c *Client) prepareSocket(codec bare.Codec, rawURL string, header bare.Headers, protocols []string, id string) (preparedSocket, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return preparedSocket{}, fmt.Errorf("invalid URL: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return preparedSocket{}, fmt.Errorf("invalid URL %q: must be absolute", rawURL)
	}

	p := preparedSocket{remote: u, target: bare.TargetFromURL(u)}
	p.socketURL, p.serialized, err = codec.EncodeConnect(p.target, header, protocols, id)
	if err != nil {
		return preparedSocket{}, err
	}
	return p, nil
}

// Connect opens a WebSocket to rawURL through the gateway. The returned
// socket's Meta resolves the remote handshake result.
func (c *Client) Connect(ctx context.Context, rawURL string, header bare.Headers, protocols ...string) (*Socket, error) {
	codec, err := c.ready(ctx)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	p, err := c.prepareSocket(codec, rawURL, header, protocols, id)
	if err != nil {
		return nil, err
	}
	if err := c.allow(ctx, Target{Method: http.MethodGet, URL: p.remote, WebSocket: true}); err != nil {
		return nil, err
	}
	target := p.target

	ctx, span := c.tracer.Start(ctx, "bare.connect", trace.WithAttributes(
		attribute.String("bare.version", codec.Version()),
		attribute.String("bare.remote.host", target.Host),
		attribute.String("bare.socket.id", id),
	))
	defer span.End()

	conn, err := c.dialer.DialContext(ctx, p.socketURL, []string{bareSubprotocol, p.serialized}, nil)
	if err != nil {
		c.metrics.socket(codec.Version(), "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "dial failed")
		if ctx.Err() != nil {
			return nil, &bare.CancelledError{Cause: ctx.Err()}
		}
		return nil, err
	}
	c.metrics.socket(codec.Version(), "ok")
	c.logger.Debug("socket opened",
		"id", id,
		"version", codec.Version(),
		"remote", target.Host+":"+target.Port,
	)

	return &Socket{
		SocketConn: conn,
		ID:         id,
		Version:    codec.Version(),
		client:     c,
		codec:      codec,
	}, nil
}

// Meta returns the remote handshake metadata, fetching it from the
// gateway on first success.
func (s *Socket) Meta(ctx context.Context) (*bare.SocketMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.meta != nil {
		return s.meta, nil
	}
	meta, err := s.client.socketMeta(ctx, s.codec, s.ID)
	if err != nil {
		return nil, err
	}
	s.meta = meta
	return meta, nil
}

// SocketMeta fetches the handshake metadata of the socket opened with id.
// Use it after dialing a URL obtained from PrepareSocket.
func (c *Client) SocketMeta(ctx context.Context, id string) (*bare.SocketMeta, error) {
	codec, err := c.ready(ctx)
	if err != nil {
		return nil, err
	}
	return c.socketMeta(ctx, codec, id)
}

func (c *Client) socketMeta(ctx context.Context, codec bare.Codec, id string) (*bare.SocketMeta, error) {
	req, err := codec.EncodeMetaRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &bare.CancelledError{Cause: ctx.Err()}
		}
		return nil, fmt.Errorf("socket meta request failed: %w", err)
	}
	meta, err := codec.DecodeMeta(resp)
	if err != nil {
		c.metrics.envelopeError(codec.Version())
		return nil, err
	}
	return meta, nil
}
