package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Sentinel-Gate/bareclient/internal/port/outbound"
)

// WebSocketDialer opens gateway sockets with gorilla/websocket.
// It implements outbound.SocketDialer.
type WebSocketDialer struct {
	dialer websocket.Dialer
}

// NewWebSocketDialer creates a dialer with the given handshake timeout.
func NewWebSocketDialer(handshakeTimeout time.Duration, insecureSkipVerify bool) *WebSocketDialer {
	return &WebSocketDialer{
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
			ReadBufferSize:   32 * 1024,
			WriteBufferSize:  32 * 1024,
			TLSClientConfig: &tls.Config{
				MinVersion:         tls.VersionTLS12,
				InsecureSkipVerify: insecureSkipVerify, //nolint:gosec // opt-in for self-signed gateways
			},
		},
	}
}

// DialContext opens url offering protocols. The handshake response is not
// exposed: connect metadata is fetched out of band from the gateway.
func (d *WebSocketDialer) DialContext(ctx context.Context, url string, protocols []string, header http.Header) (outbound.SocketConn, error) {
	dialer := d.dialer
	dialer.Subprotocols = protocols

	conn, resp, err := dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial %s failed with status %d: %w", url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial %s failed: %w", url, err)
	}
	return conn, nil
}
