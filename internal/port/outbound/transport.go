// Package outbound defines the outbound port interfaces the Bare client
// uses to reach the gateway and to remember what it learned about it.
package outbound

import (
	"context"
	"net/http"
	"time"

	"github.com/Sentinel-Gate/bareclient/pkg/bare"
)

// HTTPDoer executes one transport request against the gateway.
// *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// SocketConn is an open WebSocket to the gateway.
// *websocket.Conn from gorilla/websocket satisfies it.
type SocketConn interface {
	// Subprotocol returns the sub-protocol the gateway accepted.
	Subprotocol() string

	// ReadMessage reads the next data message.
	ReadMessage() (messageType int, p []byte, err error)

	// WriteMessage writes a data message.
	WriteMessage(messageType int, data []byte) error

	// Close closes the underlying connection without a close handshake.
	Close() error
}

// SocketDialer opens WebSocket connections to the gateway.
type SocketDialer interface {
	// DialContext opens url offering protocols as Sec-WebSocket-Protocol.
	DialContext(ctx context.Context, url string, protocols []string, header http.Header) (SocketConn, error)
}

// CapabilityStore persists capability documents across process runs.
type CapabilityStore interface {
	// Lookup returns the document stored for server if it is younger than
	// maxAge. A zero maxAge never expires.
	Lookup(server string, maxAge time.Duration) (bare.Capabilities, bool, error)

	// Store records the document for server.
	Store(server string, caps bare.Capabilities) error
}
