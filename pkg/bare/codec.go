package bare

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// maxMetaBodySize caps socket metadata documents read from the gateway.
const maxMetaBodySize = 1024 * 1024 // 1MB

// Codec translates logical requests and connect intents to one protocol
// version's envelope and back. Codecs are stateless and safe for concurrent use.
type Codec interface {
	// Version returns the protocol version identifier ("v1", "v2").
	Version() string

	// EncodeRequest wraps req in a transport request addressed to the gateway.
	EncodeRequest(ctx context.Context, req *Request) (*http.Request, error)

	// DecodeResponse unwraps a gateway response. The transport body is
	// handed to the returned Response without being read.
	DecodeResponse(resp *http.Response) (*Response, error)

	// EncodeConnect returns the socket URL to dial and the serialized
	// connect metadata to offer as a sub-protocol.
	EncodeConnect(target RemoteTarget, header Headers, protocols []string, id string) (socketURL, serialized string, err error)

	// EncodeMetaRequest builds the lookup for the metadata of socket id.
	EncodeMetaRequest(ctx context.Context, id string) (*http.Request, error)

	// DecodeMeta reads a metadata lookup response and closes its body.
	DecodeMeta(resp *http.Response) (*SocketMeta, error)
}

// codecFactory builds a codec bound to a gateway base URL.
type codecFactory func(server *url.URL, framer Framer) Codec

// versions is the dispatch table, newest first.
var versions = []struct {
	version string
	factory codecFactory
}{
	{version: "v2", factory: func(server *url.URL, framer Framer) Codec { return NewV2(server, framer) }},
	{version: "v1", factory: func(server *url.URL, framer Framer) Codec { return NewV1(server, framer) }},
}

// SupportedVersions returns the versions this package speaks, newest first.
func SupportedVersions() []string {
	out := make([]string, len(versions))
	for i, v := range versions {
		out[i] = v.version
	}
	return out
}

// Select returns the codec for the newest version listed in caps.
// A nil framer selects DefaultFramer.
func Select(caps Capabilities, server *url.URL, framer Framer) (Codec, error) {
	if framer == nil {
		framer = DefaultFramer
	}
	for _, v := range versions {
		if caps.Supports(v.version) {
			return v.factory(server, framer), nil
		}
	}
	return nil, &IncompatibleGatewayError{Offered: append([]string(nil), caps.Versions...)}
}

// endpoint resolves a versioned path against the gateway base URL.
func endpoint(server *url.URL, path string) *url.URL {
	return server.ResolveReference(&url.URL{Path: path})
}

// socketURL rewrites an http(s) endpoint to ws(s).
func socketURL(u *url.URL) string {
	ws := *u
	switch strings.ToLower(ws.Scheme) {
	case "https":
		ws.Scheme = "wss"
	case "http":
		ws.Scheme = "ws"
	}
	return ws.String()
}

// newTransportRequest builds a gateway request. Method and body pass
// through; the envelope lives in the headers.
func newTransportRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway request: %w", err)
	}
	return req, nil
}

// decodeMetaBody reads a JSON SocketMeta document from a lookup response.
func decodeMetaBody(version string, resp *http.Response) (*SocketMeta, error) {
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMetaBodySize))
	if err != nil {
		return nil, &ProtocolEnvelopeError{Version: version, Field: "ws-meta", Reason: "unreadable body", Cause: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ProtocolEnvelopeError{
			Version: version,
			Field:   "ws-meta",
			Reason:  fmt.Sprintf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data))),
		}
	}
	return parseMeta(version, data)
}

func parseMeta(version string, data []byte) (*SocketMeta, error) {
	var meta SocketMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, &ProtocolEnvelopeError{Version: version, Field: "ws-meta", Reason: "invalid document", Cause: err}
	}
	return &meta, nil
}
