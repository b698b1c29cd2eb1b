// Package bare implements the client side of the Bare tunneling protocol.
//
// A Bare server (the gateway) performs HTTP requests and WebSocket
// connections on behalf of a client. The client wraps each logical request
// in a versioned envelope, sends it to the gateway, and unwraps the
// gateway's response envelope back into a logical response.
//
// This package holds the protocol model and the per-version codecs. The
// request lifecycle (discovery, redirects, sockets) lives in package
// bareclient.
package bare

import (
	"io"
	"net/http"
	"net/url"
	"strings"
)

// MaxRedirects is the number of redirects Fetch follows before failing.
const MaxRedirects = 20

// DefaultCache is the cache policy used when none is given.
const DefaultCache = "default"

// ForwardHeaders lists the request headers the gateway may pass through
// to the remote as-is.
var ForwardHeaders = []string{
	"accept-encoding",
	"accept-language",
	"sec-websocket-extensions",
	"sec-websocket-key",
	"sec-websocket-protocol",
	"sec-websocket-version",
}

// forwardHeaders returns a copy of ForwardHeaders.
func forwardHeaders() []string {
	return append([]string(nil), ForwardHeaders...)
}

// RedirectPolicy controls how Fetch treats redirect responses.
type RedirectPolicy string

const (
	// RedirectFollow follows up to MaxRedirects redirects.
	RedirectFollow RedirectPolicy = "follow"

	// RedirectManual returns the redirect response to the caller.
	RedirectManual RedirectPolicy = "manual"

	// RedirectErrorPolicy fails on the first redirect.
	RedirectErrorPolicy RedirectPolicy = "error"
)

// ParseRedirectPolicy maps a string to a policy. Unknown values follow.
func ParseRedirectPolicy(s string) RedirectPolicy {
	switch RedirectPolicy(strings.ToLower(s)) {
	case RedirectManual:
		return RedirectManual
	case RedirectErrorPolicy:
		return RedirectErrorPolicy
	default:
		return RedirectFollow
	}
}

// IsRedirect reports whether status is a redirect status.
func IsRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently,
		http.StatusFound,
		http.StatusSeeOther,
		http.StatusTemporaryRedirect,
		http.StatusPermanentRedirect:
		return true
	}
	return false
}

// RemoteTarget is the remote endpoint the gateway connects to.
type RemoteTarget struct {
	Host string `json:"host"`
	Port string `json:"port"`
	// Path includes the query string.
	Path string `json:"path"`
	// Scheme keeps its trailing colon ("https:").
	Scheme string `json:"protocol"`
}

// TargetFromURL derives a RemoteTarget from u.
// An absent or empty port defaults to 443 for https: and wss:, else 80.
func TargetFromURL(u *url.URL) RemoteTarget {
	scheme := strings.ToLower(u.Scheme) + ":"
	port := u.Port()
	if port == "" {
		port = DefaultPort(scheme)
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}

	return RemoteTarget{
		Host:   u.Hostname(),
		Port:   port,
		Path:   path,
		Scheme: scheme,
	}
}

// DefaultPort returns the port implied by scheme ("https:" or "https").
func DefaultPort(scheme string) string {
	switch strings.TrimSuffix(strings.ToLower(scheme), ":") {
	case "https", "wss":
		return "443"
	default:
		return "80"
	}
}

// Request is a logical request to a remote host.
type Request struct {
	Method string
	Header Headers
	// Body is nil for requests without a body.
	Body   io.Reader
	Target RemoteTarget
	Cache  string
}

// Response is a logical response decoded from a gateway envelope.
type Response struct {
	Status     int
	StatusText string
	Header     Headers
	// Body streams the transport body unbuffered.
	Body io.ReadCloser

	// RawHeader holds the gateway's own transport headers.
	RawHeader http.Header
	// Raw is the gateway's transport response.
	Raw *http.Response

	// FinalURL is the URL that produced this response. Set by Fetch only.
	FinalURL string
}

// SocketMeta is the metadata of a tunneled WebSocket handshake.
type SocketMeta struct {
	Status     int     `json:"status,omitempty"`
	StatusText string  `json:"statusText,omitempty"`
	Header     Headers `json:"headers"`
	RawHeader  Headers `json:"rawHeaders"`
}

// ConnectIntent is the connect metadata sent to the gateway for a WebSocket.
type ConnectIntent struct {
	Remote         RemoteTarget `json:"remote"`
	Header         Headers      `json:"headers"`
	ForwardHeaders []string     `json:"forward_headers"`
	ID             string       `json:"id,omitempty"`
}

// newConnectIntent builds the intent for target, setting the sub-protocol
// negotiation header when protocols are given.
func newConnectIntent(target RemoteTarget, header Headers, protocols []string, id string) ConnectIntent {
	h := header.Clone()
	if len(protocols) > 0 {
		h.Set("Sec-WebSocket-Protocol", strings.Join(protocols, ", "))
	}
	return ConnectIntent{
		Remote:         target,
		Header:         h,
		ForwardHeaders: forwardHeaders(),
		ID:             id,
	}
}
