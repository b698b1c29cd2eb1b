package bare

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// HeaderMeta carries the v2 envelope document.
const HeaderMeta = "X-Bare-Meta"

// maxHeaderValue is the longest envelope value sent in a single header.
// Longer values are split across HeaderMeta-0..n.
const maxHeaderValue = 3072

// V2 carries the envelope as one structured JSON document instead of a
// header per field. Oversized documents are split across numbered headers.
type V2 struct {
	gateway *url.URL
	meta    *url.URL
	framer  Framer
}

// NewV2 returns a v2 codec for the gateway at server.
func NewV2(server *url.URL, framer Framer) *V2 {
	if framer == nil {
		framer = DefaultFramer
	}
	return &V2{
		gateway: endpoint(server, "v2/"),
		meta:    endpoint(server, "v2/ws-meta/"),
		framer:  framer,
	}
}

// requestMeta is the v2 request envelope.
type requestMeta struct {
	Remote         RemoteTarget `json:"remote"`
	Header         Headers      `json:"headers"`
	ForwardHeaders []string     `json:"forward_headers"`
	Cache          string       `json:"cache,omitempty"`
}

// responseMeta is the v2 response envelope. Pointers detect absent fields.
type responseMeta struct {
	Status     *int     `json:"status"`
	StatusText *string  `json:"statusText"`
	Header     *Headers `json:"headers"`
}

func (c *V2) Version() string { return "v2" }

func (c *V2) EncodeRequest(ctx context.Context, req *Request) (*http.Request, error) {
	doc, err := json.Marshal(requestMeta{
		Remote:         req.Target,
		Header:         req.Header,
		ForwardHeaders: forwardHeaders(),
		Cache:          req.Cache,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request envelope: %w", err)
	}

	out, err := newTransportRequest(ctx, req.Method, c.gateway.String(), req.Body)
	if err != nil {
		return nil, err
	}
	splitHeader(out.Header, HeaderMeta, string(doc))
	return out, nil
}

func (c *V2) DecodeResponse(resp *http.Response) (*Response, error) {
	doc, err := joinHeader(resp.Header, HeaderMeta)
	if err != nil {
		return nil, &ProtocolEnvelopeError{Version: c.Version(), Field: HeaderMeta, Reason: "malformed split header", Cause: err}
	}
	if doc == "" {
		return nil, &ProtocolEnvelopeError{Version: c.Version(), Field: HeaderMeta, Reason: "not specified"}
	}

	var meta responseMeta
	if err := json.Unmarshal([]byte(doc), &meta); err != nil {
		return nil, &ProtocolEnvelopeError{Version: c.Version(), Field: HeaderMeta, Reason: "invalid JSON", Cause: err}
	}
	if meta.Status == nil {
		return nil, &ProtocolEnvelopeError{Version: c.Version(), Field: "status", Reason: "not specified"}
	}
	if meta.Header == nil {
		return nil, &ProtocolEnvelopeError{Version: c.Version(), Field: "headers", Reason: "not specified"}
	}

	statusText := http.StatusText(*meta.Status)
	if meta.StatusText != nil {
		statusText = *meta.StatusText
	}

	return &Response{
		Status:     *meta.Status,
		StatusText: statusText,
		Header:     *meta.Header,
		Body:       resp.Body,
		RawHeader:  resp.Header,
		Raw:        resp,
	}, nil
}

func (c *V2) EncodeConnect(target RemoteTarget, header Headers, protocols []string, id string) (string, string, error) {
	doc, err := json.Marshal(newConnectIntent(target, header, protocols, id))
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal connect metadata: %w", err)
	}
	serialized, err := c.framer.Encode(doc)
	if err != nil {
		return "", "", fmt.Errorf("failed to frame connect metadata: %w", err)
	}
	return socketURL(c.gateway), serialized, nil
}

func (c *V2) EncodeMetaRequest(ctx context.Context, id string) (*http.Request, error) {
	req, err := newTransportRequest(ctx, http.MethodGet, c.meta.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(HeaderID, id)
	return req, nil
}

// DecodeMeta prefers the X-Bare-Meta header and falls back to the body.
func (c *V2) DecodeMeta(resp *http.Response) (*SocketMeta, error) {
	doc, err := joinHeader(resp.Header, HeaderMeta)
	if err != nil {
		resp.Body.Close()
		return nil, &ProtocolEnvelopeError{Version: c.Version(), Field: HeaderMeta, Reason: "malformed split header", Cause: err}
	}
	if doc == "" {
		return decodeMetaBody(c.Version(), resp)
	}

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxMetaBodySize))
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ProtocolEnvelopeError{
			Version: c.Version(),
			Field:   "ws-meta",
			Reason:  fmt.Sprintf("gateway returned %d", resp.StatusCode),
		}
	}
	return parseMeta(c.Version(), []byte(doc))
}

// splitHeader stores value under name, or under name-0..n with each part
// prefixed by ';' when value exceeds maxHeaderValue.
func splitHeader(h http.Header, name, value string) {
	if len(value) <= maxHeaderValue {
		h.Set(name, value)
		return
	}
	for i := 0; len(value) > 0; i++ {
		n := maxHeaderValue
		if n > len(value) {
			n = len(value)
		}
		h.Set(name+"-"+strconv.Itoa(i), ";"+value[:n])
		value = value[n:]
	}
}

// joinHeader reverses splitHeader. It returns "" when name is absent.
func joinHeader(h http.Header, name string) (string, error) {
	if v, ok := h[http.CanonicalHeaderKey(name)]; ok && len(v) > 0 {
		return v[0], nil
	}

	prefix := http.CanonicalHeaderKey(name) + "-"
	parts := make(map[int]string)
	for key, vals := range h {
		if !strings.HasPrefix(key, prefix) || len(vals) == 0 {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimPrefix(key, prefix))
		if err != nil || idx < 0 {
			return "", fmt.Errorf("invalid part index in %s", key)
		}
		part := vals[0]
		if !strings.HasPrefix(part, ";") {
			return "", fmt.Errorf("%s: value must start with ';'", key)
		}
		parts[idx] = part[1:]
	}
	if len(parts) == 0 {
		return "", nil
	}

	indices := make([]int, 0, len(parts))
	for idx := range parts {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	var b strings.Builder
	for want, idx := range indices {
		if idx != want {
			return "", fmt.Errorf("missing part %s%d", prefix, want)
		}
		b.WriteString(parts[idx])
	}
	return b.String(), nil
}
