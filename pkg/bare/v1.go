package bare

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Envelope header names shared by the header-based versions.
const (
	HeaderHost           = "X-Bare-Host"
	HeaderPort           = "X-Bare-Port"
	HeaderProtocol       = "X-Bare-Protocol"
	HeaderPath           = "X-Bare-Path"
	HeaderHeaders        = "X-Bare-Headers"
	HeaderForwardHeaders = "X-Bare-Forward-Headers"
	HeaderStatus         = "X-Bare-Status"
	HeaderStatusText     = "X-Bare-Status-Text"
	HeaderID             = "X-Bare-ID"
)

// V1 is the legacy codec: the envelope is a set of flat X-Bare-* headers.
type V1 struct {
	gateway *url.URL
	meta    *url.URL
	framer  Framer
}

// NewV1 returns a v1 codec for the gateway at server.
func NewV1(server *url.URL, framer Framer) *V1 {
	if framer == nil {
		framer = DefaultFramer
	}
	return &V1{
		gateway: endpoint(server, "v1/"),
		meta:    endpoint(server, "v1/ws-meta/"),
		framer:  framer,
	}
}

func (c *V1) Version() string { return "v1" }

func (c *V1) EncodeRequest(ctx context.Context, req *Request) (*http.Request, error) {
	headersJSON, err := json.Marshal(req.Header)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request headers: %w", err)
	}
	forwardJSON, err := json.Marshal(ForwardHeaders)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal forward headers: %w", err)
	}

	out, err := newTransportRequest(ctx, req.Method, c.gateway.String(), req.Body)
	if err != nil {
		return nil, err
	}
	out.Header.Set(HeaderHost, req.Target.Host)
	out.Header.Set(HeaderPort, req.Target.Port)
	out.Header.Set(HeaderProtocol, req.Target.Scheme)
	out.Header.Set(HeaderPath, req.Target.Path)
	out.Header.Set(HeaderHeaders, string(headersJSON))
	out.Header.Set(HeaderForwardHeaders, string(forwardJSON))
	return out, nil
}

func (c *V1) DecodeResponse(resp *http.Response) (*Response, error) {
	for _, name := range []string{HeaderStatus, HeaderStatusText, HeaderHeaders} {
		if _, ok := resp.Header[http.CanonicalHeaderKey(name)]; !ok {
			return nil, &ProtocolEnvelopeError{Version: c.Version(), Field: name, Reason: "not specified"}
		}
	}

	status, err := strconv.Atoi(resp.Header.Get(HeaderStatus))
	if err != nil {
		return nil, &ProtocolEnvelopeError{Version: c.Version(), Field: HeaderStatus, Reason: "not a number", Cause: err}
	}

	var header Headers
	if err := json.Unmarshal([]byte(resp.Header.Get(HeaderHeaders)), &header); err != nil {
		return nil, &ProtocolEnvelopeError{Version: c.Version(), Field: HeaderHeaders, Reason: "invalid JSON", Cause: err}
	}

	return &Response{
		Status:     status,
		StatusText: resp.Header.Get(HeaderStatusText),
		Header:     header,
		Body:       resp.Body,
		RawHeader:  resp.Header,
		Raw:        resp,
	}, nil
}

func (c *V1) EncodeConnect(target RemoteTarget, header Headers, protocols []string, id string) (string, string, error) {
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

func (c *V1) EncodeMetaRequest(ctx context.Context, id string) (*http.Request, error) {
	req, err := newTransportRequest(ctx, http.MethodGet, c.meta.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(HeaderID, id)
	return req, nil
}

func (c *V1) DecodeMeta(resp *http.Response) (*SocketMeta, error) {
	return decodeMetaBody(c.Version(), resp)
}
