package bareclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/Sentinel-Gate/bareclient/pkg/bare"
)

// remoteRequest is what the fake gateway decoded from an envelope.
type remoteRequest struct {
	Method string
	URL    string
	Header bare.Headers
	Body   string
	Cache  string
}

// remoteResponse is what the simulated remote answers.
type remoteResponse struct {
	Status     int
	StatusText string
	Header     map[string]string
	Body       string
}

// fakeGateway is an httptest Bare server speaking v1 and/or v2.
type fakeGateway struct {
	t        *testing.T
	server   *httptest.Server
	versions []string
	remote   func(remoteRequest) remoteResponse

	// capsStatus overrides the capability response status when non-zero.
	capsStatus atomic.Int32
	// capsBody overrides the capability document when non-empty.
	capsBody string
	// capsGate, when set, holds capability responses until it is closed.
	capsGate chan struct{}
	// omitMarker drops an envelope response header (v1) when set.
	omitMarker string

	capsHits atomic.Int32
	hits     atomic.Int32
	metaHits atomic.Int32

	mu       sync.Mutex
	requests []remoteRequest
	meta     map[string]bare.SocketMeta
}

// newFakeGateway starts the gateway after applying configure, so the
// handler sees the configured fields.
func newFakeGateway(t *testing.T, versions []string, remote func(remoteRequest) remoteResponse, configure ...func(*fakeGateway)) *fakeGateway {
	t.Helper()
	g := &fakeGateway{
		t:        t,
		versions: versions,
		remote:   remote,
		meta:     make(map[string]bare.SocketMeta),
	}
	for _, fn := range configure {
		fn(g)
	}
	g.server = httptest.NewServer(http.HandlerFunc(g.serveHTTP))
	t.Cleanup(g.server.Close)
	return g
}

func (g *fakeGateway) URL() string {
	return g.server.URL + "/"
}

func (g *fakeGateway) recorded() []remoteRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]remoteRequest(nil), g.requests...)
}

func (g *fakeGateway) serveHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/":
		g.capsHits.Add(1)
		if g.capsGate != nil {
			<-g.capsGate
		}
		g.serveCapabilities(w)
	case "/v1/", "/v2/":
		if websocket.IsWebSocketUpgrade(r) {
			g.serveSocket(w, r)
			return
		}
		g.hits.Add(1)
		g.serveEnvelope(w, r, strings.Trim(r.URL.Path, "/"))
	case "/v1/ws-meta/", "/v2/ws-meta/":
		g.serveMeta(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (g *fakeGateway) serveCapabilities(w http.ResponseWriter) {
	if status := g.capsStatus.Load(); status != 0 {
		http.Error(w, "maintenance", int(status))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if g.capsBody != "" {
		_, _ = io.WriteString(w, g.capsBody)
		return
	}
	_ = json.NewEncoder(w).Encode(bare.Capabilities{
		Versions: g.versions,
		Language: "Go",
		Project:  &bare.Project{Name: "fake-gateway"},
	})
}

func (g *fakeGateway) serveEnvelope(w http.ResponseWriter, r *http.Request, version string) {
	body, _ := io.ReadAll(r.Body)
	in := remoteRequest{Method: r.Method, Body: string(body)}

	var target bare.RemoteTarget
	switch version {
	case "v1":
		target = bare.RemoteTarget{
			Host:   r.Header.Get(bare.HeaderHost),
			Port:   r.Header.Get(bare.HeaderPort),
			Path:   r.Header.Get(bare.HeaderPath),
			Scheme: r.Header.Get(bare.HeaderProtocol),
		}
		if err := json.Unmarshal([]byte(r.Header.Get(bare.HeaderHeaders)), &in.Header); err != nil {
			http.Error(w, "bad headers", http.StatusBadRequest)
			return
		}
	case "v2":
		var meta struct {
			Remote bare.RemoteTarget `json:"remote"`
			Header bare.Headers      `json:"headers"`
			Cache  string            `json:"cache"`
		}
		if err := json.Unmarshal([]byte(r.Header.Get(bare.HeaderMeta)), &meta); err != nil {
			http.Error(w, "bad meta", http.StatusBadRequest)
			return
		}
		target, in.Header, in.Cache = meta.Remote, meta.Header, meta.Cache
	}
	in.URL = fmt.Sprintf("%s//%s:%s%s", target.Scheme, target.Host, target.Port, target.Path)

	g.mu.Lock()
	g.requests = append(g.requests, in)
	g.mu.Unlock()

	out := g.remote(in)
	if out.StatusText == "" {
		out.StatusText = http.StatusText(out.Status)
	}
	headers, _ := json.Marshal(out.Header)

	switch version {
	case "v1":
		w.Header().Set(bare.HeaderStatus, strconv.Itoa(out.Status))
		w.Header().Set(bare.HeaderStatusText, out.StatusText)
		w.Header().Set(bare.HeaderHeaders, string(headers))
		if g.omitMarker != "" {
			w.Header().Del(g.omitMarker)
		}
	case "v2":
		doc, _ := json.Marshal(map[string]any{
			"status":     out.Status,
			"statusText": out.StatusText,
			"headers":    json.RawMessage(headers),
		})
		w.Header().Set(bare.HeaderMeta, string(doc))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, out.Body)
}

// serveSocket accepts the tunnel, records the connect metadata under its
// id and echoes messages.
func (g *fakeGateway) serveSocket(w http.ResponseWriter, r *http.Request) {
	protocols := websocket.Subprotocols(r)
	if len(protocols) != 2 || protocols[0] != "bare" {
		http.Error(w, "expected bare sub-protocols", http.StatusBadRequest)
		return
	}
	doc, err := bare.DefaultFramer.Decode(protocols[1])
	if err != nil {
		http.Error(w, "bad framing", http.StatusBadRequest)
		return
	}
	var intent bare.ConnectIntent
	if err := json.Unmarshal(doc, &intent); err != nil {
		http.Error(w, "bad connect metadata", http.StatusBadRequest)
		return
	}

	header := bare.NewHeaders()
	if p := intent.Header.Get("sec-websocket-protocol"); p != "" {
		header.Set("sec-websocket-protocol", strings.Split(p, ", ")[0])
	}
	g.mu.Lock()
	g.meta[intent.ID] = bare.SocketMeta{Status: 101, StatusText: "Switching Protocols", Header: header}
	g.mu.Unlock()

	upgrader := websocket.Upgrader{Subprotocols: []string{"bare"}}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := conn.WriteMessage(mt, msg); err != nil {
			return
		}
	}
}

func (g *fakeGateway) serveMeta(w http.ResponseWriter, r *http.Request) {
	g.metaHits.Add(1)
	id := r.Header.Get(bare.HeaderID)
	g.mu.Lock()
	meta, ok := g.meta[id]
	g.mu.Unlock()
	if !ok {
		http.Error(w, "unknown socket id", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(meta)
}

// okRemote answers every request with 200 and echoes the URL.
func okRemote(in remoteRequest) remoteResponse {
	return remoteResponse{
		Status: http.StatusOK,
		Header: map[string]string{"content-type": "text/plain"},
		Body:   in.Method + " " + in.URL,
	}
}
