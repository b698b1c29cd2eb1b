package bare

import (
	"net/url"
	"testing"
)

func TestTargetFromURL_PortDefaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want RemoteTarget
	}{
		{"https://x/", RemoteTarget{Host: "x", Port: "443", Path: "/", Scheme: "https:"}},
		{"http://x/", RemoteTarget{Host: "x", Port: "80", Path: "/", Scheme: "http:"}},
		{"wss://x/", RemoteTarget{Host: "x", Port: "443", Path: "/", Scheme: "wss:"}},
		{"ws://x/", RemoteTarget{Host: "x", Port: "80", Path: "/", Scheme: "ws:"}},
		{"https://x:/", RemoteTarget{Host: "x", Port: "443", Path: "/", Scheme: "https:"}},
		{"http://x:/", RemoteTarget{Host: "x", Port: "80", Path: "/", Scheme: "http:"}},
		{"https://x:8443/a/b?q=1", RemoteTarget{Host: "x", Port: "8443", Path: "/a/b?q=1", Scheme: "https:"}},
		{"http://x", RemoteTarget{Host: "x", Port: "80", Path: "/", Scheme: "http:"}},
		{"http://[::1]:8080/p", RemoteTarget{Host: "::1", Port: "8080", Path: "/p", Scheme: "http:"}},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			u, err := url.Parse(tt.raw)
			if err != nil {
				t.Fatalf("url.Parse(%q) error = %v", tt.raw, err)
			}
			if got := TargetFromURL(u); got != tt.want {
				t.Errorf("TargetFromURL(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseRedirectPolicy(t *testing.T) {
	t.Parallel()

	tests := map[string]RedirectPolicy{
		"":        RedirectFollow,
		"follow":  RedirectFollow,
		"manual":  RedirectManual,
		"MANUAL":  RedirectManual,
		"error":   RedirectErrorPolicy,
		"unknown": RedirectFollow,
	}
	for in, want := range tests {
		if got := ParseRedirectPolicy(in); got != want {
			t.Errorf("ParseRedirectPolicy(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsRedirect(t *testing.T) {
	t.Parallel()

	for _, status := range []int{301, 302, 303, 307, 308} {
		if !IsRedirect(status) {
			t.Errorf("IsRedirect(%d) = false, want true", status)
		}
	}
	for _, status := range []int{200, 204, 300, 304, 400, 500} {
		if IsRedirect(status) {
			t.Errorf("IsRedirect(%d) = true, want false", status)
		}
	}
}

func TestNewConnectIntent_SubProtocols(t *testing.T) {
	t.Parallel()

	target := RemoteTarget{Host: "x", Port: "443", Path: "/", Scheme: "wss:"}

	multi := newConnectIntent(target, NewHeaders(), []string{"a", "b"}, "")
	if got := multi.Header.Get("Sec-WebSocket-Protocol"); got != "a, b" {
		t.Errorf("Sec-WebSocket-Protocol = %q, want %q", got, "a, b")
	}

	single := newConnectIntent(target, NewHeaders(), []string{"a"}, "")
	if got := single.Header.Get("Sec-WebSocket-Protocol"); got != "a" {
		t.Errorf("Sec-WebSocket-Protocol = %q, want %q", got, "a")
	}

	none := newConnectIntent(target, NewHeaders(), nil, "")
	if none.Header.Has("Sec-WebSocket-Protocol") {
		t.Error("Sec-WebSocket-Protocol should be absent without protocols")
	}
}

func TestNewConnectIntent_DoesNotMutateCallerHeaders(t *testing.T) {
	t.Parallel()

	h := NewHeaders()
	h.Add("Origin", "https://example.org")
	newConnectIntent(RemoteTarget{}, h, []string{"chat"}, "id-1")

	if h.Has("Sec-WebSocket-Protocol") {
		t.Error("caller headers must not be modified")
	}
}
