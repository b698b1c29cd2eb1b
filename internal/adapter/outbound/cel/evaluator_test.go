package cel

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/Sentinel-Gate/bareclient/pkg/bare"
	"github.com/Sentinel-Gate/bareclient/pkg/bareclient"
)

func target(t *testing.T, method, rawURL string) bareclient.Target {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("url.Parse(%q): %v", rawURL, err)
	}
	return bareclient.Target{Method: method, URL: u}
}

func TestNewEvaluator(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}
	if eval == nil {
		t.Fatal("NewEvaluator() returned nil")
	}
}

func TestCompile_InvalidExpression(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	if _, err := eval.Compile(`this is not valid CEL !!!`); err == nil {
		t.Fatal("Compile() expected error for invalid expression, got nil")
	}
	if _, err := eval.Compile(`host`); err == nil {
		t.Fatal("Compile() expected error for a non-bool expression, got nil")
	}
}

func TestValidateExpression_Limits(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	tests := []struct {
		name    string
		expr    string
		wantErr string
	}{
		{"empty", "", "expression is empty"},
		{"too long", `host == "` + strings.Repeat("a", maxExpressionLength) + `"`, "expression too long"},
		{"too deep", strings.Repeat("(", 60) + "true" + strings.Repeat(")", 60), "nesting too deep"},
		{"unknown variable", `tool_name == "x"`, "invalid CEL expression"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := eval.ValidateExpression(tt.expr)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ValidateExpression() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}

	if err := eval.ValidateExpression(`scheme == "https"`); err != nil {
		t.Errorf("ValidateExpression() unexpected error: %v", err)
	}
}

func TestBuildActivation(t *testing.T) {
	tg := target(t, "POST", "HTTPS://Example.ORG/a%20b?x=1")
	tg.Hop = 2

	act := BuildActivation(tg)
	want := map[string]any{
		"scheme":    "https",
		"host":      "example.org",
		"port":      int64(443),
		"path":      "/a%20b",
		"query":     "x=1",
		"method":    "POST",
		"websocket": false,
		"hop":       int64(2),
	}
	for k, v := range want {
		if act[k] != v {
			t.Errorf("%s = %#v, want %#v", k, act[k], v)
		}
	}

	if got := BuildActivation(target(t, "GET", "ws://example.org:8080/")); got["port"] != int64(8080) {
		t.Errorf("explicit port = %#v, want 8080", got["port"])
	}
	if got := BuildActivation(target(t, "GET", "ws://example.org/")); got["port"] != int64(80) {
		t.Errorf("ws default port = %#v, want 80", got["port"])
	}
}

func TestGuard_Allow(t *testing.T) {
	rule := `scheme == "https" && !host_matches(host, "*.internal") && !ip_in_cidr(host, "10.0.0.0/8") && hop < 3`
	g, err := NewGuard(rule)
	if err != nil {
		t.Fatalf("NewGuard() error: %v", err)
	}

	tests := []struct {
		name  string
		url   string
		hop   int
		allow bool
	}{
		{"public https", "https://example.org/", 0, true},
		{"plain http", "http://example.org/", 0, false},
		{"internal host", "https://db.internal/", 0, false},
		{"private ip", "https://10.1.2.3/", 0, false},
		{"public ip", "https://93.184.216.34/", 0, true},
		{"too many hops", "https://example.org/", 3, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tg := target(t, "GET", tt.url)
			tg.Hop = tt.hop

			err := g.Allow(context.Background(), tg)
			if tt.allow && err != nil {
				t.Errorf("Allow() unexpected error: %v", err)
			}
			if !tt.allow {
				var denied *bare.TargetDeniedError
				if !errors.As(err, &denied) {
					t.Fatalf("Allow() = %v, want *bare.TargetDeniedError", err)
				}
				if denied.Rule != rule || denied.URL != tg.URL.String() {
					t.Errorf("denied = %+v", denied)
				}
			}
		})
	}
}

func TestGuard_WebSocketAndMethod(t *testing.T) {
	g, err := NewGuard(`websocket || method in ["GET", "HEAD"]`)
	if err != nil {
		t.Fatalf("NewGuard() error: %v", err)
	}

	if err := g.Allow(context.Background(), target(t, "HEAD", "https://example.org/")); err != nil {
		t.Errorf("HEAD denied: %v", err)
	}
	if err := g.Allow(context.Background(), target(t, "DELETE", "https://example.org/")); !errors.Is(err, bare.ErrTargetDenied) {
		t.Errorf("DELETE = %v, want ErrTargetDenied", err)
	}

	ws := target(t, "GET", "wss://example.org/chat")
	ws.WebSocket = true
	if err := g.Allow(context.Background(), ws); err != nil {
		t.Errorf("websocket denied: %v", err)
	}
}

func TestNewGuard_InvalidRule(t *testing.T) {
	if _, err := NewGuard(`host ==`); err == nil {
		t.Fatal("expected error for invalid rule")
	}
	if _, err := NewGuard(""); err == nil {
		t.Fatal("expected error for empty rule")
	}
}
