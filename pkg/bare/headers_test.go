package bare

import (
	"encoding/json"
	"net/http"
	"reflect"
	"testing"
)

func TestHeaders_SetReplacesCaseVariants(t *testing.T) {
	t.Parallel()

	var h Headers
	h.Add("Host", "old.example")
	h.Add("accept", "*/*")
	h.Add("HOST", "older.example")

	h.Set("host", "new.example")

	if got := h.Values("Host"); !reflect.DeepEqual(got, []string{"new.example"}) {
		t.Errorf("Values(Host) = %v, want [new.example]", got)
	}
	if got := h.Names(); !reflect.DeepEqual(got, []string{"host", "accept"}) {
		t.Errorf("Names() = %v, want [host accept]", got)
	}
}

func TestHeaders_AddKeepsFirstSpelling(t *testing.T) {
	t.Parallel()

	var h Headers
	h.Add("Set-Cookie", "a=1")
	h.Add("set-cookie", "b=2")

	if h.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", h.Len())
	}
	if got := h.Names()[0]; got != "Set-Cookie" {
		t.Errorf("name = %q, want %q", got, "Set-Cookie")
	}
	if got := h.Values("SET-COOKIE"); !reflect.DeepEqual(got, []string{"a=1", "b=2"}) {
		t.Errorf("Values = %v, want [a=1 b=2]", got)
	}
}

func TestHeaders_DelAndHas(t *testing.T) {
	t.Parallel()

	var h Headers
	h.Add("Content-Type", "text/plain")
	h.Add("X-Other", "1")
	h.Del("content-type")

	if h.Has("Content-Type") {
		t.Error("Content-Type should be removed")
	}
	if !h.Has("x-other") {
		t.Error("X-Other should remain")
	}
	if h.Get("missing") != "" {
		t.Error("Get(missing) should be empty")
	}
}

func TestHeaders_MarshalJSON(t *testing.T) {
	t.Parallel()

	var h Headers
	h.Add("zeta", "1")
	h.Add("alpha", "a")
	h.Add("alpha", "b")

	data, err := json.Marshal(h)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"zeta":"1","alpha":["a","b"]}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}
}

func TestHeaders_MarshalEmpty(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(NewHeaders())
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != "{}" {
		t.Errorf("Marshal() = %s, want {}", data)
	}
}

func TestHeaders_UnmarshalJSONPreservesOrder(t *testing.T) {
	t.Parallel()

	var h Headers
	if err := json.Unmarshal([]byte(`{"b":"2","a":["x","y"],"c":"3"}`), &h); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got := h.Names(); !reflect.DeepEqual(got, []string{"b", "a", "c"}) {
		t.Errorf("Names() = %v, want [b a c]", got)
	}
	if got := h.Values("a"); !reflect.DeepEqual(got, []string{"x", "y"}) {
		t.Errorf("Values(a) = %v, want [x y]", got)
	}

	again, err := json.Marshal(h)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(again) != `{"b":"2","a":["x","y"],"c":"3"}` {
		t.Errorf("round trip = %s", again)
	}
}

func TestHeaders_UnmarshalJSONRejectsNonStrings(t *testing.T) {
	t.Parallel()

	tests := []string{
		`{"a":1}`,
		`{"a":[1,2]}`,
		`["a"]`,
		`{"a":{"b":"c"}}`,
	}
	for _, input := range tests {
		var h Headers
		if err := json.Unmarshal([]byte(input), &h); err == nil {
			t.Errorf("Unmarshal(%s) should fail", input)
		}
	}
}

func TestHeadersFromHTTP(t *testing.T) {
	t.Parallel()

	src := http.Header{}
	src.Add("X-B", "2")
	src.Add("Accept", "text/html")
	src.Add("Accept", "application/json")

	h := HeadersFromHTTP(src)
	if got := h.Names(); !reflect.DeepEqual(got, []string{"accept", "x-b"}) {
		t.Errorf("Names() = %v, want [accept x-b]", got)
	}
	if got := h.Values("accept"); len(got) != 2 {
		t.Errorf("Values(accept) = %v, want 2 values", got)
	}

	back := h.HTTP()
	if back.Get("X-B") != "2" {
		t.Errorf("HTTP().Get(X-B) = %q, want 2", back.Get("X-B"))
	}
}

func TestHeadersFromMap(t *testing.T) {
	t.Parallel()

	h := HeadersFromMap(map[string][]string{
		"user-agent": {"test"},
		"accept":     {"*/*"},
	})
	if got := h.Names(); !reflect.DeepEqual(got, []string{"accept", "user-agent"}) {
		t.Errorf("Names() = %v, want sorted names", got)
	}
}

func TestHeaders_CloneIsIndependent(t *testing.T) {
	t.Parallel()

	var h Headers
	h.Add("a", "1")
	c := h.Clone()
	c.Add("a", "2")
	c.Set("b", "3")

	if got := h.Values("a"); !reflect.DeepEqual(got, []string{"1"}) {
		t.Errorf("original Values(a) = %v, want [1]", got)
	}
	if h.Has("b") {
		t.Error("original should not have b")
	}
}

func TestHeaders_CopiesDoNotShareMutations(t *testing.T) {
	t.Parallel()

	var h Headers
	h.Add("a", "1")
	h.Add("b", "2")
	h.Add("c", "3")

	snapshot := h
	h.Del("a")
	h.Set("b", "changed")
	h.Add("c", "4")

	if got := snapshot.Names(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("snapshot Names() = %v, want [a b c]", got)
	}
	if got := snapshot.Get("b"); got != "2" {
		t.Errorf("snapshot Get(b) = %q, want 2", got)
	}
	if got := snapshot.Values("c"); !reflect.DeepEqual(got, []string{"3"}) {
		t.Errorf("snapshot Values(c) = %v, want [3]", got)
	}

	// Two copies appending new names must not overwrite each other.
	left, right := snapshot, snapshot
	left.Add("x", "left")
	right.Add("y", "right")
	if left.Has("y") || right.Has("x") {
		t.Errorf("copies leaked: left=%v right=%v", left.Names(), right.Names())
	}
	if got := left.Get("x"); got != "left" {
		t.Errorf("left Get(x) = %q", got)
	}
}
