package bare

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sort"
	"strings"
)

// Headers is an ordered, case-insensitive header multimap.
// It serializes to the Bare header object: a single value is a JSON string,
// several values are a JSON array of strings. Key order is preserved.
//
// Headers behaves as a value: Add, Set and Del never write to storage a
// previously taken copy can observe.
type Headers struct {
	fields []headerField
}

type headerField struct {
	name   string
	values []string
}

// NewHeaders returns an empty header set.
func NewHeaders() Headers {
	return Headers{}
}

// HeadersFromHTTP flattens an http.Header into Headers.
// Names are lowercased and sorted since http.Header has no order.
func HeadersFromHTTP(h http.Header) Headers {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)

	var out Headers
	for _, name := range names {
		for _, v := range h[name] {
			out.Add(strings.ToLower(name), v)
		}
	}
	return out
}

// HeadersFromMap builds Headers from a plain map, sorted by name.
func HeadersFromMap(m map[string][]string) Headers {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	var out Headers
	for _, name := range names {
		for _, v := range m[name] {
			out.Add(name, v)
		}
	}
	return out
}

func (h *Headers) index(name string) int {
	for i := range h.fields {
		if strings.EqualFold(h.fields[i].name, name) {
			return i
		}
	}
	return -1
}

// Add appends a value to name, keeping the first spelling of the name.
func (h *Headers) Add(name, value string) {
	if i := h.index(name); i >= 0 {
		fields := slices.Clone(h.fields)
		fields[i].values = append(slices.Clip(fields[i].values), value)
		h.fields = fields
		return
	}
	h.fields = append(slices.Clip(h.fields), headerField{name: name, values: []string{value}})
}

// Set replaces every case variant of name with the given values.
// The field keeps the position of its first occurrence.
func (h *Headers) Set(name string, values ...string) {
	vals := append([]string(nil), values...)
	pos := -1
	kept := make([]headerField, 0, len(h.fields)+1)
	for _, f := range h.fields {
		if strings.EqualFold(f.name, name) {
			if pos < 0 {
				pos = len(kept)
				kept = append(kept, headerField{name: name, values: vals})
			}
			continue
		}
		kept = append(kept, f)
	}
	h.fields = kept
	if pos < 0 {
		h.fields = append(h.fields, headerField{name: name, values: vals})
	}
}

// Get returns the first value for name, or "".
func (h Headers) Get(name string) string {
	for _, f := range h.fields {
		if strings.EqualFold(f.name, name) && len(f.values) > 0 {
			return f.values[0]
		}
	}
	return ""
}

// Values returns all values for name.
func (h Headers) Values(name string) []string {
	for _, f := range h.fields {
		if strings.EqualFold(f.name, name) {
			return append([]string(nil), f.values...)
		}
	}
	return nil
}

// Has reports whether name is present.
func (h Headers) Has(name string) bool {
	return h.index(name) >= 0
}

// Del removes name.
func (h *Headers) Del(name string) {
	kept := make([]headerField, 0, len(h.fields))
	for _, f := range h.fields {
		if !strings.EqualFold(f.name, name) {
			kept = append(kept, f)
		}
	}
	h.fields = kept
}

// Len returns the number of distinct names.
func (h Headers) Len() int {
	return len(h.fields)
}

// Names returns the header names in order.
func (h Headers) Names() []string {
	names := make([]string, len(h.fields))
	for i, f := range h.fields {
		names[i] = f.name
	}
	return names
}

// Clone returns a deep copy.
func (h Headers) Clone() Headers {
	out := Headers{fields: make([]headerField, len(h.fields))}
	for i, f := range h.fields {
		out.fields[i] = headerField{name: f.name, values: append([]string(nil), f.values...)}
	}
	return out
}

// HTTP converts to an http.Header. Names are canonicalized by Add.
func (h Headers) HTTP() http.Header {
	out := make(http.Header, len(h.fields))
	for _, f := range h.fields {
		for _, v := range f.values {
			out.Add(f.name, v)
		}
	}
	return out
}

// MarshalJSON writes the Bare header object in insertion order.
func (h Headers) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range h.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(f.name)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')

		var val []byte
		if len(f.values) == 1 {
			val, err = json.Marshal(f.values[0])
		} else {
			vals := f.values
			if vals == nil {
				vals = []string{}
			}
			val, err = json.Marshal(vals)
		}
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a Bare header object, keeping document order.
func (h *Headers) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		h.fields = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("headers: expected object, got %v", tok)
	}

	var out Headers
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("headers: expected string key, got %v", keyTok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var single string
		if err := json.Unmarshal(raw, &single); err == nil {
			out.Add(name, single)
			continue
		}
		var multi []string
		if err := json.Unmarshal(raw, &multi); err != nil {
			return fmt.Errorf("headers: value of %q must be a string or array of strings", name)
		}
		if len(multi) == 0 {
			out.Set(name)
			continue
		}
		for _, v := range multi {
			out.Add(name, v)
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*h = out
	return nil
}
