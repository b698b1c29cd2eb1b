package bare

import (
	"strings"
	"testing"
)

func TestDefaultFramer_RoundTrip(t *testing.T) {
	t.Parallel()

	docs := []string{
		`{"remote":{"host":"example.org","port":"443","path":"/?a=b c","protocol":"wss:"},"headers":{},"forward_headers":[]}`,
		"100% pure",
		"ünïcödé",
		"",
	}
	for _, doc := range docs {
		encoded, err := DefaultFramer.Encode([]byte(doc))
		if err != nil {
			t.Fatalf("Encode(%q) error = %v", doc, err)
		}
		for i := 0; i < len(encoded); i++ {
			c := encoded[i]
			if c != '%' && !strings.ContainsRune(tokenChars, rune(c)) {
				t.Errorf("Encode(%q) produced invalid token character %q", doc, c)
			}
		}
		decoded, err := DefaultFramer.Decode(encoded)
		if err != nil {
			t.Fatalf("Decode(%q) error = %v", encoded, err)
		}
		if string(decoded) != doc {
			t.Errorf("round trip = %q, want %q", decoded, doc)
		}
	}
}

func TestDefaultFramer_EscapesReservedCharacters(t *testing.T) {
	t.Parallel()

	got, err := DefaultFramer.Encode([]byte(`{"a":"%"}`))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	want := "%7b%22a%22%3a%22%25%22%7d"
	if got != want {
		t.Errorf("Encode() = %q, want %q", got, want)
	}
}

func TestDefaultFramer_DecodeErrors(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"%", "%4", "%zz", "a b", "{"} {
		if _, err := DefaultFramer.Decode(input); err == nil {
			t.Errorf("Decode(%q) should fail", input)
		}
	}
}
