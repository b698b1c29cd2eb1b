package bare

import (
	"fmt"
	"strconv"
	"strings"
)

// Framer serializes connect metadata into a string that can travel as a
// WebSocket sub-protocol token.
type Framer interface {
	Encode(doc []byte) (string, error)
	Decode(s string) ([]byte, error)
}

// DefaultFramer percent-escapes every byte that is not a valid token
// character, and '%' itself.
var DefaultFramer Framer = protocolFramer{}

const tokenChars = "!#$&'*+-.0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ^_`abcdefghijklmnopqrstuvwxyz|~"

type protocolFramer struct{}

func (protocolFramer) Encode(doc []byte) (string, error) {
	var b strings.Builder
	b.Grow(len(doc))
	for _, c := range doc {
		if strings.IndexByte(tokenChars, c) >= 0 {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02x", c)
	}
	return b.String(), nil
}

func (protocolFramer) Decode(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '%' {
			if strings.IndexByte(tokenChars, c) < 0 {
				return nil, fmt.Errorf("invalid protocol character %q at %d", c, i)
			}
			out = append(out, c)
			continue
		}
		if i+2 >= len(s) {
			return nil, fmt.Errorf("truncated escape at %d", i)
		}
		v, err := strconv.ParseUint(s[i+1:i+3], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid escape at %d: %w", i, err)
		}
		out = append(out, byte(v))
		i += 2
	}
	return out, nil
}
