package cel

import (
	"net"
	"path"
	"strconv"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/ext"

	"github.com/Sentinel-Gate/bareclient/pkg/bare"
	"github.com/Sentinel-Gate/bareclient/pkg/bareclient"
)

// NewTargetEnvironment creates the CEL environment remote URL rules are
// compiled in. It declares:
//   - Variables: url, scheme, host, port, path, query, method, websocket, hop
//   - Functions: host_matches, ip_in_cidr
func NewTargetEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		ext.Strings(),
		ext.Sets(),

		cel.Variable("url", cel.StringType),
		cel.Variable("scheme", cel.StringType),
		cel.Variable("host", cel.StringType),
		cel.Variable("port", cel.IntType),
		cel.Variable("path", cel.StringType),
		cel.Variable("query", cel.StringType),
		cel.Variable("method", cel.StringType),
		cel.Variable("websocket", cel.BoolType),
		cel.Variable("hop", cel.IntType),

		// host_matches: glob match against a host name.
		// Usage: host_matches(host, "*.example.org")
		cel.Function("host_matches",
			cel.Overload("host_matches_string_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(func(hostVal, patternVal ref.Val) ref.Val {
					host := strings.ToLower(hostVal.Value().(string))
					pattern := strings.ToLower(patternVal.Value().(string))
					matched, _ := path.Match(pattern, host)
					return types.Bool(matched)
				}),
			),
		),

		// ip_in_cidr: false unless host is an IP literal inside the range.
		// Usage: ip_in_cidr(host, "10.0.0.0/8")
		cel.Function("ip_in_cidr",
			cel.Overload("ip_in_cidr_string_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(func(ipVal, cidrVal ref.Val) ref.Val {
					ip := net.ParseIP(ipVal.Value().(string))
					if ip == nil {
						return types.Bool(false)
					}
					_, network, err := net.ParseCIDR(cidrVal.Value().(string))
					if err != nil {
						return types.Bool(false)
					}
					return types.Bool(network.Contains(ip))
				}),
			),
		),
	)
}

// BuildActivation creates the variable bindings for t. The port falls
// back to the scheme's default the same way the gateway envelope does.
func BuildActivation(t bareclient.Target) map[string]any {
	remote := bare.TargetFromURL(t.URL)
	port, _ := strconv.ParseInt(remote.Port, 10, 64)

	return map[string]any{
		"url":       t.URL.String(),
		"scheme":    strings.ToLower(t.URL.Scheme),
		"host":      strings.ToLower(t.URL.Hostname()),
		"port":      port,
		"path":      t.URL.EscapedPath(),
		"query":     t.URL.RawQuery,
		"method":    t.Method,
		"websocket": t.WebSocket,
		"hop":       int64(t.Hop),
	}
}
