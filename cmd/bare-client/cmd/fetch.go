package cmd

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/bareclient/internal/config"
	"github.com/Sentinel-Gate/bareclient/pkg/bare"
	"github.com/Sentinel-Gate/bareclient/pkg/bareclient"
)

var (
	fetchMethod   string
	fetchHeaders  []string
	fetchData     string
	fetchRedirect string
	fetchCache    string
	fetchInclude  bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Fetch a URL through the gateway",
	Long: `Send one request to a remote URL through the gateway and write the
response body to stdout.

Redirects are handled by the client according to --redirect
(follow, manual or error; default from client.redirect).

Examples:
  bare-client fetch https://example.org/
  bare-client fetch -i -X POST -H 'Content-Type: application/json' -d '{"a":1}' https://example.org/api
  bare-client fetch -d @body.json https://example.org/upload`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

func init() {
	flags := fetchCmd.Flags()
	flags.StringVarP(&fetchMethod, "request", "X", "", "request method (default GET, or POST with --data)")
	flags.StringArrayVarP(&fetchHeaders, "header", "H", nil, "request header 'Name: value' (repeatable)")
	flags.StringVarP(&fetchData, "data", "d", "", "request body; @file reads a file, @- reads stdin")
	flags.StringVar(&fetchRedirect, "redirect", "", "redirect policy: follow, manual or error")
	flags.StringVar(&fetchCache, "cache", "", "cache policy sent to the gateway")
	flags.BoolVarP(&fetchInclude, "include", "i", false, "print the response status and headers")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	if fetchRedirect != "" && !config.ValidRedirectPolicy(fetchRedirect) {
		return fmt.Errorf("invalid --redirect %q: must be one of follow, manual, error", fetchRedirect)
	}
	header, err := parseHeaders(fetchHeaders)
	if err != nil {
		return err
	}
	body, err := readData(fetchData, cmd.InOrStdin())
	if err != nil {
		return err
	}

	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	ctx := cmd.Context()
	if _, err := s.discover(ctx); err != nil {
		return err
	}

	req := bareclient.FetchInit{
		Method:   fetchMethod,
		Header:   header,
		Cache:    s.cfg.Client.Cache,
		Redirect: s.cfg.RedirectPolicy(),
	}
	if body != nil {
		req.Body = bytes.NewReader(body)
		if req.Method == "" {
			req.Method = "POST"
		}
	}
	if fetchRedirect != "" {
		req.Redirect = bare.RedirectPolicy(fetchRedirect)
	}
	if fetchCache != "" {
		req.Cache = fetchCache
	}

	resp, err := s.client.Fetch(ctx, args[0], req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	out := cmd.OutOrStdout()
	if fetchInclude {
		writeResponseHead(out, resp)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	s.logger.Debug("fetch complete", "url", resp.FinalURL, "status", resp.Status)
	return nil
}

// parseHeaders turns "Name: value" flags into headers, keeping their order.
func parseHeaders(raw []string) (bare.Headers, error) {
	header := bare.NewHeaders()
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return bare.Headers{}, fmt.Errorf("invalid header %q: want 'Name: value'", h)
		}
		header.Add(name, strings.TrimSpace(value))
	}
	return header, nil
}

// readData resolves the --data flag. It returns nil when no body was given.
func readData(data string, stdin io.Reader) ([]byte, error) {
	switch {
	case data == "":
		return nil, nil
	case data == "@-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return b, nil
	case strings.HasPrefix(data, "@"):
		b, err := os.ReadFile(data[1:])
		if err != nil {
			return nil, fmt.Errorf("failed to read body file: %w", err)
		}
		return b, nil
	default:
		return []byte(data), nil
	}
}

func writeResponseHead(w io.Writer, resp *bare.Response) {
	fmt.Fprintf(w, "%d %s\n", resp.Status, resp.StatusText)
	for _, name := range resp.Header.Names() {
		for _, v := range resp.Header.Values(name) {
			fmt.Fprintf(w, "%s: %s\n", name, v)
		}
	}
	fmt.Fprintln(w)
}
