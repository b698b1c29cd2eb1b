package cmd

import (
	"bufio"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var (
	wsProtocols []string
	wsHeaders   []string
	wsSend      []string
)

var wsCmd = &cobra.Command{
	Use:   "ws <url>",
	Short: "Open a WebSocket through the gateway",
	Long: `Open a WebSocket to a remote ws:// or wss:// URL through the gateway.

Each --send message (or, without --send, each line of stdin) is sent as a
text message and the next message received is printed.

Example:
  bare-client ws -p chat --send hello wss://echo.example.org/`,
	Args: cobra.ExactArgs(1),
	RunE: runWS,
}

func init() {
	flags := wsCmd.Flags()
	flags.StringArrayVarP(&wsProtocols, "protocol", "p", nil, "sub-protocol to offer the remote (repeatable)")
	flags.StringArrayVarP(&wsHeaders, "header", "H", nil, "handshake header 'Name: value' (repeatable)")
	flags.StringArrayVar(&wsSend, "send", nil, "text message to send (repeatable)")
	rootCmd.AddCommand(wsCmd)
}

func runWS(cmd *cobra.Command, args []string) error {
	header, err := parseHeaders(wsHeaders)
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

	sock, err := s.client.Connect(ctx, args[0], header, wsProtocols...)
	if err != nil {
		return err
	}
	defer sock.Close()

	meta, err := sock.Meta(ctx)
	if err != nil {
		s.logger.Warn("socket metadata unavailable", "id", sock.ID, "error", err)
	} else {
		s.logger.Info("socket open",
			"id", sock.ID,
			"version", sock.Version,
			"status", meta.Status,
			"protocol", meta.Header.Get("sec-websocket-protocol"),
		)
	}

	exchange := func(msg string) error {
		if err := sock.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			return fmt.Errorf("failed to send: %w", err)
		}
		_, reply, err := sock.ReadMessage()
		if err != nil {
			return fmt.Errorf("failed to receive: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(reply))
		return nil
	}

	if len(wsSend) > 0 {
		for _, msg := range wsSend {
			if err := exchange(msg); err != nil {
				return err
			}
		}
		return nil
	}

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := exchange(scanner.Text()); err != nil {
			return err
		}
	}
	return scanner.Err()
}
