package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Sentinel-Gate/bareclient/pkg/bare"
)

var infoOutput string

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the gateway's capabilities and the negotiated version",
	Long: `Fetch the gateway's capability document and show which protocol
version the client selected.

Failed fetches are retried with exponential backoff
(discovery.attempts, discovery.min_backoff, discovery.max_backoff).

Example:
  bare-client --server https://bare.example.com/ info -o yaml`,
	Args: cobra.NoArgs,
	RunE: runInfo,
}

func init() {
	infoCmd.Flags().StringVarP(&infoOutput, "output", "o", "text", "output format: text, yaml or json")
	rootCmd.AddCommand(infoCmd)
}

// gatewayInfo is the printed view of a gateway.
type gatewayInfo struct {
	Server       string            `json:"server" yaml:"server"`
	Version      string            `json:"version" yaml:"version"`
	Supported    []string          `json:"supported" yaml:"supported"`
	Capabilities bare.Capabilities `json:"capabilities" yaml:"capabilities"`
}

func runInfo(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	ctx := cmd.Context()
	caps, err := s.discover(ctx)
	if err != nil {
		return err
	}
	version, err := s.client.Version(ctx)
	if err != nil {
		return err
	}

	return writeInfo(cmd.OutOrStdout(), infoOutput, gatewayInfo{
		Server:       s.client.Server(),
		Version:      version,
		Supported:    bare.SupportedVersions(),
		Capabilities: caps,
	})
}

func writeInfo(w io.Writer, format string, info gatewayInfo) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(info); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	case "text", "":
	default:
		return fmt.Errorf("unknown output format %q (want text, yaml or json)", format)
	}

	caps := info.Capabilities
	fmt.Fprintf(w, "Gateway:    %s\n", info.Server)
	fmt.Fprintf(w, "Version:    %s (offered: %s)\n", info.Version, strings.Join(caps.Versions, ", "))
	if caps.Language != "" {
		fmt.Fprintf(w, "Language:   %s\n", caps.Language)
	}
	if caps.MemoryUsage > 0 {
		fmt.Fprintf(w, "Memory:     %.2f MB\n", caps.MemoryUsage)
	}
	if p := caps.Project; p != nil {
		fmt.Fprintf(w, "Project:    %s\n", p.Name)
		if p.Description != "" {
			fmt.Fprintf(w, "            %s\n", p.Description)
		}
		if p.Repository != "" {
			fmt.Fprintf(w, "Repository: %s\n", p.Repository)
		}
	}
	if m := caps.Maintainer; m != nil {
		fmt.Fprintf(w, "Maintainer: %s\n", strings.TrimSpace(m.Email+" "+m.Website))
	}
	return nil
}
