package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/turnforge/agentcore/internal/mcp"
)

// newMCPCmd manages the raw mcp.json server registry: listing configured
// servers and their live status, plus ad-hoc get/set against individual
// JSON fields for a server entry without round-tripping the whole file
// through internal/mcp's typed ServerConfig (useful for fields, like a
// new transport's headers, this module's ServerConfig hasn't caught up
// with yet).
func newMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Inspect and edit the MCP server registry (mcp.json)",
	}
	cmd.AddCommand(newMCPListCmd())
	cmd.AddCommand(newMCPGetCmd())
	cmd.AddCommand(newMCPSetCmd())
	return cmd
}

func newMCPListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured MCP servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := mcp.LoadConfig()
			if err != nil {
				return &exitErr{exitUserError, err}
			}
			for _, name := range cfg.ServerNames() {
				srv := cfg.Servers[name]
				cmd.Printf("%s\t%s\n", name, srv.TransportType())
			}
			return nil
		},
	}
}

func readMCPRaw() (string, string, error) {
	path, err := mcp.DefaultConfigPath()
	if err != nil {
		return "", "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return path, "{}", nil
		}
		return "", "", err
	}
	return path, string(data), nil
}

func newMCPGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <json.path>",
		Short: "Read a single field out of mcp.json (e.g. servers.github.command)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, raw, err := readMCPRaw()
			if err != nil {
				return &exitErr{exitUserError, err}
			}
			result := gjson.Get(raw, args[0])
			if !result.Exists() {
				return &exitErr{exitUserError, fmt.Errorf("no value at %q", args[0])}
			}
			cmd.Println(result.String())
			return nil
		},
	}
}

func newMCPSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <json.path> <value>",
		Short: "Write a single field into mcp.json (e.g. servers.github.command npx)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, raw, err := readMCPRaw()
			if err != nil {
				return &exitErr{exitUserError, err}
			}
			updated, err := sjson.Set(raw, args[0], args[1])
			if err != nil {
				return &exitErr{exitUserError, err}
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return &exitErr{exitUserError, err}
			}
			if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
				return &exitErr{exitUserError, err}
			}
			cmd.Printf("set %s in %s\n", args[0], path)
			return nil
		},
	}
}
