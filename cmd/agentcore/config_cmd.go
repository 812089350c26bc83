package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/turnforge/agentcore/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or edit config.toml",
	}
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigListCmd())
	cmd.AddCommand(newConfigSetCmd())
	return cmd
}

func openConfigViper() (*viper.Viper, string, error) {
	home, err := config.HomeDir()
	if err != nil {
		return nil, "", err
	}
	if err := os.MkdirAll(home, 0o755); err != nil {
		return nil, "", err
	}
	path, err := config.ConfigPath()
	if err != nil {
		return nil, "", err
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, "", fmt.Errorf("read %s: %w", path, err)
		}
	}
	return v, path, nil
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the loaded configuration, with credentials resolved",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flagProfile)
			if err != nil {
				return &exitErr{exitUserError, err}
			}
			cmd.Printf("default_provider = %q\n", cfg.DefaultProvider)
			cmd.Printf("approval = %q\n", cfg.Approval)
			cmd.Printf("sandbox.kind = %q\n", cfg.Sandbox.Kind)
			for name, pc := range cfg.Providers {
				masked := "(unset)"
				if pc.APIKey != "" {
					masked = "(set)"
				}
				cmd.Printf("providers.%s.model = %q, api_key = %s\n", name, pc.Model, masked)
			}
			return nil
		},
	}
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every raw key/value pair in config.toml",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, path, err := openConfigViper()
			if err != nil {
				return &exitErr{exitUserError, err}
			}
			cmd.Printf("# %s\n", path)
			for _, key := range v.AllKeys() {
				cmd.Printf("%s = %v\n", key, v.Get(key))
			}
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a single key in config.toml (dotted path, e.g. providers.anthropic.api_key)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, path, err := openConfigViper()
			if err != nil {
				return &exitErr{exitUserError, err}
			}
			v.Set(args[0], args[1])
			if err := v.WriteConfigAs(path); err != nil {
				return &exitErr{exitUserError, fmt.Errorf("write %s: %w", path, err)}
			}
			cmd.Printf("set %s\n", args[0])
			return nil
		},
	}
}
