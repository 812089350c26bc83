package main

import (
	"github.com/spf13/cobra"

	"github.com/turnforge/agentcore/internal/config"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the resolved configuration and home directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := config.HomeDir()
			if err != nil {
				return &exitErr{exitUserError, err}
			}
			cfg, err := config.Load(flagProfile)
			if err != nil {
				return &exitErr{exitUserError, err}
			}
			cmd.Printf("home:             %s\n", home)
			cmd.Printf("config exists:    %v\n", config.Exists())
			cmd.Printf("default provider: %s\n", cfg.DefaultProvider)
			cmd.Printf("approval policy:  %s\n", cfg.Approval)
			cmd.Printf("sandbox:          %s\n", cfg.Sandbox.Kind)
			cmd.Printf("configured providers:\n")
			for name := range cfg.Providers {
				cmd.Printf("  - %s\n", name)
			}
			return nil
		},
	}
}
