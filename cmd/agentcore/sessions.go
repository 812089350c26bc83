package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turnforge/agentcore/internal/config"
	"github.com/turnforge/agentcore/internal/rollout"
)

func newSessionsCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recorded sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := config.HomeDir()
			if err != nil {
				return &exitErr{exitUserError, err}
			}
			page, err := rollout.List(home, 0, "")
			if err != nil {
				return &exitErr{exitUserError, err}
			}
			shown := 0
			for _, item := range page.Items {
				archived := strings.Contains(item.Path, string(os.PathSeparator)+"archived"+string(os.PathSeparator))
				if archived && !all {
					continue
				}
				suffix := ""
				if archived {
					suffix = " (archived)"
				}
				cmd.Printf("%s\t%s\t%s%s\n", item.ID, item.Timestamp.Format("2006-01-02 15:04:05"), item.Path, suffix)
				shown++
			}
			if shown == 0 {
				cmd.PrintErrln("no sessions recorded yet")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include archived sessions")
	return cmd
}
