package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

func newChatCmd() *cobra.Command {
	var model string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer cancel()

			cwd, err := os.Getwd()
			if err != nil {
				return &exitErr{exitUserError, err}
			}
			sess, err := NewSession(ctx, flagProfile, cwd, model, newLogger())
			if err != nil {
				return &exitErr{exitUserError, err}
			}
			defer sess.Close()

			if err := sess.RunChat(ctx); err != nil {
				if ctx.Err() == context.Canceled {
					return &exitErr{exitCancelled, ctx.Err()}
				}
				return &exitErr{exitProviderError, err}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "provider:model override, e.g. anthropic:claude-sonnet-4-5")
	return cmd
}

// runOneShot drives a single prompt given as the root command's positional
// argument, without entering the interactive chat loop.
func runOneShot(cmd *cobra.Command, prompt string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()

	cwd, err := os.Getwd()
	if err != nil {
		return &exitErr{exitUserError, err}
	}
	sess, err := NewSession(ctx, flagProfile, cwd, "", newLogger())
	if err != nil {
		return &exitErr{exitUserError, err}
	}
	defer sess.Close()

	text, err := sess.RunOneShot(ctx, prompt)
	if err != nil {
		if ctx.Err() == context.Canceled {
			return &exitErr{exitCancelled, ctx.Err()}
		}
		return &exitErr{exitProviderError, err}
	}
	cmd.Println(text)
	return nil
}
