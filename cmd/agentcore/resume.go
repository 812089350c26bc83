package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/turnforge/agentcore/internal/config"
	"github.com/turnforge/agentcore/internal/protocol"
	"github.com/turnforge/agentcore/internal/rollout"
)

func newResumeCmd() *cobra.Command {
	var model string
	cmd := &cobra.Command{
		Use:   "resume <session_id>",
		Short: "Resume a previously recorded session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer cancel()

			id := args[0]
			home, err := config.HomeDir()
			if err != nil {
				return &exitErr{exitUserError, err}
			}
			path, archived, err := rollout.FindByID(home, id)
			if err != nil {
				return &exitErr{exitUserError, fmt.Errorf("session %s not found: %w", id, err)}
			}
			_, records, _, err := rollout.Load(path)
			if err != nil {
				return &exitErr{exitUserError, err}
			}
			history := decodeHistory(records)

			cwd, err := os.Getwd()
			if err != nil {
				return &exitErr{exitUserError, err}
			}
			sess, err := NewSession(ctx, flagProfile, cwd, model, newLogger())
			if err != nil {
				return &exitErr{exitUserError, err}
			}
			defer sess.Close()
			sess.id = id
			sess.history = history
			if archived {
				cmd.PrintErrln("note: resuming an archived session")
			}

			if err := sess.RunChat(ctx); err != nil {
				if ctx.Err() == context.Canceled {
					return &exitErr{exitCancelled, ctx.Err()}
				}
				return &exitErr{exitProviderError, err}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "provider:model override")
	return cmd
}

// decodeHistory turns the user/assistant rollout records of a loaded
// session back into the protocol.Message slice a turn.Request.History
// expects, skipping record types that aren't conversation turns (tool
// calls are replayed as part of the assistant message that produced them,
// not as separate history entries).
func decodeHistory(records []rollout.Record) []protocol.Message {
	var history []protocol.Message
	for _, r := range records {
		switch r.Type {
		case rollout.RecordUserMessage, rollout.RecordAssistantMessage:
			var msg protocol.Message
			if err := json.Unmarshal(r.Payload, &msg); err != nil {
				continue
			}
			history = append(history, msg)
		}
	}
	return history
}
