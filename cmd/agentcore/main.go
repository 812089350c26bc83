// Command agentcore is the CLI entrypoint for the agent turn engine: a
// chat/resume/sessions/status/config surface over internal/turn.Engine,
// built the way the teacher's cmd/ tree wires its own root command (one
// file per subcommand, global flags bound once on the root).
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagProfile string
	flagVerbose bool
	flagNoTUI   bool
)

const (
	exitOK            = 0
	exitUserError     = 1
	exitProviderError = 2
	exitCancelled     = 130
)

func main() {
	os.Exit(run())
}

func run() int {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		return exitCodeFor(err)
	}
	return exitOK
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "agentcore [prompt]",
		Short: "Run and manage agent turn engine sessions",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return runOneShot(cmd, args[0])
		},
	}
	root.PersistentFlags().StringVar(&flagProfile, "profile", "", "named config profile to use")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().BoolVar(&flagNoTUI, "no-tui", false, "disable interactive TUI rendering")

	root.AddCommand(newChatCmd())
	root.AddCommand(newResumeCmd())
	root.AddCommand(newSessionsCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newMCPCmd())
	return root
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if flagVerbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// exitErr carries the process exit code a cobra RunE wants to surface,
// since cobra itself only distinguishes error/no-error.
type exitErr struct {
	code int
	err  error
}

func (e *exitErr) Error() string { return e.err.Error() }
func (e *exitErr) Unwrap() error { return e.err }

func exitCodeFor(err error) int {
	var ee *exitErr
	if as(err, &ee) {
		return ee.code
	}
	fmt.Fprintln(os.Stderr, "error:", err)
	return exitUserError
}

func as(err error, target **exitErr) bool {
	for err != nil {
		if e, ok := err.(*exitErr); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
