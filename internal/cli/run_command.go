// Package cli builds the cobra commands the cmd/ace-supervisor and
// cmd/ace-query binaries wrap, following the teacher's
// NewXCommand() returning *cobra.Command convention.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/githubnext/ace/internal/console"
	"github.com/githubnext/ace/internal/supervisor"
	"github.com/githubnext/ace/internal/vcs"
)

// NewRunCommand builds the supervisor's sole subcommand: the
// continuous loop described in spec.md §6 ("one long-running command
// accepting --interval, --hook-interval, --verbose"). Exit codes: 0 on
// SIGINT, non-zero on an unhandled internal error.
func NewRunCommand() *cobra.Command {
	var (
		intervalSeconds     int
		hookIntervalSeconds int
		verbose             bool
		projectsDir         string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the continuous supervisory loop against a project directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := supervisor.Config{
				ProjectsDir:       projectsDir,
				FullCycleInterval: time.Duration(intervalSeconds) * time.Second,
				FastCycleInterval: time.Duration(hookIntervalSeconds) * time.Second,
				VCS:               vcs.NewShellClient("hg"),
			}
			if verbose {
				cfg.Log = func(name, message string) {
					fmt.Fprintln(os.Stderr, console.FormatInfoMessage(fmt.Sprintf("%s: %s", name, message)))
				}
			}
			s := supervisor.New(cfg)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sigCh
				fmt.Fprintln(os.Stderr, console.FormatInfoMessage("received interrupt signal, shutting down"))
				cancel()
			}()

			return s.Run(ctx)
		},
	}

	cmd.Flags().IntVar(&intervalSeconds, "interval", int(supervisor.DefaultFullCycleInterval/time.Second), "Full cycle interval, in seconds")
	cmd.Flags().IntVar(&hookIntervalSeconds, "hook-interval", int(supervisor.DefaultFastCycleInterval/time.Second), "Fast cycle interval, in seconds")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log every applied update to stderr")
	cmd.Flags().StringVar(&projectsDir, "projects-dir", defaultProjectsDir(), "Directory containing project (.gp) files")

	return cmd
}

func defaultProjectsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home + "/.gai/projects"
}
