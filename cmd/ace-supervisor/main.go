package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/githubnext/ace/internal/cli"
	"github.com/githubnext/ace/internal/console"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "ace-supervisor",
		Short:   "Continuous supervisory loop for ChangeSpec hooks, workflows, and checks",
		Version: version,
	}
	rootCmd.AddCommand(cli.NewRunCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, console.FormatErrorMessage(err.Error()))
		os.Exit(1)
	}
}
