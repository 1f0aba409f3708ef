package main

import (
	"fmt"
	"os"

	"github.com/githubnext/ace/internal/cli"
	"github.com/githubnext/ace/internal/console"
)

var version = "dev"

func main() {
	cmd := cli.NewQueryCommand()
	cmd.Version = version

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, console.FormatErrorMessage(err.Error()))
		os.Exit(1)
	}
}
