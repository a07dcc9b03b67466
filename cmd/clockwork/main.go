package main

import (
	"fmt"
	"os"

	"github.com/roach88/clockwork/internal/cli"
)

func main() {
	root := cli.NewRootCommand()
	root.SilenceErrors = true
	root.SilenceUsage = true

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
