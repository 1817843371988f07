// Command fluxgear compiles, runs, replays and tests fluxgear programs.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/fluxgear/internal/cli"
)

func main() {
	root := cli.NewRootCommand()
	root.SilenceErrors = true

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
