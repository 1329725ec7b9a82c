package main

import (
	"os"

	"github.com/roach88/jsonapi/internal/cli"
)

func main() {
	rootCmd := cli.NewRootCommand()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
