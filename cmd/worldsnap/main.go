// Package main provides the entry point for worldsnap.
//
// worldsnap keeps incremental generation backups of a directory tree:
// unchanged files are recorded as references to the generation that holds
// their bytes, and any generation can be restored or removed on its own.
package main

import (
	"fmt"
	"os"

	"github.com/yndnr/worldsnap/internal/cli/command"
)

func main() {
	app := command.App(os.Stdout, os.Stderr)

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
