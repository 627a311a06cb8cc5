// Package main provides the entry point for the monokit CLI tool.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/Sumatoshi-tech/monokit/cmd/monokit/commands"
	"github.com/Sumatoshi-tech/monokit/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	err := commands.NewRootCommand().Execute()
	if err != nil {
		// Drift has already been reported on stdout.
		if !errors.Is(err, commands.ErrDependencyDrift) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}

		os.Exit(1)
	}
}
