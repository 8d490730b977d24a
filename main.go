package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/dualforge/tagger/cmd"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	root := cmd.NewRootCmd()

	// Use fang for beautiful CLI with automatic completions, manpages, --version, etc.
	if err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt, os.Kill),
	); err != nil {
		os.Exit(1)
	}
}
