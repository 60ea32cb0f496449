package main

import (
	"os"

	"github.com/collectivehq/collectivist/internal/cmd"
)

// Stamped by the linker via -ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
