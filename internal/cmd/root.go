// Package cmd implements the collectivist CLI. Every command operates
// on the current working directory as the collection root.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/collectivehq/collectivist/internal/observability"
)

// versionInfo is populated at build time via SetVersionInfo.
var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "unknown",
	BuildDate: "unknown",
}

// SetVersionInfo records the build metadata stamped by the linker.
func SetVersionInfo(version, commit, buildDate string) {
	if version != "" {
		versionInfo.Version = version
	}
	if commit != "" {
		versionInfo.Commit = commit
	}
	if buildDate != "" {
		versionInfo.BuildDate = buildDate
	}
}

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "collectivist",
	Short: "Keep directory collections organized, described, and rendered",
	Long: `Collectivist turns a directory of stuff into a documented collection:
it classifies the collection, indexes its contents, describes each item
with a language model, and renders browsable artifacts.

All commands treat the current working directory as the collection root.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(*cobra.Command, []string) error {
		return observability.InitLogging(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug output")
}

// Execute runs the CLI. The error, if any, has already been printed.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(rootCmd.ErrOrStderr(), "[X] %v\n", err)
	}
	return err
}
