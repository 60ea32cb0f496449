package cmd

import (
	"github.com/spf13/cobra"

	"github.com/collectivehq/collectivist/pkg/pipeline"
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render the index into browsable artifacts",
	Long: `Render regenerates README.md, index.html, index.json, and collection.nu
from the current index, and publishes them when the config carries a
publish block.`,
	Args: cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		return runPipeline(pipeline.Options{
			SkipOrganic:  true,
			SkipAnalyze:  true,
			SkipScan:     true,
			SkipDescribe: true,
		})
	},
}

func init() {
	rootCmd.AddCommand(renderCmd)
}
