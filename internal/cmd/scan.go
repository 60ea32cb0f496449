package cmd

import (
	"github.com/spf13/cobra"

	"github.com/collectivehq/collectivist/pkg/pipeline"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Index the collection's contents",
	Long: `Scan runs the collection-type scanner over the root and rewrites the
index. Descriptions and category assignments already in the index are
preserved for items that still exist.`,
	Args: cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		return runPipeline(pipeline.Options{
			SkipOrganic:  true,
			SkipAnalyze:  true,
			SkipDescribe: true,
			SkipRender:   true,
		})
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
