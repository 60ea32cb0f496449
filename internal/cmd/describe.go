package cmd

import (
	"github.com/spf13/cobra"

	"github.com/collectivehq/collectivist/pkg/pipeline"
)

var describeMaxWorkers int

var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Generate descriptions for undescribed items",
	Long: `Describe sends each undescribed item's content sample to the configured
model and records a one-line description and category. Items that
already have descriptions are never touched.`,
	Args: cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		return runPipeline(pipeline.Options{
			SkipOrganic: true,
			SkipAnalyze: true,
			SkipScan:    true,
			SkipRender:  true,
			MaxWorkers:  describeMaxWorkers,
		})
	},
}

func init() {
	describeCmd.Flags().IntVar(&describeMaxWorkers, "max-workers", 0, "describer pool size (0 = default)")
	rootCmd.AddCommand(describeCmd)
}
