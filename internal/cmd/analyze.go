package cmd

import (
	"github.com/spf13/cobra"

	"github.com/collectivehq/collectivist/pkg/pipeline"
)

var analyzeForceType string

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Classify the collection and write collection.yaml",
	Long: `Analyze inspects the collection root, asks the configured model which
collection type fits, and writes collection.yaml. An existing config is
left untouched unless --force-type is given.`,
	Args: cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		return runPipeline(pipeline.Options{
			SkipOrganic:  true,
			SkipScan:     true,
			SkipDescribe: true,
			SkipRender:   true,
			ForceType:    analyzeForceType,
		})
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeForceType, "force-type", "", "overwrite the config with this collection type")
	rootCmd.AddCommand(analyzeCmd)
}
