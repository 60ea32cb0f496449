package cmd

import (
	"github.com/spf13/cobra"

	"github.com/collectivehq/collectivist/pkg/pipeline"
)

var updateOpts struct {
	skipProcessNew bool
	skipAnalyze    bool
	skipScan       bool
	skipDescribe   bool
	skipRender     bool
	forceType      string
	maxWorkers     int
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Run the full pipeline",
	Long: `Update runs every stage in order: file new arrivals, analyze if needed,
scan, describe, render. The collection's schedule mode shapes the run;
individual stages can be skipped with flags.`,
	Args: cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		return runPipeline(pipeline.Options{
			SkipOrganic:  updateOpts.skipProcessNew,
			SkipAnalyze:  updateOpts.skipAnalyze,
			SkipScan:     updateOpts.skipScan,
			SkipDescribe: updateOpts.skipDescribe,
			SkipRender:   updateOpts.skipRender,
			ForceType:    updateOpts.forceType,
			MaxWorkers:   updateOpts.maxWorkers,
		})
	},
}

func init() {
	f := updateCmd.Flags()
	f.BoolVar(&updateOpts.skipProcessNew, "skip-process-new", false, "skip filing new arrivals")
	f.BoolVar(&updateOpts.skipAnalyze, "skip-analyze", false, "skip collection type analysis")
	f.BoolVar(&updateOpts.skipScan, "skip-scan", false, "skip content indexing")
	f.BoolVar(&updateOpts.skipDescribe, "skip-describe", false, "skip description generation")
	f.BoolVar(&updateOpts.skipRender, "skip-render", false, "skip artifact rendering")
	f.StringVar(&updateOpts.forceType, "force-type", "", "overwrite the config with this collection type")
	f.IntVar(&updateOpts.maxWorkers, "max-workers", 0, "describer pool size (0 = default)")
	rootCmd.AddCommand(updateCmd)
}
