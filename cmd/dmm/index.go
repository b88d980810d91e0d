package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var watchFlag bool

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Full reindex of the memory tree, or watch it for changes with --watch",
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := idx.FullReindex(rootCtx)
		if err != nil {
			return fmt.Errorf("reindex: %w", err)
		}

		if jsonOutput {
			outputJSON(report)
		} else {
			fmt.Printf("Reindexed %d memories (%d unchanged, %d errors)\n", report.Reindexed, report.SkippedUnchanged, len(report.Errors))
			for _, e := range report.Errors {
				fmt.Printf("  - %s (%s): %s\n", e.Path, e.Kind, e.Message)
			}
		}

		if watchFlag {
			fmt.Println("Watching for changes (Ctrl-C to stop)...")
			return idx.Watch(rootCtx)
		}
		return nil
	},
}

func init() {
	indexCmd.Flags().BoolVar(&watchFlag, "watch", false, "keep running and incrementally reindex on filesystem changes")
	rootCmd.AddCommand(indexCmd)
}
