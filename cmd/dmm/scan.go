package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmmcore/dmm/internal/conflict/analyzer"
	"github.com/dmmcore/dmm/internal/conflict/merge"
	"github.com/dmmcore/dmm/internal/conflict/scanner"
	"github.com/dmmcore/dmm/internal/dmmtypes"
)

var (
	scanTargeted []string
	scanPeriodic bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a conflict scan over the corpus (full by default, or a targeted memory set)",
	RunE: func(cmd *cobra.Command, args []string) error {
		sc := buildScanner()
		start := time.Now().UTC()

		if scanPeriodic {
			interval, err := time.ParseDuration(cfg.PeriodicScanInterval)
			if err != nil {
				return fmt.Errorf("parse periodic_scan_interval %q: %w", cfg.PeriodicScanInterval, err)
			}
			due, err := sc.DuePeriodic(rootCtx, interval, start)
			if err != nil {
				return fmt.Errorf("check periodic due: %w", err)
			}
			if !due {
				fmt.Println("Periodic scan not due yet")
				return nil
			}
		}

		var (
			record *dmmtypes.ScanRecord
			err    error
		)
		switch {
		case len(scanTargeted) > 0:
			record, err = sc.ScanTargeted(rootCtx, scanTargeted, start, time.Now().UTC())
		case scanPeriodic:
			record, err = sc.ScanFull(rootCtx, dmmtypes.ScanPeriodic, start, time.Now().UTC())
		default:
			record, err = sc.ScanFull(rootCtx, dmmtypes.ScanStartup, start, time.Now().UTC())
		}
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}

		if jsonOutput {
			outputJSON(record)
			return nil
		}
		fmt.Printf("Scan %s: %d memories, %d detected (%d new, %d existing) in %dms\n",
			record.ScanID, record.MemoriesScanned, record.Detected, record.New, record.Existing, record.DurationMS)
		for _, e := range record.Errors {
			fmt.Printf("  analyzer error: %s\n", e)
		}
		return nil
	},
}

// buildScanner assembles the tag-overlap, semantic-similarity, and
// supersession-chain analyzers from config; the optional rule-extraction
// refinement stays a library-level call (internal/conflict/analyzer's
// Refine) since it only makes sense applied to a prior semantic-similarity
// pass's output, not as a fourth parallel Analyzer.
func buildScanner() *scanner.Scanner {
	analyzers := []analyzer.Analyzer{
		analyzer.NewTagOverlap(cfg.TagOverlapThreshold),
		analyzer.NewSemanticSimilarity(embedder, cfg.SemanticSimThreshold, cfg.DivergenceThreshold, cfg.HighSimilarityThreshold, cfg.ScanPairCap),
		analyzer.NewSupersession(cfg.MaxChainDepth),
	}
	m := merge.New(st, cfg.MultiMethodBoost, cfg.MaxConfidenceBoost)
	return scanner.New(st, analyzers, m)
}

func init() {
	scanCmd.Flags().StringSliceVar(&scanTargeted, "memory-ids", nil, "scan only these memory ids against the rest of the corpus")
	scanCmd.Flags().BoolVar(&scanPeriodic, "periodic", false, "only run if the configured periodic_scan_interval has elapsed since the last periodic scan")
	rootCmd.AddCommand(scanCmd)
}
