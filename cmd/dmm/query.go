package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmmcore/dmm/internal/dmmtypes"
	"github.com/dmmcore/dmm/internal/indexer"
	"github.com/dmmcore/dmm/internal/retrieval"
	"github.com/dmmcore/dmm/internal/store"
)

var (
	queryBudget   int
	queryScope    string
	queryStatus   string
	queryPathGlob string
)

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Assemble a token-budgeted memory pack for a query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := store.MemoryFilter{
			Scope:    dmmtypes.Scope(queryScope),
			Status:   dmmtypes.Status(queryStatus),
			PathGlob: queryPathGlob,
		}
		budget := queryBudget
		if budget == 0 {
			budget = cfg.DefaultPackBudgetTokens
		}

		needsReindex, err := indexer.CheckVersions(rootCtx, st, embedder)
		if err != nil {
			return fmt.Errorf("check index versions: %w", err)
		}
		if needsReindex {
			if _, err := idx.FullReindex(rootCtx); err != nil {
				return fmt.Errorf("reindex after version change: %w", err)
			}
		}

		pack, err := retriever.Query(rootCtx, retrieval.QueryRequest{
			QueryText: args[0],
			Budget:    budget,
			Filters:   filter,
		})
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}

		if jsonOutput {
			outputJSON(pack)
			return nil
		}
		fmt.Print(retrieval.Render(pack, time.Now()))
		return nil
	},
}

func init() {
	queryCmd.Flags().IntVar(&queryBudget, "budget", 0, "token budget for the pack (defaults to config's default_pack_budget_tokens)")
	queryCmd.Flags().StringVar(&queryScope, "scope", "", "restrict to one scope (global, project, agent, ...)")
	queryCmd.Flags().StringVar(&queryStatus, "status", "", "restrict to one status (active, draft, ...)")
	queryCmd.Flags().StringVar(&queryPathGlob, "path", "", "restrict to paths matching a glob")
	rootCmd.AddCommand(queryCmd)
}
