// Command dmm is the operator-facing harness over DMM's packages: it
// indexes a memory root, runs the retriever, drives the propose/review/
// commit pipeline, and triggers conflict scans, the way the teacher's
// cmd/bd wires internal/beads, internal/storage, and internal/rpc behind
// one cobra root command.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dmmcore/dmm/internal/commit"
	"github.com/dmmcore/dmm/internal/config"
	"github.com/dmmcore/dmm/internal/embed"
	"github.com/dmmcore/dmm/internal/indexer"
	"github.com/dmmcore/dmm/internal/proposal"
	"github.com/dmmcore/dmm/internal/retrieval"
	"github.com/dmmcore/dmm/internal/review"
	"github.com/dmmcore/dmm/internal/store"
	"github.com/dmmcore/dmm/internal/store/factory"

	_ "github.com/dmmcore/dmm/internal/store/doltstore"
	_ "github.com/dmmcore/dmm/internal/store/sqlitestore"
)

var (
	rootDir      string
	jsonOutput   bool
	rootCtx      context.Context
	cfg          *config.Config
	st           store.Store
	embedder     embed.Embedder
	idx          *indexer.Indexer
	queue        *proposal.Queue
	reviewer     *review.Reviewer
	commitEngine *commit.Engine
	retriever    *retrieval.Retriever
)

var rootCmd = &cobra.Command{
	Use:   "dmm",
	Short: "Dynamic Markdown Memory: a queryable memory substrate for long-running agents",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "init" {
			return nil
		}
		return wireApp()
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if st != nil {
			return st.Close()
		}
		return nil
	},
}

// wireApp loads config and opens every collaborator the subcommands share,
// mirroring the teacher's main()'s single storage-and-daemon bring-up
// ahead of command dispatch.
func wireApp() error {
	var err error
	cfg, err = config.Load(rootDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	st, err = factory.New(rootCtx, cfg.StoreBackend, cfg.StorePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	embedder, err = newEmbedder(cfg)
	if err != nil {
		return fmt.Errorf("build embedder: %w", err)
	}

	idx = indexer.New(cfg.MemoryRoot, st, embedder)
	queue = proposal.New(st)
	commitEngine = commit.New(cfg.MemoryRoot, st, idx, queue)
	retriever = retrieval.New(st, embedder, cfg)

	quality := review.NewQualityChecker(cfg.MaxBodyTokens)
	duplicate := review.NewDuplicateDetector(st, embedder, cfg.HardDuplicateThreshold, cfg.NearDuplicateThreshold)
	decision := review.NewDecisionEngine(cfg.Recipe.AutoApproveThreshold, cfg.Recipe.AutoApproveCreate)
	reviewer = review.New(st, quality, duplicate, decision)

	return nil
}

// newEmbedder picks the configured Embedder backend. "anthropic" requires
// ANTHROPIC_API_KEY in the environment; any other value (including the
// empty string) falls back to the deterministic hash embedder so a fresh
// checkout works offline.
func newEmbedder(cfg *config.Config) (embed.Embedder, error) {
	if cfg.EmbedderBackend != "anthropic" {
		return embed.NewHashEmbedder(), nil
	}
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("embedder_backend=anthropic requires ANTHROPIC_API_KEY")
	}
	return embed.NewAnthropicEmbedder(apiKey, cfg.EmbedderModel), nil
}

func outputJSON(v any) {
	encoder := jsonEncoder(os.Stdout)
	if err := encoder.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}

func outputJSONError(err error) {
	encoder := jsonEncoder(os.Stderr)
	_ = encoder.Encode(map[string]string{"error": err.Error()})
}

func fail(err error) {
	if jsonOutput {
		outputJSONError(err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(1)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	rootCtx = ctx

	rootCmd.PersistentFlags().StringVarP(&rootDir, "root", "r", ".", "base directory containing the memory tree and dmm.yaml")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit machine-readable JSON instead of text")
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true

	if err := rootCmd.Execute(); err != nil {
		fail(err)
	}
}
