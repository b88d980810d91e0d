// Package config loads DMM's ambient configuration: dmm.yaml for runtime
// settings and dmm.recipe.toml for reviewer/pack-assembly thresholds
// (SPEC_FULL.md §0.1). It follows the teacher's layered-override idiom
// (internal/config.LoadLocalConfigWithEnv): read the file with yaml.v3,
// then apply DMM_*-prefixed environment overrides on top, never a global
// singleton — callers receive an explicit *Config.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the fully-resolved runtime configuration for one memory root.
// Every component that needs a threshold or path takes a *Config rather
// than reading the environment or a file itself.
type Config struct {
	// MemoryRoot is the directory containing the scope subdirectories
	// (baseline/, global/, agent/, project/, ephemeral/, deprecated/).
	MemoryRoot string `yaml:"memory_root"`

	// StoreBackend selects the Store implementation: "sqlite" (default) or
	// "dolt" (spec.md §4.3, SPEC_FULL.md §4).
	StoreBackend string `yaml:"store_backend"`
	StorePath    string `yaml:"store_path"`

	// EmbedderBackend selects the Embedder implementation: "hash" (default,
	// deterministic, no network) or "anthropic".
	EmbedderBackend string `yaml:"embedder_backend"`
	EmbedderModel   string `yaml:"embedder_model"`

	// Retrieval/pack-assembly tuning (spec.md §4.4-4.5).
	DefaultPackBudgetTokens int     `yaml:"default_pack_budget_tokens"`
	BaselineReserveFraction float64 `yaml:"baseline_reserve_fraction"`
	DirectoryTopK           int     `yaml:"directory_top_k"`
	ContentTopKPerDirectory int     `yaml:"content_top_k_per_directory"`

	// Reviewer thresholds (spec.md §6.4).
	HardDuplicateThreshold float64 `yaml:"hard_duplicate_threshold"`
	NearDuplicateThreshold float64 `yaml:"near_duplicate_threshold"`
	MaxBodyTokens          int     `yaml:"max_body_tokens"`

	// Conflict scan scheduling and analyzer tuning (spec.md §4.9).
	PeriodicScanInterval   string  `yaml:"periodic_scan_interval"`
	TagOverlapThreshold    float64 `yaml:"tag_overlap_threshold"`
	SemanticSimThreshold   float64 `yaml:"semantic_similarity_threshold"`
	DivergenceThreshold    float64 `yaml:"divergence_threshold"`
	HighSimilarityThreshold float64 `yaml:"high_similarity_threshold"`
	MaxChainDepth          int     `yaml:"max_chain_depth"`
	ScanPairCap            int     `yaml:"scan_pair_cap"`
	MultiMethodBoost       float64 `yaml:"multi_method_boost"`
	MaxConfidenceBoost     float64 `yaml:"max_confidence_boost"`

	// Backup retention for the Commit Engine (spec.md §4.8).
	BackupRetentionHours int `yaml:"backup_retention_hours"`

	// Recipe holds reviewer/pack-assembly tuning loaded from
	// dmm.recipe.toml, kept as a separate file the way the teacher keeps
	// AI-tool recipes in their own TOML document (internal/recipes).
	Recipe Recipe `yaml:"-"`
}

// Recipe is a named bundle of reviewer/pack tuning, loaded from
// dmm.recipe.toml. Multiple recipes let an operator switch between, say, a
// conservative review posture and a permissive one without editing
// dmm.yaml.
type Recipe struct {
	Name                string  `toml:"name"`
	Description         string  `toml:"description"`
	AutoApproveCreate    bool    `toml:"auto_approve_create"`
	AutoApproveThreshold float64 `toml:"auto_approve_threshold"`
	DeferOnLowConfidence bool    `toml:"defer_on_low_confidence"`
}

func defaults() *Config {
	return &Config{
		MemoryRoot:              "./memory",
		StoreBackend:            "sqlite",
		StorePath:               "./memory/.dmm/store.db",
		EmbedderBackend:         "hash",
		EmbedderModel:           "",
		DefaultPackBudgetTokens: 8000,
		BaselineReserveFraction: 0.2,
		DirectoryTopK:           5,
		ContentTopKPerDirectory: 10,
		HardDuplicateThreshold:  0.95,
		NearDuplicateThreshold:  0.85,
		MaxBodyTokens:           2000,
		PeriodicScanInterval:    "24h",
		TagOverlapThreshold:     0.70,
		SemanticSimThreshold:    0.80,
		DivergenceThreshold:     0.15,
		HighSimilarityThreshold: 0.95,
		MaxChainDepth:           10,
		ScanPairCap:             10000,
		MultiMethodBoost:        0.1,
		MaxConfidenceBoost:      0.25,
		BackupRetentionHours:    24,
		Recipe: Recipe{
			Name:                 "default",
			AutoApproveCreate:    false,
			AutoApproveThreshold: 0.98,
			DeferOnLowConfidence: true,
		},
	}
}

// Load reads dmm.yaml and dmm.recipe.toml from baseDir (either may be
// absent, in which case defaults apply), then applies DMM_*-prefixed
// environment overrides. It never panics on a missing file; a malformed
// one is returned as an error.
func Load(baseDir string) (*Config, error) {
	cfg := defaults()
	cfg.MemoryRoot = filepath.Join(baseDir, "memory")
	cfg.StorePath = filepath.Join(baseDir, "memory", ".dmm", "store.db")

	if err := loadYAML(filepath.Join(baseDir, "dmm.yaml"), cfg); err != nil {
		return nil, err
	}
	if err := loadRecipe(filepath.Join(baseDir, "dmm.recipe.toml"), cfg); err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)

	return cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path) // #nosec G304 - path built from caller's baseDir
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func loadRecipe(path string, cfg *Config) error {
	data, err := os.ReadFile(path) // #nosec G304 - path built from caller's baseDir
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg.Recipe); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides lets a small set of frequently-toggled settings be
// overridden without touching dmm.yaml, the same precedence the teacher
// gives BEADS_SYNC_BRANCH over config.yaml's sync-branch.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DMM_MEMORY_ROOT"); v != "" {
		cfg.MemoryRoot = v
	}
	if v := os.Getenv("DMM_STORE_BACKEND"); v != "" {
		cfg.StoreBackend = v
	}
	if v := os.Getenv("DMM_STORE_PATH"); v != "" {
		cfg.StorePath = v
	}
	if v := os.Getenv("DMM_EMBEDDER_BACKEND"); v != "" {
		cfg.EmbedderBackend = v
	}
	if v := os.Getenv("DMM_EMBEDDER_MODEL"); v != "" {
		cfg.EmbedderModel = v
	}
	if v := os.Getenv("DMM_PACK_BUDGET_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DefaultPackBudgetTokens = n
		}
	}
}
