package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dmmcore/dmm/internal/dmmtypes"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Scaffold a new memory root (scope directories, dmm.yaml, dmm.recipe.toml)",
	RunE: func(cmd *cobra.Command, args []string) error {
		scopes := []dmmtypes.Scope{
			dmmtypes.ScopeBaseline, dmmtypes.ScopeGlobal, dmmtypes.ScopeAgent,
			dmmtypes.ScopeProject, dmmtypes.ScopeEphemeral, dmmtypes.ScopeDeprecated,
		}
		memoryRoot := filepath.Join(rootDir, "memory")
		for _, s := range scopes {
			dir := filepath.Join(memoryRoot, string(s))
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create %s: %w", dir, err)
			}
		}
		if err := os.MkdirAll(filepath.Join(memoryRoot, ".dmm"), 0o755); err != nil {
			return fmt.Errorf("create .dmm: %w", err)
		}

		yamlPath := filepath.Join(rootDir, "dmm.yaml")
		if _, err := os.Stat(yamlPath); os.IsNotExist(err) {
			if err := os.WriteFile(yamlPath, []byte(defaultYAML), 0o644); err != nil {
				return fmt.Errorf("write dmm.yaml: %w", err)
			}
		}

		tomlPath := filepath.Join(rootDir, "dmm.recipe.toml")
		if _, err := os.Stat(tomlPath); os.IsNotExist(err) {
			if err := os.WriteFile(tomlPath, []byte(defaultRecipeTOML), 0o644); err != nil {
				return fmt.Errorf("write dmm.recipe.toml: %w", err)
			}
		}

		fmt.Printf("Initialized memory root at %s\n", memoryRoot)
		return nil
	},
}

const defaultYAML = `memory_root: ./memory
store_backend: sqlite
embedder_backend: hash
default_pack_budget_tokens: 8000
`

const defaultRecipeTOML = `name = "default"
description = "Conservative defaults: defer on low confidence, no blind auto-approve."
auto_approve_create = false
auto_approve_threshold = 0.98
defer_on_low_confidence = true
`

func init() {
	rootCmd.AddCommand(initCmd)
}
