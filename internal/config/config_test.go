package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmmcore/dmm/internal/config"
)

func TestLoadAppliesDefaultsWhenFilesAbsent(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.StoreBackend)
	assert.Equal(t, "hash", cfg.EmbedderBackend)
	assert.Equal(t, 8000, cfg.DefaultPackBudgetTokens)
	assert.Equal(t, "default", cfg.Recipe.Name)
}

func TestLoadReadsYAMLAndTOML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dmm.yaml"), []byte(
		"store_backend: dolt\ndefault_pack_budget_tokens: 12000\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dmm.recipe.toml"), []byte(
		"name = \"permissive\"\nauto_approve_create = true\nauto_approve_threshold = 0.9\n"), 0o600))

	cfg, err := config.Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "dolt", cfg.StoreBackend)
	assert.Equal(t, 12000, cfg.DefaultPackBudgetTokens)
	assert.Equal(t, "permissive", cfg.Recipe.Name)
	assert.True(t, cfg.Recipe.AutoApproveCreate)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dmm.yaml"), []byte("store_backend: dolt\n"), 0o600))

	t.Setenv("DMM_STORE_BACKEND", "sqlite")

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.StoreBackend)
}
