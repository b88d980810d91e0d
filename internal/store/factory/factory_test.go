package factory_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmmcore/dmm/internal/store/factory"
	_ "github.com/dmmcore/dmm/internal/store/sqlitestore"
)

func TestNewDefaultsToSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dmm.db")
	s, err := factory.New(context.Background(), "", path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
}

func TestNewUnknownBackendErrors(t *testing.T) {
	_, err := factory.New(context.Background(), "postgres", "unused")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store backend")
}

func TestNewWithOptionsReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dmm.db")

	s, err := factory.New(context.Background(), "sqlite", path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	ro, err := factory.NewWithOptions(context.Background(), "sqlite", path, factory.Options{ReadOnly: true})
	require.NoError(t, err)
	defer func() { _ = ro.Close() }()
}
