// Package factory selects and opens a Store backend by name, mirroring the
// teacher's internal/storage/factory registry: backends register
// themselves in an init() func, and New looks the name up rather than
// switching on a hardcoded list, so adding a backend never touches this
// file.
package factory

import (
	"context"
	"fmt"

	"github.com/dmmcore/dmm/internal/store"
)

// Options configures how a backend opens its underlying connection.
type Options struct {
	ReadOnly bool
}

// BackendFactory opens a Store at path with the given options.
type BackendFactory func(ctx context.Context, path string, opts Options) (store.Store, error)

var registry = make(map[string]BackendFactory)

// RegisterBackend registers a backend under name. Backend packages call
// this from an init() func; importing a backend package for its side
// effect (the blank import `_ "github.com/dmmcore/dmm/internal/store/sqlitestore"`)
// is what makes it available to New.
func RegisterBackend(name string, f BackendFactory) {
	registry[name] = f
}

// New opens a Store using the named backend ("sqlite" or "dolt").
func New(ctx context.Context, backend, path string) (store.Store, error) {
	return NewWithOptions(ctx, backend, path, Options{})
}

// NewWithOptions is New with explicit Options.
func NewWithOptions(ctx context.Context, backend, path string, opts Options) (store.Store, error) {
	if backend == "" {
		backend = "sqlite"
	}
	f, ok := registry[backend]
	if !ok {
		return nil, fmt.Errorf("factory: unknown store backend %q (is its package imported?)", backend)
	}
	return f(ctx, path, opts)
}
