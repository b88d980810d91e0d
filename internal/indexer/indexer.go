// Package indexer orchestrates full and incremental reindexing (spec.md
// §4.4): walking the memory tree, diffing file hashes against the store,
// and driving Parser -> Embedder -> Store for anything new or changed.
package indexer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dmmcore/dmm/internal/dmmerrors"
	"github.com/dmmcore/dmm/internal/dmmlog"
	"github.com/dmmcore/dmm/internal/dmmtypes"
	"github.com/dmmcore/dmm/internal/embed"
	"github.com/dmmcore/dmm/internal/memfile"
	"github.com/dmmcore/dmm/internal/store"
	"github.com/dmmcore/dmm/internal/tokenizer"
)

// debounceDelay coalesces bursts of filesystem events (an editor's
// write-then-rename save sequence, a git checkout touching many files)
// into a single IncrementalReindex per path.
const debounceDelay = 500 * time.Millisecond

// deprecatedDir is excluded from every walk (spec.md §3.5): files under it
// are never returned by retrieval and never participate in reindexing scans
// beyond whatever already indexed them before deprecation.
const deprecatedDir = "deprecated"

// ReindexError is one file's failure during a pass; a single bad file must
// not abort the rest (spec.md §4.4).
type ReindexError struct {
	Path    string
	Kind    string // "io", "parse", "store" (embedder failures are reported as "store")
	Message string
}

// Report summarizes one reindex pass (spec.md §4.4).
type Report struct {
	Reindexed       int
	SkippedUnchanged int
	Errors          []ReindexError
	DurationMS      int64
}

// Indexer walks Root, diffing file hashes against Store and driving
// memfile.Parse -> Embedder.Embed -> Store.PutMemory for anything new or
// changed.
type Indexer struct {
	Root     string
	Store    store.Store
	Embedder embed.Embedder
}

// New constructs an Indexer over root, backed by s and embedder.
func New(root string, s store.Store, embedder embed.Embedder) *Indexer {
	return &Indexer{Root: root, Store: s, Embedder: embedder}
}

// FullReindex walks Root recursively (excluding deprecated/), parsing and
// upserting anything whose hash differs from the store's record, then
// deletes store entries for paths no longer present on disk.
func (idx *Indexer) FullReindex(ctx context.Context) (*Report, error) {
	start := time.Now()
	timer := dmmlog.StartTimer(dmmlog.CategoryIndex, "full reindex")
	defer timer.Stop()

	report := &Report{}
	seen := make(map[string]bool)

	err := filepath.WalkDir(idx.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(idx.Root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel == deprecatedDir || strings.HasPrefix(rel, deprecatedDir+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(rel, ".md") {
			return nil
		}

		seen[rel] = true
		if idx.reindexOne(ctx, rel, report) {
			return nil
		}
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("indexer: walk %s: %w", idx.Root, err)
	}

	if err := idx.pruneDeleted(ctx, seen, report); err != nil {
		return report, err
	}

	report.DurationMS = time.Since(start).Milliseconds()
	dmmlog.Info(dmmlog.CategoryIndex, "full reindex: %d reindexed, %d unchanged, %d errors",
		report.Reindexed, report.SkippedUnchanged, len(report.Errors))
	return report, nil
}

// reindexOne handles one candidate file within a full pass: skip if
// unchanged, else parse+embed+upsert, recording any failure instead of
// propagating it.
func (idx *Indexer) reindexOne(ctx context.Context, rel string, report *Report) bool {
	full := filepath.Join(idx.Root, filepath.FromSlash(rel))
	data, err := os.ReadFile(full) // #nosec G304 - path constrained to idx.Root by WalkDir
	if err != nil {
		report.Errors = append(report.Errors, ReindexError{Path: rel, Kind: "io", Message: err.Error()})
		return false
	}

	existing, err := idx.Store.GetMemoryByPath(ctx, rel)
	if err == nil && existing.FileHash == memfile.HashBytes(data) {
		report.SkippedUnchanged++
		return true
	}
	if err != nil && !dmmerrors.IsNotFound(err) {
		report.Errors = append(report.Errors, ReindexError{Path: rel, Kind: "store", Message: err.Error()})
		return false
	}

	if err := idx.IncrementalReindex(ctx, rel, data); err != nil {
		report.Errors = append(report.Errors, toReindexError(rel, err))
		return false
	}
	report.Reindexed++
	return true
}

// IncrementalReindex parses, embeds, and upserts a single file given its
// already-read bytes (spec.md §4.4).
func (idx *Indexer) IncrementalReindex(ctx context.Context, relPath string, data []byte) error {
	res, err := memfile.Parse(relPath, data)
	if err != nil {
		return err
	}
	mem := res.Memory

	dirVec, compVec, err := idx.embedMemory(ctx, mem)
	if err != nil {
		return fmt.Errorf("indexer: embed %s: %w", relPath, err)
	}

	if err := idx.Store.PutMemory(ctx, mem); err != nil {
		return fmt.Errorf("indexer: upsert %s: %w", relPath, err)
	}
	if err := idx.Store.PutEmbedding(ctx, mem.ID, store.EmbeddingDirectory, dirVec); err != nil {
		return fmt.Errorf("indexer: store directory embedding %s: %w", relPath, err)
	}
	if err := idx.Store.PutEmbedding(ctx, mem.ID, store.EmbeddingComposite, compVec); err != nil {
		return fmt.Errorf("indexer: store composite embedding %s: %w", relPath, err)
	}
	return nil
}

// IncrementalReindexPath reads relPath from disk (relative to Root) and
// reindexes it, or deletes the store entry if the file no longer exists,
// matching the Indexer.Watch trigger and the Commit Engine's post-commit
// step (spec.md §4.4, §4.8).
func (idx *Indexer) IncrementalReindexPath(ctx context.Context, relPath string) error {
	full := filepath.Join(idx.Root, filepath.FromSlash(relPath))
	data, err := os.ReadFile(full) // #nosec G304 - path constrained to idx.Root by caller
	if os.IsNotExist(err) {
		return idx.DeleteByPath(ctx, relPath)
	}
	if err != nil {
		return fmt.Errorf("indexer: read %s: %w", relPath, err)
	}
	return idx.IncrementalReindex(ctx, relPath, data)
}

// DeleteByPath removes a memory's store entry by path, used when a file is
// deleted out from under the indexer.
func (idx *Indexer) DeleteByPath(ctx context.Context, relPath string) error {
	mem, err := idx.Store.GetMemoryByPath(ctx, relPath)
	if dmmerrors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("indexer: lookup %s: %w", relPath, err)
	}
	return idx.Store.DeleteMemory(ctx, mem.ID)
}

func (idx *Indexer) embedMemory(ctx context.Context, mem *dmmtypes.Memory) (dir, composite embed.Vector, err error) {
	dirText := embed.DirectoryText(mem.Path, mem.Tags, mem.Title)
	vecs, err := idx.Embedder.Embed(ctx, []string{dirText, mem.Body})
	if err != nil {
		return nil, nil, err
	}
	return vecs[0], vecs[1], nil
}

// pruneDeleted removes store entries for paths no longer present on disk
// after a full walk (spec.md §4.4's final step).
func (idx *Indexer) pruneDeleted(ctx context.Context, seen map[string]bool, report *Report) error {
	all, err := idx.Store.ListMemories(ctx, store.MemoryFilter{})
	if err != nil {
		return fmt.Errorf("indexer: list memories for prune: %w", err)
	}
	for _, mem := range all {
		if seen[mem.Path] {
			continue
		}
		if err := idx.Store.DeleteMemory(ctx, mem.ID); err != nil {
			report.Errors = append(report.Errors, ReindexError{Path: mem.Path, Kind: "store", Message: err.Error()})
		}
	}
	return nil
}

func toReindexError(path string, err error) ReindexError {
	kind := "parse"
	switch err.(type) {
	case *dmmerrors.SchemaValidationError, *dmmerrors.ParseError:
		kind = "parse"
	default:
		kind = "store"
	}
	return ReindexError{Path: path, Kind: kind, Message: err.Error()}
}

// Watch recursively watches Root for .md changes and drives
// IncrementalReindexPath off a debounced fsnotify stream, until ctx is
// canceled. One watcher is registered per directory (fsnotify does not
// recurse on its own), with new subdirectories picked up as they appear.
func (idx *Indexer) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("indexer: create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := idx.addDirsRecursive(watcher, idx.Root); err != nil {
		return fmt.Errorf("indexer: watch %s: %w", idx.Root, err)
	}

	var mu sync.Mutex
	timers := make(map[string]*time.Timer)

	trigger := func(rel string) {
		mu.Lock()
		defer mu.Unlock()
		if t, ok := timers[rel]; ok {
			t.Stop()
		}
		timers[rel] = time.AfterFunc(debounceDelay, func() {
			if err := idx.IncrementalReindexPath(ctx, rel); err != nil {
				dmmlog.Warn(dmmlog.CategoryIndex, "watch: reindex %s: %v", rel, err)
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			idx.handleWatchEvent(watcher, event, trigger)
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			dmmlog.Warn(dmmlog.CategoryIndex, "watch: %v", werr)
		}
	}
}

// handleWatchEvent reacts to one fsnotify event: a newly created directory
// gets its own watch registered, and writes/creates/removes/renames of .md
// files debounce into a reindex of their path relative to Root.
func (idx *Indexer) handleWatchEvent(watcher *fsnotify.Watcher, event fsnotify.Event, trigger func(rel string)) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if rel, relErr := filepath.Rel(idx.Root, event.Name); relErr == nil &&
				!strings.HasPrefix(filepath.ToSlash(rel), deprecatedDir) {
				_ = watcher.Add(event.Name)
			}
			return
		}
	}

	if !strings.HasSuffix(event.Name, ".md") {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	rel, err := filepath.Rel(idx.Root, event.Name)
	if err != nil {
		return
	}
	trigger(filepath.ToSlash(rel))
}

// addDirsRecursive registers a watch on root and every subdirectory except
// deprecated/, matching FullReindex's exclusion.
func (idx *Indexer) addDirsRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if rel == deprecatedDir || strings.HasPrefix(rel, deprecatedDir+"/") {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

// CheckVersions compares the tokenizer and embedder versions recorded in
// system_meta against the current build's versions (spec.md §9, §6.4):
// a mismatch means previously-computed vectors are not comparable to
// freshly-computed ones, so callers must force a FullReindex before serving
// queries rather than mixing embedding spaces.
func CheckVersions(ctx context.Context, s store.Store, embedder embed.Embedder) (needsReindex bool, err error) {
	storedTok, ok, err := s.GetSystemMeta(ctx, "tokenizer_version")
	if err != nil {
		return false, err
	}
	if !ok || storedTok != tokenizer.Version {
		needsReindex = true
	}

	storedEmb, ok, err := s.GetSystemMeta(ctx, "embedder_version")
	if err != nil {
		return false, err
	}
	if !ok || storedEmb != embedder.Version() {
		needsReindex = true
	}

	if err := s.SetSystemMeta(ctx, "tokenizer_version", tokenizer.Version); err != nil {
		return needsReindex, err
	}
	if err := s.SetSystemMeta(ctx, "embedder_version", embedder.Version()); err != nil {
		return needsReindex, err
	}
	return needsReindex, nil
}
