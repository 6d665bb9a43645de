// Package indexer owns the type registry and drives every crawl: the two-pass
// workspace index, file events from the watcher, and live editing with a
// viewport-restricted fast pass followed by a debounced full pass.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/DeusData/phplens/internal/config"
	"github.com/DeusData/phplens/internal/crawler"
	"github.com/DeusData/phplens/internal/discover"
	"github.com/DeusData/phplens/internal/phpast"
	"github.com/DeusData/phplens/internal/registry"
	"github.com/DeusData/phplens/internal/store"
	"github.com/DeusData/phplens/internal/watcher"
)

var _ crawler.Resolver = (*registry.Registry)(nil)

// Options configures an Indexer.
type Options struct {
	Config *config.Config
	// Cache, when set, persists per-file metadata between runs.
	Cache *store.Store
	// Parallelism bounds concurrent parsing. Default: GOMAXPROCS.
	Parallelism int
	// OnFullCrawl is called after a debounced full crawl of an edited file.
	OnFullCrawl func(path string, res *crawler.Result)
}

// document is a file open in an editor.
type document struct {
	file   *phpast.File
	result *crawler.Result
	// full is set once result comes from an unrestricted crawl.
	full bool
}

// Indexer serialises crawls and registry merges.
type Indexer struct {
	root    string
	cfg     *config.Config
	cache   *store.Store
	matcher *discover.Matcher
	reg     *registry.Registry
	sched   *Scheduler
	par     int
	onFull  func(string, *crawler.Result)

	mu   sync.Mutex
	docs map[string]*document
}

// New creates an Indexer for the workspace at root.
func New(root string, opts *Options) (*Indexer, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	if opts == nil {
		opts = &Options{}
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Load(abs)
	}
	ix := &Indexer{
		root:  abs,
		cfg:   cfg,
		cache: opts.Cache,
		matcher: discover.NewMatcher(abs, &discover.Options{
			Extensions: cfg.EffectiveExtensions(),
			Ignore:     cfg.Ignore,
		}),
		reg:    registry.New(),
		par:    opts.Parallelism,
		onFull: opts.OnFullCrawl,
		docs:   make(map[string]*document),
	}
	if ix.par <= 0 {
		ix.par = runtime.GOMAXPROCS(0)
	}
	ix.sched = NewScheduler(cfg.EffectiveDebounce(), ix.fullCrawl)
	return ix, nil
}

// Root returns the absolute workspace root.
func (ix *Indexer) Root() string { return ix.root }

// Config returns the effective configuration.
func (ix *Indexer) Config() *config.Config { return ix.cfg }

// Registry returns the merged type registry.
func (ix *Indexer) Registry() *registry.Registry { return ix.reg }

// Matcher returns the file filter shared with the watcher.
func (ix *Indexer) Matcher() *discover.Matcher { return ix.matcher }

// Close cancels pending debounced crawls and waits for running ones.
func (ix *Indexer) Close() {
	ix.sched.Close()
}

// Abs resolves a path relative to the workspace root.
func (ix *Indexer) Abs(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(ix.root, path)
}

// Stats summarises a workspace index.
type Stats struct {
	Files    int           `json:"files"`
	Cached   int           `json:"cached"`
	Parsed   int           `json:"parsed"`
	Failed   int           `json:"failed"`
	Typedefs int           `json:"typedefs"`
	Elapsed  time.Duration `json:"elapsed_ns"`
}

type parsed struct {
	path string
	hash string
	file *phpast.File
}

// IndexWorkspace discovers every file and indexes it in two passes: the first
// fills the registry, the second re-crawls with every file's types visible so
// cross-file references resolve regardless of discovery order. Files whose
// content hash matches the cache skip both passes.
func (ix *Indexer) IndexWorkspace(ctx context.Context) (Stats, error) {
	start := time.Now()
	files, err := discover.Discover(ctx, ix.root, &discover.Options{
		Extensions: ix.cfg.EffectiveExtensions(),
		Ignore:     ix.cfg.Ignore,
	})
	if err != nil {
		return Stats{}, fmt.Errorf("discover: %w", err)
	}
	stats := Stats{Files: len(files)}

	// Parsing is independent per file; crawls and merges stay sequential.
	results := make([]*parsed, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.par)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			src, err := os.ReadFile(f.Path)
			if err != nil {
				slog.Warn("index.read", "path", f.RelPath, "err", err)
				return nil
			}
			p := &parsed{path: f.Path, hash: store.Hash(src)}
			if ix.cache != nil {
				if _, ok := ix.cache.Lookup(f.Path, p.hash); ok {
					results[i] = p
					return nil
				}
			}
			file, err := phpast.Parse(f.Path, src)
			if err != nil {
				slog.Warn("index.parse", "path", f.RelPath, "err", err)
				return nil
			}
			p.file = file
			results[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	// Files deleted since the previous index, unless open in an editor.
	present := make(map[string]bool, len(files))
	for _, f := range files {
		present[f.Path] = true
	}
	for _, path := range ix.reg.Files() {
		if !present[path] && ix.docs[path] == nil {
			ix.reg.Remove(path)
		}
	}

	// Pass 1 collects every file's own declarations and merges them at once.
	var updates []registry.Update
	for _, p := range results {
		if p == nil {
			continue
		}
		if p.file == nil {
			meta, _ := ix.cache.Lookup(p.path, p.hash)
			updates = append(updates, registry.Update{Path: p.path, Meta: meta})
			continue
		}
		res, err := crawler.Crawl(p.file, crawler.Options{Mode: crawler.ModeMetadata, Types: ix.reg})
		if err != nil {
			slog.Warn("index.crawl", "path", p.path, "pass", 1, "err", err)
			continue
		}
		updates = append(updates, registry.Update{Path: p.path, Meta: res.Metadata})
	}
	ix.reg.RebuildAll(updates)
	slog.Debug("index.pass", "pass", 1, "files", ix.reg.Size())

	if err := ctx.Err(); err != nil {
		return stats, err
	}

	// Pass 2 re-crawls with the whole workspace visible, merging file by file
	// so inferred return types chain in discovery order.
	for _, p := range results {
		if p == nil || p.file == nil {
			continue
		}
		res, err := crawler.Crawl(p.file, crawler.Options{Mode: crawler.ModeMetadata, Types: ix.reg})
		if err != nil {
			slog.Warn("index.crawl", "path", p.path, "pass", 2, "err", err)
			continue
		}
		ix.reg.Rebuild(p.path, res.Metadata)
		if ix.cache != nil {
			if err := ix.cache.PutFile(p.path, p.hash, res.Metadata); err != nil {
				slog.Warn("index.cache", "path", p.path, "err", err)
			}
		}
	}
	slog.Debug("index.pass", "pass", 2, "files", ix.reg.Size())

	keep := make(map[string]bool, len(results))
	for _, p := range results {
		switch {
		case p == nil:
			stats.Failed++
		case p.file == nil:
			stats.Cached++
			keep[p.path] = true
		default:
			stats.Parsed++
			keep[p.path] = true
		}
	}
	if ix.cache != nil {
		if n, err := ix.cache.Prune(keep); err != nil {
			slog.Warn("index.prune", "err", err)
		} else if n > 0 {
			slog.Debug("index.prune", "removed", n)
		}
		if err := ix.cache.UpsertWorkspace(ix.root, len(keep)); err != nil {
			slog.Warn("index.workspace", "err", err)
		}
	}

	stats.Typedefs = len(ix.reg.Typedefs())
	stats.Elapsed = time.Since(start)
	slog.Info("index.done", "root", ix.root, "files", stats.Files, "cached", stats.Cached,
		"parsed", stats.Parsed, "failed", stats.Failed, "elapsed", stats.Elapsed)
	return stats, nil
}

// IndexFile re-crawls one file from disk and replaces its registry
// contribution.
func (ix *Indexer) IndexFile(path string) error {
	path = ix.Abs(path)
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	file, err := phpast.Parse(path, src)
	if err != nil {
		return err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	res, err := crawler.Crawl(file, crawler.Options{Mode: crawler.ModeMetadata, Types: ix.reg})
	if err != nil {
		return err
	}
	ix.reg.Rebuild(path, res.Metadata)
	if ix.cache != nil {
		if err := ix.cache.PutFile(path, store.Hash(src), res.Metadata); err != nil {
			slog.Warn("index.cache", "path", path, "err", err)
		}
	}
	return nil
}

// RemoveFile drops a file's registry contribution.
func (ix *Indexer) RemoveFile(path string) {
	path = ix.Abs(path)
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.reg.Remove(path)
	if ix.cache != nil {
		if err := ix.cache.DeleteFile(path); err != nil {
			slog.Warn("index.cache", "path", path, "err", err)
		}
	}
}

// HandleEvent applies a watcher event. It matches watcher.HandleFunc.
func (ix *Indexer) HandleEvent(_ context.Context, ev watcher.Event) {
	switch ev.Op {
	case watcher.Delete:
		ix.RemoveFile(ev.Path)
	case watcher.Create, watcher.Change:
		if err := ix.IndexFile(ev.Path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				ix.RemoveFile(ev.Path)
				return
			}
			slog.Warn("index.event", "path", ev.Path, "op", ev.Op, "err", err)
		}
	}
}
