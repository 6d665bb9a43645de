// Package watcher reports file create/change/delete events for a workspace.
// fsnotify delivers events as they happen; a periodic snapshot poll catches
// anything it misses and is the only source when fsnotify is unavailable.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/DeusData/phplens/internal/discover"
)

const (
	baseInterval = 1 * time.Second
	maxInterval  = 60 * time.Second
)

// Op is the kind of file event.
type Op int

const (
	Create Op = iota
	Change
	Delete
)

func (o Op) String() string {
	switch o {
	case Create:
		return "create"
	case Change:
		return "change"
	case Delete:
		return "delete"
	}
	return "unknown"
}

// Event is one file event. Path is absolute.
type Event struct {
	Path string
	Op   Op
}

// HandleFunc receives events in the watcher goroutine.
type HandleFunc func(ctx context.Context, ev Event)

// Options configures a Watcher.
type Options struct {
	// PollOnly disables fsnotify.
	PollOnly bool
	// Interval fixes the poll interval instead of deriving it from the
	// file count.
	Interval time.Duration
}

type fileSnapshot struct {
	modTime time.Time
	size    int64
}

// Watcher watches one workspace root.
type Watcher struct {
	root     string
	matcher  *discover.Matcher
	handle   HandleFunc
	opts     Options
	snapshot map[string]fileSnapshot
	fw       *fsnotify.Watcher
}

// New creates a Watcher. handle is called for each event of an analysed file.
func New(root string, m *discover.Matcher, handle HandleFunc, opts *Options) *Watcher {
	w := &Watcher{root: root, matcher: m, handle: handle}
	if opts != nil {
		w.opts = *opts
	}
	return w
}

// Run blocks until ctx is cancelled. The first snapshot is a baseline and
// produces no events.
func (w *Watcher) Run(ctx context.Context) error {
	snap, err := w.captureSnapshot()
	if err != nil {
		return err
	}
	w.snapshot = snap
	slog.Debug("watcher.baseline", "root", w.root, "files", len(snap))

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if !w.opts.PollOnly {
		fw, err := fsnotify.NewWatcher()
		if err != nil {
			slog.Warn("watcher.fsnotify_unavailable", "err", err)
		} else {
			defer fw.Close()
			w.fw = fw
			w.addWatches(w.root)
			events, errs = fw.Events, fw.Errors
		}
	}

	timer := time.NewTimer(w.interval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			w.notify(ctx, ev)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Warn("watcher.fsnotify", "err", err)
		case <-timer.C:
			w.poll(ctx)
			timer.Reset(w.interval())
		}
	}
}

func (w *Watcher) interval() time.Duration {
	if w.opts.Interval > 0 {
		return w.opts.Interval
	}
	return pollInterval(len(w.snapshot))
}

// poll compares a fresh snapshot with the previous one.
func (w *Watcher) poll(ctx context.Context) {
	if _, err := os.Stat(w.root); err != nil {
		slog.Warn("watcher.root_gone", "path", w.root)
		return
	}
	snap, err := w.captureSnapshot()
	if err != nil {
		slog.Warn("watcher.snapshot", "err", err)
		return
	}
	changes := diffSnapshots(w.snapshot, snap)
	w.snapshot = snap
	if len(changes) == 0 {
		return
	}
	slog.Info("watcher.changed", "root", w.root, "events", len(changes))
	for _, rel := range changes {
		w.handle(ctx, Event{Path: filepath.Join(w.root, filepath.FromSlash(rel.Path)), Op: rel.Op})
	}
}

// notify translates one fsnotify event and records it in the snapshot so the
// next poll does not report it again.
func (w *Watcher) notify(ctx context.Context, ev fsnotify.Event) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil || rel == "." {
		return
	}
	rel = filepath.ToSlash(rel)

	info, statErr := os.Stat(ev.Name)
	if statErr == nil && info.IsDir() {
		// Files already inside a new directory are reported by the next poll.
		if ev.Op&fsnotify.Create != 0 && !w.matcher.SkipDir(filepath.Base(rel), rel) {
			w.addWatches(ev.Name)
		}
		return
	}
	if _, ok := w.matcher.File(rel); !ok {
		return
	}

	_, known := w.snapshot[rel]
	var op Op
	switch {
	case statErr != nil:
		if !known {
			return
		}
		delete(w.snapshot, rel)
		op = Delete
	case !known:
		w.snapshot[rel] = fileSnapshot{modTime: info.ModTime(), size: info.Size()}
		op = Create
	default:
		prev := w.snapshot[rel]
		cur := fileSnapshot{modTime: info.ModTime(), size: info.Size()}
		if prev == cur && ev.Op&fsnotify.Write == 0 {
			return
		}
		w.snapshot[rel] = cur
		op = Change
	}
	slog.Debug("watcher.event", "path", rel, "op", op)
	w.handle(ctx, Event{Path: ev.Name, Op: op})
}

// addWatches registers every non-ignored directory under dir.
func (w *Watcher) addWatches(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		rel, _ := filepath.Rel(w.root, path)
		if rel != "." && w.matcher.SkipDir(d.Name(), rel) {
			return filepath.SkipDir
		}
		if err := w.fw.Add(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("watcher.add", "path", path, "err", err)
		}
		return nil
	})
}

// captureSnapshot records mtime and size of every analysed file.
func (w *Watcher) captureSnapshot() (map[string]fileSnapshot, error) {
	snap := make(map[string]fileSnapshot)
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && path != w.root {
				return filepath.SkipDir
			}
			return err
		}
		rel, _ := filepath.Rel(w.root, path)
		if d.IsDir() {
			if rel != "." && w.matcher.SkipDir(d.Name(), rel) {
				return filepath.SkipDir
			}
			return nil
		}
		rel = filepath.ToSlash(rel)
		if _, ok := w.matcher.File(rel); !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		snap[rel] = fileSnapshot{modTime: info.ModTime(), size: info.Size()}
		return nil
	})
	return snap, err
}

// diffSnapshots returns events with root-relative paths, sorted by path.
func diffSnapshots(prev, cur map[string]fileSnapshot) []Event {
	var out []Event
	for path, c := range cur {
		p, ok := prev[path]
		switch {
		case !ok:
			out = append(out, Event{Path: path, Op: Create})
		case !p.modTime.Equal(c.modTime) || p.size != c.size:
			out = append(out, Event{Path: path, Op: Change})
		}
	}
	for path := range prev {
		if _, ok := cur[path]; !ok {
			out = append(out, Event{Path: path, Op: Delete})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// pollInterval computes the adaptive interval from file count.
// 1s base + 1s per 500 files, capped at 60s.
func pollInterval(fileCount int) time.Duration {
	d := baseInterval + time.Duration(fileCount/500)*time.Second
	if d > maxInterval {
		d = maxInterval
	}
	return d
}
