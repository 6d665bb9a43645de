package indexer

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/DeusData/phplens/internal/crawler"
	"github.com/DeusData/phplens/internal/decorate"
	"github.com/DeusData/phplens/internal/phpast"
)

// Edit records a new buffer for path and returns a fast decoration pass
// restricted to viewport. A full crawl follows once edits pause for the
// debounce delay; its metadata is merged into the registry.
func (ix *Indexer) Edit(path string, source []byte, viewport *phpast.LineRange) (*crawler.Result, error) {
	path = ix.Abs(path)
	file, err := phpast.Parse(path, source)
	if err != nil {
		return nil, err
	}

	ix.mu.Lock()
	res, err := crawler.Crawl(file, crawler.Options{
		Mode:     crawler.ModeDecorate,
		Viewport: viewport,
		Restrict: viewport != nil,
		Types:    ix.reg,
	})
	if err == nil {
		ix.docs[path] = &document{file: file, result: res}
	}
	ix.mu.Unlock()
	if err != nil {
		return nil, err
	}

	ix.sched.Arm(path)
	return res, nil
}

// Document returns the latest crawl of an open document and whether it was
// a full crawl.
func (ix *Indexer) Document(path string) (*crawler.Result, bool, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	doc := ix.docs[ix.Abs(path)]
	if doc == nil {
		return nil, false, false
	}
	return doc.result, doc.full, true
}

// Pending reports whether a debounced full crawl is armed for path.
func (ix *Indexer) Pending(path string) bool {
	return ix.sched.Pending(ix.Abs(path))
}

// Flush runs the pending full crawl for path now.
func (ix *Indexer) Flush(path string) bool {
	return ix.sched.Flush(ix.Abs(path))
}

// CloseDocument drops an editor document. Its last full crawl stays in the registry.
func (ix *Indexer) CloseDocument(path string) {
	path = ix.Abs(path)
	ix.sched.Cancel(path)
	ix.mu.Lock()
	delete(ix.docs, path)
	ix.mu.Unlock()
}

// fullCrawl is the scheduler callback.
func (ix *Indexer) fullCrawl(path string) {
	ix.mu.Lock()
	doc := ix.docs[path]
	if doc == nil {
		ix.mu.Unlock()
		return
	}
	res, err := crawler.Crawl(doc.file, crawler.Options{Mode: crawler.ModeDecorate, Types: ix.reg})
	if err != nil {
		ix.mu.Unlock()
		slog.Warn("edit.full_crawl", "path", path, "err", err)
		return
	}
	ix.reg.Rebuild(path, res.Metadata)
	doc.result, doc.full = res, true
	ix.mu.Unlock()

	slog.Debug("edit.full_crawl", "path", path, "nodes", len(res.Visited), "diagnostics", len(res.Diagnostics))
	if ix.onFull != nil {
		ix.onFull(path, res)
	}
}

// Analyze runs a full decoration crawl. source may be nil, in which case the
// open document or the file on disk is used.
func (ix *Indexer) Analyze(path string, source []byte) (*phpast.File, *crawler.Result, error) {
	return ix.analyze(path, source, nil)
}

func (ix *Indexer) analyze(path string, source []byte, cursor *phpast.Position) (*phpast.File, *crawler.Result, error) {
	path = ix.Abs(path)
	file, err := ix.load(path, source)
	if err != nil {
		return nil, nil, err
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	res, err := crawler.Crawl(file, crawler.Options{Mode: crawler.ModeDecorate, Cursor: cursor, Types: ix.reg})
	if err != nil {
		return nil, nil, err
	}
	decorate.SortDiagnostics(res.Diagnostics)
	return file, res, nil
}

func (ix *Indexer) load(path string, source []byte) (*phpast.File, error) {
	if source == nil {
		ix.mu.Lock()
		doc := ix.docs[path]
		ix.mu.Unlock()
		if doc != nil {
			return doc.file, nil
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		source = src
	}
	return phpast.Parse(path, source)
}

// Hover returns the hover markdown at pos.
func (ix *Indexer) Hover(path string, source []byte, pos phpast.Position) (decorate.Hover, bool, error) {
	file, res, err := ix.analyze(path, source, nil)
	if err != nil {
		return decorate.Hover{}, false, err
	}
	if pos.Line == 1 {
		if link, ok := decorate.FindPageLink(file.Line(1), ix.cfg.PageLinkBaseURL); ok && link.Loc.Contains(pos) {
			return decorate.Hover{Loc: link.Loc, Markdown: link.Markdown()}, true, nil
		}
	}
	h, ok := decorate.HoverAt(res, pos, ix.reg)
	return h, ok, nil
}

// Complete returns completion candidates at pos.
func (ix *Indexer) Complete(path string, source []byte, pos phpast.Position) ([]decorate.Suggestion, error) {
	_, res, err := ix.analyze(path, source, &pos)
	if err != nil {
		return nil, err
	}
	return decorate.Suggest(res.CursorNodes, pos), nil
}
