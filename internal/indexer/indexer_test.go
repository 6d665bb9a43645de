package indexer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/DeusData/phplens/internal/config"
	"github.com/DeusData/phplens/internal/crawler"
	"github.com/DeusData/phplens/internal/phpast"
	"github.com/DeusData/phplens/internal/store"
	"github.com/DeusData/phplens/internal/watcher"
)

const carLib = `<?php
/**
 * @typedef Car {
 *   brand: string
 *   color?: string
 * }
 */

/** @return Car */
function makeCar() {}
`

// uses.php sorts before lib.php, so the first pass cannot see makeCar yet.
const carUse = `<?php
function firstBrand() {
    $c = makeCar();
    return $c['brand'];
}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func debounce(ms int) *config.Config {
	cfg := config.Default()
	cfg.DebounceMS = &ms
	return cfg
}

func newIndexer(t *testing.T, dir string, opts *Options) *Indexer {
	t.Helper()
	ix, err := New(dir, opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(ix.Close)
	return ix
}

func TestIndexWorkspaceTwoPass(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "lib.php", carLib)
	writeFile(t, dir, "uses.php", carUse)
	writeFile(t, dir, "vendor/ignored.php", "<?php\n/** @typedef Hidden { a: string } */\n")

	ix := newIndexer(t, dir, nil)
	stats, err := ix.IndexWorkspace(context.Background())
	if err != nil {
		t.Fatalf("IndexWorkspace: %v", err)
	}
	if stats.Files != 2 || stats.Parsed != 2 || stats.Failed != 0 {
		t.Errorf("stats = %+v", stats)
	}

	sig, ok := ix.Registry().LookupFunction("firstBrand")
	if !ok {
		t.Fatal("firstBrand not registered")
	}
	if sig.ReturnDataType != "string" {
		t.Errorf("firstBrand returns %q, want string after the second pass", sig.ReturnDataType)
	}
	if _, ok := ix.Registry().LookupType("Car"); !ok {
		t.Error("Car not registered")
	}
	if _, ok := ix.Registry().LookupType("Hidden"); ok {
		t.Error("vendor directory was indexed")
	}
}

func TestIndexWorkspaceCache(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "lib.php", carLib)
	usePath := writeFile(t, dir, "uses.php", carUse)

	cache, err := store.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()

	first := newIndexer(t, dir, &Options{Cache: cache})
	if _, err := first.IndexWorkspace(context.Background()); err != nil {
		t.Fatal(err)
	}

	second := newIndexer(t, dir, &Options{Cache: cache})
	stats, err := second.IndexWorkspace(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Cached != 2 || stats.Parsed != 0 {
		t.Errorf("stats = %+v, want everything from cache", stats)
	}
	if sig, ok := second.Registry().LookupFunction("firstBrand"); !ok || sig.ReturnDataType != "string" {
		t.Errorf("cached firstBrand = %+v", sig)
	}

	writeFile(t, dir, "uses.php", carUse+"function extra() {}\n")
	third := newIndexer(t, dir, &Options{Cache: cache})
	stats, err = third.IndexWorkspace(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Cached != 1 || stats.Parsed != 1 {
		t.Errorf("stats after edit = %+v", stats)
	}
	if _, ok := third.Registry().LookupFunction("extra"); !ok {
		t.Error("changed file not re-crawled")
	}

	if err := os.Remove(usePath); err != nil {
		t.Fatal(err)
	}
	fourth := newIndexer(t, dir, &Options{Cache: cache})
	if _, err := fourth.IndexWorkspace(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f, _ := cache.GetFile(usePath); f != nil {
		t.Error("deleted file left in cache")
	}
}

func TestHandleEvent(t *testing.T) {
	dir := t.TempDir()
	ix := newIndexer(t, dir, nil)
	ctx := context.Background()

	path := writeFile(t, dir, "boat.php", "<?php\n/** @typedef Boat { name: string } */\n")
	ix.HandleEvent(ctx, watcher.Event{Path: path, Op: watcher.Create})
	if _, ok := ix.Registry().LookupType("Boat"); !ok {
		t.Fatal("create not indexed")
	}

	writeFile(t, dir, "boat.php", "<?php\n/** @typedef Ship { name: string } */\n")
	ix.HandleEvent(ctx, watcher.Event{Path: path, Op: watcher.Change})
	if _, ok := ix.Registry().LookupType("Boat"); ok {
		t.Error("change kept the old contribution")
	}
	if _, ok := ix.Registry().LookupType("Ship"); !ok {
		t.Error("change not indexed")
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	ix.HandleEvent(ctx, watcher.Event{Path: path, Op: watcher.Delete})
	if ix.Registry().Size() != 0 {
		t.Errorf("registry still has %v", ix.Registry().Files())
	}
}

func longSource() string {
	var b strings.Builder
	b.WriteString("<?php\n/** @typedef Row { id: number } */\n")
	for i := 0; i < 40; i++ {
		b.WriteString("$v = ['k' => 1];\n")
	}
	return b.String()
}

func TestEditViewportThenFlush(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	ix, err := New(dir, &Options{Config: debounce(60_000)})
	if err != nil {
		t.Fatal(err)
	}
	defer ix.Close()

	vp := &phpast.LineRange{First: 20, Last: 22}
	res, err := ix.Edit("page.php", []byte(longSource()), vp)
	if err != nil {
		t.Fatal(err)
	}
	if !ix.Pending("page.php") {
		t.Fatal("no debounced crawl armed")
	}
	file, _, err := ix.Analyze("page.php", nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range res.Visited {
		if loc := file.Node(id).Base().Loc; !phpast.InWindow(loc, *vp) {
			t.Fatalf("fast pass visited %+v outside the viewport", loc)
		}
	}
	if _, ok := ix.Registry().LookupType("Row"); ok {
		t.Error("fast pass merged into the registry")
	}

	if _, full, ok := ix.Document("page.php"); !ok || full {
		t.Errorf("document before flush: open=%v full=%v", ok, full)
	}
	if !ix.Flush("page.php") {
		t.Fatal("Flush found nothing pending")
	}
	if ix.Pending("page.php") {
		t.Error("still pending after flush")
	}
	if _, ok := ix.Registry().LookupType("Row"); !ok {
		t.Error("full crawl not merged")
	}
	if res, full, _ := ix.Document("page.php"); !full || len(res.Visited) != file.Len() {
		t.Errorf("document after flush: full=%v", full)
	}

	ix.CloseDocument("page.php")
	if _, _, ok := ix.Document("page.php"); ok {
		t.Error("document still open")
	}
}

func TestEditDebounceFires(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	done := make(chan *crawler.Result, 4)
	ix, err := New(dir, &Options{
		Config:      debounce(20),
		OnFullCrawl: func(_ string, res *crawler.Result) { done <- res },
	})
	if err != nil {
		t.Fatal(err)
	}
	defer ix.Close()

	// Rapid edits collapse into one full crawl of the last buffer.
	for i := 0; i < 3; i++ {
		if _, err := ix.Edit("page.php", []byte(longSource()), &phpast.LineRange{First: 1, Last: 5}); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case res := <-done:
		if _, ok := res.Metadata.Typedefs["Row"]; !ok {
			t.Errorf("full crawl metadata = %+v", res.Metadata)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("debounced crawl never ran")
	}
	select {
	case <-done:
		t.Error("edits were not collapsed")
	case <-time.After(100 * time.Millisecond):
	}
	if _, ok := ix.Registry().LookupType("Row"); !ok {
		t.Error("Row not merged")
	}
}

func TestHoverAndComplete(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.PageLinkBaseURL = "https://example.com"
	src := "<?php // Cars [/cars]\n" + carLib[len("<?php\n"):] + "/** @var Car */\n$car = ['brand' => 'x'];\n"
	path := writeFile(t, dir, "cars.php", src)

	ix := newIndexer(t, dir, &Options{Config: cfg})

	h, ok, err := ix.Hover(path, nil, phpast.Position{Line: 1, Column: 10})
	if err != nil || !ok {
		t.Fatalf("page link hover = %v %v", ok, err)
	}
	if !strings.Contains(h.Markdown, "https://example.com/cars") {
		t.Errorf("page link hover = %q", h.Markdown)
	}

	carLine := strings.Count(src[:strings.Index(src, "$car")], "\n") + 1
	h, ok, err = ix.Hover(path, nil, phpast.Position{Line: carLine, Column: 1})
	if err != nil || !ok {
		t.Fatalf("variable hover = %v %v", ok, err)
	}
	if !strings.Contains(h.Markdown, "Car") || !strings.Contains(h.Markdown, "brand: string") {
		t.Errorf("variable hover = %q", h.Markdown)
	}

	col := strings.Index(strings.Split(src, "\n")[carLine-1], "brand")
	got, err := ix.Complete(path, nil, phpast.Position{Line: carLine, Column: col})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Name != "brand" || got[1].Name != "color" {
		t.Errorf("Complete = %+v", got)
	}
}

func TestAnalyzeDiagnostics(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.php", carLib+"/** @var Car */\n$a = ['colour' => 'red'];\n")
	ix := newIndexer(t, dir, nil)

	_, res, err := ix.Analyze(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	codes := map[string]bool{}
	for _, d := range res.Diagnostics {
		codes[d.Code] = true
	}
	if !codes[crawler.CodeUnknownKey] || !codes[crawler.CodeMissingKeys] {
		t.Errorf("diagnostics = %+v", res.Diagnostics)
	}
	for i := 1; i < len(res.Diagnostics); i++ {
		if res.Diagnostics[i].Loc.Start.Before(res.Diagnostics[i-1].Loc.Start) {
			t.Errorf("diagnostics not sorted: %+v", res.Diagnostics)
		}
	}
}

func TestIndexWorkspaceCancelled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.php", "<?php\n")
	ix := newIndexer(t, dir, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ix.IndexWorkspace(ctx); err == nil {
		t.Error("expected cancellation error")
	}
}
