package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/DeusData/phplens/internal/crawler"
	"github.com/DeusData/phplens/internal/decorate"
	"github.com/DeusData/phplens/internal/discover"
	"github.com/DeusData/phplens/internal/tools"
	"github.com/DeusData/phplens/internal/watcher"
)

func serveCommand(c *cli.Context) error {
	ix, closeFn, err := openIndexer(c)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := ix.IndexWorkspace(ctx); err != nil {
		return fmt.Errorf("index: %w", err)
	}

	srv := tools.NewServer(ix)
	w := watcher.New(ix.Root(), ix.Matcher(), ix.HandleEvent, nil)

	g, gctx := errgroup.WithContext(ctx)
	watchCtx, cancelWatch := context.WithCancel(gctx)
	g.Go(func() error {
		return w.Run(watchCtx)
	})
	g.Go(func() error {
		// The watcher only outlives the session until stdin closes.
		defer cancelWatch()
		return srv.MCPServer().Run(gctx, &mcp.StdioTransport{})
	})
	return g.Wait()
}

func indexCommand(c *cli.Context) error {
	ix, closeFn, err := openIndexer(c)
	if err != nil {
		return err
	}
	defer closeFn()

	stats, err := ix.IndexWorkspace(c.Context)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "indexed %d files (%d cached, %d parsed, %d failed), %d typedefs in %s\n",
		stats.Files, stats.Cached, stats.Parsed, stats.Failed, stats.Typedefs, stats.Elapsed.Round(time.Millisecond))
	return nil
}

// useColor resolves the --color flag against w.
func useColor(mode string, w io.Writer) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

const (
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
	ansiReset  = "\x1b[0m"
)

// printDiagnostics writes one line per diagnostic and returns the number of
// errors among them.
func printDiagnostics(w io.Writer, path string, diags []crawler.Diagnostic, color bool) int {
	errs := 0
	for _, d := range diags {
		line := decorate.FormatDiagnostic(path, d)
		if d.Severity == crawler.SeverityError {
			errs++
		}
		if color {
			c := ansiYellow
			if d.Severity == crawler.SeverityError {
				c = ansiRed
			}
			line = c + line + ansiReset
		}
		fmt.Fprintln(w, line)
	}
	return errs
}

func checkCommand(c *cli.Context) error {
	ix, closeFn, err := openIndexer(c)
	if err != nil {
		return err
	}
	defer closeFn()

	if _, err := ix.IndexWorkspace(c.Context); err != nil {
		return err
	}

	paths := c.Args().Slice()
	if len(paths) == 0 {
		files, err := discover.Discover(c.Context, ix.Root(), &discover.Options{
			Extensions: ix.Config().EffectiveExtensions(),
			Ignore:     ix.Config().Ignore,
		})
		if err != nil {
			return err
		}
		for _, f := range files {
			paths = append(paths, f.RelPath)
		}
	}
	sort.Strings(paths)

	color := useColor(c.String("color"), c.App.Writer)
	errs, warnings := 0, 0
	for _, p := range paths {
		_, res, err := ix.Analyze(p, nil)
		if err != nil {
			fmt.Fprintf(c.App.ErrWriter, "%s: %v\n", p, err)
			errs++
			continue
		}
		n := printDiagnostics(c.App.Writer, p, res.Diagnostics, color)
		errs += n
		warnings += len(res.Diagnostics) - n
	}
	fmt.Fprintf(c.App.Writer, "%d files, %d errors, %d warnings\n", len(paths), errs, warnings)
	if errs > 0 {
		return cli.Exit("", 1)
	}
	return nil
}

func typesCommand(c *cli.Context) error {
	ix, closeFn, err := openIndexer(c)
	if err != nil {
		return err
	}
	defer closeFn()

	if _, err := ix.IndexWorkspace(c.Context); err != nil {
		return err
	}
	for _, td := range ix.Registry().Typedefs() {
		fmt.Fprintf(c.App.Writer, "%s\n", td.Name)
		for _, name := range td.PropNames() {
			p := td.Props[name]
			opt := ""
			if p.Optional {
				opt = "?"
			}
			fmt.Fprintf(c.App.Writer, "  %s%s: %s\n", name, opt, p.DataType)
		}
	}
	if names := ix.Registry().EntityNames(); len(names) > 0 {
		fmt.Fprintf(c.App.Writer, "entities: %v\n", names)
	}
	return nil
}
