package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/DeusData/phplens/internal/config"
	"github.com/DeusData/phplens/internal/indexer"
	"github.com/DeusData/phplens/internal/store"
	"github.com/DeusData/phplens/internal/tools"
)

var version = "dev"

func newApp() *cli.App {
	return &cli.App{
		Name:                   "phplens",
		Usage:                  "Static type inference for PHP arrays, annotations and SQL results",
		Version:                version,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Workspace root",
				Value:   ".",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Debug logging on stderr",
			},
			&cli.BoolFlag{
				Name:  "no-cache",
				Usage: "Ignore the metadata cache",
			},
		},
		Before: func(c *cli.Context) error {
			setupLogging(c.Bool("verbose"))
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the MCP server on stdio and watch the workspace",
				Action: serveCommand,
			},
			{
				Name:   "index",
				Usage:  "Index the workspace and print a summary",
				Action: indexCommand,
			},
			{
				Name:      "check",
				Usage:     "Report diagnostics for the given files, or for every workspace file",
				ArgsUsage: "[file...]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "color",
						Usage: "auto, always or never",
						Value: "auto",
					},
				},
				Action: checkCommand,
			},
			{
				Name:   "types",
				Usage:  "List the merged typedefs",
				Action: typesCommand,
			},
		},
	}
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// openIndexer builds the indexer for the --root workspace. The returned func
// releases it.
func openIndexer(c *cli.Context) (*indexer.Indexer, func(), error) {
	root := c.String("root")
	cfg := config.Load(root)

	var cache *store.Store
	if cfg.EffectiveCache() && !c.Bool("no-cache") {
		s, err := store.Open(cfg.EffectiveCacheDir(root))
		if err != nil {
			slog.Warn("cache.open", "err", err)
		} else {
			cache = s
		}
	}

	ix, err := indexer.New(root, &indexer.Options{Config: cfg, Cache: cache})
	if err != nil {
		if cache != nil {
			cache.Close()
		}
		return nil, nil, err
	}
	closeFn := func() {
		ix.Close()
		if cache != nil {
			cache.Close()
		}
	}
	return ix, closeFn, nil
}

func main() {
	tools.Version = version
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "phplens:", err)
		os.Exit(1)
	}
}
