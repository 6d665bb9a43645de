package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/DeusData/phplens/internal/crawler"
	"github.com/DeusData/phplens/internal/phpast"
)

const carsPHP = `<?php
/**
 * @typedef Car {
 *   brand: string
 *   color?: string
 * }
 */
`

func workspace(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &errOut
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run(append([]string{"phplens"}, args...))
	return out.String(), err
}

func TestCheckReportsErrors(t *testing.T) {
	dir := workspace(t, map[string]string{
		"cars.php": carsPHP,
		"bad.php":  "<?php\n/** @var Car */\n$c = ['color' => 'red'];\n",
		"ok.php":   "<?php\n/** @var Car */\n$c = ['brand' => 'VW'];\n",
	})

	out, err := run(t, "--root", dir, "--no-cache", "check", "--color", "never")
	if err == nil {
		t.Fatal("expected a non-zero exit for errors")
	}
	if ec, ok := err.(cli.ExitCoder); !ok || ec.ExitCode() != 1 {
		t.Errorf("err = %v", err)
	}
	if !strings.Contains(out, "bad.php:3:") || !strings.Contains(out, "Missing keys for type Car: brand") {
		t.Errorf("output:\n%s", out)
	}
	if strings.Contains(out, "ok.php:") {
		t.Errorf("clean file reported:\n%s", out)
	}
	if !strings.Contains(out, "3 files, 1 errors, 0 warnings") {
		t.Errorf("summary missing:\n%s", out)
	}
}

func TestCheckCleanWorkspace(t *testing.T) {
	dir := workspace(t, map[string]string{"cars.php": carsPHP})
	out, err := run(t, "--root", dir, "--no-cache", "check", "cars.php")
	if err != nil {
		t.Fatalf("check: %v\n%s", err, out)
	}
	if !strings.Contains(out, "1 files, 0 errors") {
		t.Errorf("output:\n%s", out)
	}
}

func TestIndexAndTypes(t *testing.T) {
	dir := workspace(t, map[string]string{"cars.php": carsPHP})

	out, err := run(t, "--root", dir, "index")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "indexed 1 files") {
		t.Errorf("index output: %s", out)
	}
	if _, err := os.Stat(filepath.Join(dir, ".phplens", "metadata.db")); err != nil {
		t.Errorf("cache not written: %v", err)
	}

	out, err = run(t, "--root", dir, "types")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Car\n  brand: string\n  color?: string\n") {
		t.Errorf("types output:\n%s", out)
	}
}

func TestPrintDiagnostics(t *testing.T) {
	diags := []crawler.Diagnostic{
		{Message: "boom", Severity: crawler.SeverityError, Loc: phpast.Range{Start: phpast.Position{Line: 2, Column: 0}}},
		{Message: "meh", Severity: crawler.SeverityWarning, Loc: phpast.Range{Start: phpast.Position{Line: 5, Column: 4}}},
	}
	var buf bytes.Buffer
	if n := printDiagnostics(&buf, "a.php", diags, false); n != 1 {
		t.Errorf("errors = %d", n)
	}
	if buf.String() != "a.php:2:1: error: boom\na.php:5:5: warning: meh\n" {
		t.Errorf("plain = %q", buf.String())
	}

	buf.Reset()
	printDiagnostics(&buf, "a.php", diags, true)
	if !strings.Contains(buf.String(), ansiRed) || !strings.Contains(buf.String(), ansiYellow) {
		t.Errorf("colour = %q", buf.String())
	}
}

func TestUseColor(t *testing.T) {
	var buf bytes.Buffer
	if useColor("auto", &buf) {
		t.Error("buffer is not a terminal")
	}
	if !useColor("always", &buf) || useColor("never", os.Stdout) {
		t.Error("explicit modes ignored")
	}
}
