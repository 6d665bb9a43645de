package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DeusData/phplens/internal/indexer"
)

const carsPHP = `<?php
/**
 * @typedef Car {
 *   brand: string
 *   color?: string
 * }
 */

/** @return Car */
function makeCar() {}

/** @var Car */
$car = ['colour' => 'red'];
`

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "cars.php"), []byte(carsPHP), 0o600); err != nil {
		t.Fatal(err)
	}
	ix, err := indexer.New(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(ix.Close)
	return NewServer(ix), dir
}

type handler func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error)

func call(t *testing.T, h handler, args map[string]any) (string, bool) {
	t.Helper()
	raw, err := json.Marshal(args)
	if err != nil {
		t.Fatal(err)
	}
	res, err := h(context.Background(), &mcp.CallToolRequest{Params: &mcp.CallToolParamsRaw{Arguments: raw}})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	text := res.Content[0].(*mcp.TextContent).Text
	return text, res.IsError
}

func decode(t *testing.T, text string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(text), &m); err != nil {
		t.Fatalf("decode %q: %v", text, err)
	}
	return m
}

func TestIndexAndLookup(t *testing.T) {
	srv, _ := newTestServer(t)

	text, isErr := call(t, srv.handleIndexWorkspace, nil)
	if isErr {
		t.Fatalf("index_workspace: %s", text)
	}
	if got := decode(t, text)["files"]; got != float64(1) {
		t.Errorf("files = %v", got)
	}

	text, isErr = call(t, srv.handleLookupType, map[string]any{"name": "Car[]"})
	if isErr {
		t.Fatalf("lookup_type: %s", text)
	}
	m := decode(t, text)
	if m["array"] != true || !strings.Contains(m["markdown"].(string), "brand: string") {
		t.Errorf("lookup_type = %v", m)
	}

	if text, isErr := call(t, srv.handleLookupType, map[string]any{"name": "{id: number}"}); isErr {
		t.Errorf("inline lookup_type: %s", text)
	}
	if _, isErr := call(t, srv.handleLookupType, map[string]any{"name": "Boat"}); !isErr {
		t.Error("unknown type should be an error")
	}

	text, isErr = call(t, srv.handleLookupFunction, map[string]any{"name": "makeCar"})
	if isErr || !strings.Contains(text, `"Car"`) {
		t.Errorf("lookup_function = %s", text)
	}

	text, _ = call(t, srv.handleListTypedefs, nil)
	if !strings.Contains(text, `"Car"`) {
		t.Errorf("list_typedefs = %s", text)
	}
}

func TestAnalyzeFile(t *testing.T) {
	srv, _ := newTestServer(t)

	text, isErr := call(t, srv.handleAnalyzeFile, map[string]any{"path": "cars.php", "decorations": true})
	if isErr {
		t.Fatalf("analyze_file: %s", text)
	}
	if !strings.Contains(text, "unknown_key") || !strings.Contains(text, "missing_keys") {
		t.Errorf("diagnostics missing from %s", text)
	}
	if !strings.Contains(text, `"decorations"`) {
		t.Errorf("decorations missing from %s", text)
	}

	if _, isErr := call(t, srv.handleAnalyzeFile, map[string]any{}); !isErr {
		t.Error("missing path should be an error")
	}
	if _, isErr := call(t, srv.handleAnalyzeFile, map[string]any{"path": "nope.php"}); !isErr {
		t.Error("missing file should be an error")
	}
}

func TestHoverCompleteAndEdit(t *testing.T) {
	srv, _ := newTestServer(t)

	text, isErr := call(t, srv.handleHover, map[string]any{"path": "cars.php", "line": 13, "column": 1})
	if isErr {
		t.Fatalf("hover: %s", text)
	}
	if m := decode(t, text); m["found"] != true || !strings.Contains(m["markdown"].(string), "Car") {
		t.Errorf("hover = %v", m)
	}

	text, isErr = call(t, srv.handleComplete, map[string]any{"path": "cars.php", "line": 13, "column": 10})
	if isErr {
		t.Fatalf("complete: %s", text)
	}
	if !strings.Contains(text, `"brand"`) {
		t.Errorf("complete = %s", text)
	}

	if _, isErr := call(t, srv.handleHover, map[string]any{"path": "cars.php"}); !isErr {
		t.Error("hover without position should be an error")
	}

	text, isErr = call(t, srv.handleEditFile, map[string]any{
		"path": "cars.php", "source": carsPHP, "first_line": 12, "last_line": 13,
	})
	if isErr {
		t.Fatalf("edit_file: %s", text)
	}
	if m := decode(t, text); m["restricted"] != true || m["full_pending"] != true {
		t.Errorf("edit_file = %v", m)
	}
}
