package tools

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DeusData/phplens/internal/crawler"
	"github.com/DeusData/phplens/internal/decorate"
	"github.com/DeusData/phplens/internal/docblock"
	"github.com/DeusData/phplens/internal/phpast"
	"github.com/DeusData/phplens/internal/types"
)

func (s *Server) handleIndexWorkspace(ctx context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.ix.IndexWorkspace(ctx)
	if err != nil {
		return errResult(fmt.Sprintf("indexing failed: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"root":       s.ix.Root(),
		"files":      stats.Files,
		"cached":     stats.Cached,
		"parsed":     stats.Parsed,
		"failed":     stats.Failed,
		"typedefs":   stats.Typedefs,
		"elapsed_ms": stats.Elapsed.Milliseconds(),
	}), nil
}

// sourceArg returns the "source" argument, or nil when it was not passed.
func sourceArg(args map[string]any) []byte {
	if !hasArg(args, "source") {
		return nil
	}
	return []byte(getStringArg(args, "source"))
}

type diagnosticOut struct {
	crawler.Diagnostic
	Text string `json:"text"`
}

func diagnosticsOut(path string, diags []crawler.Diagnostic) []diagnosticOut {
	out := make([]diagnosticOut, 0, len(diags))
	for _, d := range diags {
		out = append(out, diagnosticOut{Diagnostic: d, Text: decorate.FormatDiagnostic(path, d)})
	}
	return out
}

func (s *Server) handleAnalyzeFile(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	path := getStringArg(args, "path")
	if path == "" {
		return errResult("path is required"), nil
	}

	file, res, err := s.ix.Analyze(path, sourceArg(args))
	if err != nil {
		return errResult(fmt.Sprintf("analyze: %v", err)), nil
	}

	out := map[string]any{
		"path":        file.Path,
		"syntax_ok":   !file.HasErrors,
		"diagnostics": diagnosticsOut(file.Path, res.Diagnostics),
		"typedefs":    res.Metadata.Typedefs,
		"scopes":      res.Metadata.Scopes,
	}
	if getBoolArg(args, "decorations") {
		groups := decorate.Group(res.Decorations)
		named := make(map[docblock.Tag][]phpast.Range, len(groups))
		for tag, decs := range groups {
			for _, d := range decs {
				named[tag] = append(named[tag], d.Loc)
			}
		}
		out["decorations"] = named
	}
	return jsonResult(out), nil
}

func (s *Server) handleEditFile(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	path := getStringArg(args, "path")
	if path == "" || !hasArg(args, "source") {
		return errResult("path and source are required"), nil
	}

	var vp *phpast.LineRange
	first, last := getIntArg(args, "first_line", 0), getIntArg(args, "last_line", 0)
	if first > 0 && last >= first {
		vp = &phpast.LineRange{First: first, Last: last}
	}

	res, err := s.ix.Edit(path, sourceArg(args), vp)
	if err != nil {
		return errResult(fmt.Sprintf("edit: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"path":          s.ix.Abs(path),
		"restricted":    vp != nil,
		"visited_nodes": len(res.Visited),
		"diagnostics":   diagnosticsOut(s.ix.Abs(path), res.Diagnostics),
		"full_pending":  s.ix.Pending(path),
	}), nil
}

// positionArgs extracts path and position.
func positionArgs(args map[string]any) (string, phpast.Position, error) {
	path := getStringArg(args, "path")
	line := getIntArg(args, "line", 0)
	col := getIntArg(args, "column", -1)
	if path == "" || line < 1 || col < 0 {
		return "", phpast.Position{}, fmt.Errorf("path, line (>= 1) and column (>= 0) are required")
	}
	return path, phpast.Position{Line: line, Column: col}, nil
}

func (s *Server) handleHover(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	path, pos, err := positionArgs(args)
	if err != nil {
		return errResult(err.Error()), nil
	}

	h, ok, err := s.ix.Hover(path, sourceArg(args), pos)
	if err != nil {
		return errResult(fmt.Sprintf("hover: %v", err)), nil
	}
	if !ok {
		return jsonResult(map[string]any{"found": false}), nil
	}
	return jsonResult(map[string]any{
		"found":    true,
		"range":    h.Loc,
		"markdown": h.Markdown,
	}), nil
}

func (s *Server) handleComplete(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	path, pos, err := positionArgs(args)
	if err != nil {
		return errResult(err.Error()), nil
	}

	items, err := s.ix.Complete(path, sourceArg(args), pos)
	if err != nil {
		return errResult(fmt.Sprintf("complete: %v", err)), nil
	}
	if items == nil {
		items = []decorate.Suggestion{}
	}
	return jsonResult(map[string]any{"items": items}), nil
}

func (s *Server) handleLookupType(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	name := types.Normalize(getStringArg(args, "name"))
	if name == "" {
		return errResult("name is required"), nil
	}

	elem, isArray := types.StripArray(name)
	base := name
	if isArray {
		base = elem
	}

	var td *types.TypeDef
	if types.IsInline(base) {
		td, err = types.ParseInline(base)
		if err != nil {
			return errResult(fmt.Sprintf("inline type: %v", err)), nil
		}
	} else {
		var ok bool
		if td, ok = s.ix.Registry().LookupType(base); !ok {
			return errResult(fmt.Sprintf("type not found: %s", base)), nil
		}
	}
	return jsonResult(map[string]any{
		"name":     name,
		"array":    isArray,
		"typedef":  td,
		"markdown": decorate.TypeMarkdown(name, td),
	}), nil
}

func (s *Server) handleLookupFunction(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	name := getStringArg(args, "name")
	if name == "" {
		return errResult("name is required"), nil
	}

	reg := s.ix.Registry()
	var (
		sig *types.FunctionSignature
		ok  bool
	)
	if class := getStringArg(args, "class"); class != "" {
		sig, ok = reg.LookupMethod(class, name, getBoolArg(args, "static"))
	} else {
		sig, ok = reg.LookupFunction(name)
	}
	if !ok {
		return errResult(fmt.Sprintf("function not found: %s", name)), nil
	}
	return jsonResult(sig), nil
}

func (s *Server) handleListTypedefs(_ context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	reg := s.ix.Registry()
	return jsonResult(map[string]any{
		"typedefs": reg.Typedefs(),
		"entities": reg.EntityNames(),
		"files":    reg.Files(),
	}), nil
}
