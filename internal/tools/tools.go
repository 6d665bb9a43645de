package tools

import (
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DeusData/phplens/internal/indexer"
)

// Version is reported in the MCP implementation info.
var Version = "dev"

// Server wraps the MCP server with tool handlers.
type Server struct {
	mcp *mcp.Server
	ix  *indexer.Indexer
}

// NewServer creates a new MCP server with all tools registered.
func NewServer(ix *indexer.Indexer) *Server {
	srv := &Server{
		ix: ix,
		mcp: mcp.NewServer(
			&mcp.Implementation{
				Name:    "phplens",
				Version: Version,
			},
			nil,
		),
	}
	srv.registerTools()
	return srv
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

const positionProps = `
				"path": {
					"type": "string",
					"description": "PHP file path (absolute, or relative to the workspace root)"
				},
				"source": {
					"type": "string",
					"description": "Unsaved buffer contents. If omitted, the open document or the file on disk is used."
				},
				"line": {
					"type": "integer",
					"description": "1-based line"
				},
				"column": {
					"type": "integer",
					"description": "0-based column"
				}`

func (s *Server) registerTools() {
	s.mcp.AddTool(&mcp.Tool{
		Name:        "index_workspace",
		Description: "Index every PHP file in the workspace. Collects @typedef declarations and function/method signatures into the type registry in two passes so cross-file references resolve. Unchanged files are served from the metadata cache.",
		InputSchema: json.RawMessage(`{"type": "object"}`),
	}, s.handleIndexWorkspace)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "analyze_file",
		Description: "Infer types for a PHP file and report diagnostics: missing keys, unknown keys (with suggestions) and assignment type mismatches. Optionally returns the hover decorations.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {
					"type": "string",
					"description": "PHP file path (absolute, or relative to the workspace root)"
				},
				"source": {
					"type": "string",
					"description": "Unsaved buffer contents. If omitted, the file on disk is used."
				},
				"decorations": {
					"type": "boolean",
					"description": "Include decorations grouped by tag (default: false)"
				}
			},
			"required": ["path"]
		}`),
	}, s.handleAnalyzeFile)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "edit_file",
		Description: "Report an edit of an open PHP buffer. Returns a fast analysis of the visible lines; a full analysis follows after the debounce delay and updates the type registry.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {
					"type": "string",
					"description": "PHP file path (absolute, or relative to the workspace root)"
				},
				"source": {
					"type": "string",
					"description": "Current buffer contents"
				},
				"first_line": {
					"type": "integer",
					"description": "First visible line (1-based, optional)"
				},
				"last_line": {
					"type": "integer",
					"description": "Last visible line (inclusive, optional)"
				}
			},
			"required": ["path", "source"]
		}`),
	}, s.handleEditFile)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "hover",
		Description: "Return the hover markdown at a position: the inferred type and its properties, annotation details, errors, or a page link.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {` + positionProps + `
			},
			"required": ["path", "line", "column"]
		}`),
	}, s.handleHover)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "complete",
		Description: "Return completion candidates at a position: the keys of the typed array literal, typed offset lookup or entity name under the cursor.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {` + positionProps + `
			},
			"required": ["path", "line", "column"]
		}`),
	}, s.handleComplete)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "lookup_type",
		Description: "Look up a named type in the registry. Inline shapes like {id: number} are parsed directly.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"name": {
					"type": "string",
					"description": "Type name, e.g. 'Car' or 'EntityUser'"
				}
			},
			"required": ["name"]
		}`),
	}, s.handleLookupType)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "lookup_function",
		Description: "Look up a function or method signature: argument types, modifiers and return type.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"name": {
					"type": "string",
					"description": "Function or method name"
				},
				"class": {
					"type": "string",
					"description": "Class name for methods (optional)"
				},
				"static": {
					"type": "boolean",
					"description": "Look up a static method (default: false)"
				}
			},
			"required": ["name"]
		}`),
	}, s.handleLookupFunction)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "list_typedefs",
		Description: "List every merged typedef in the registry with its properties, plus the known entity names and indexed files.",
		InputSchema: json.RawMessage(`{"type": "object"}`),
	}, s.handleListTypedefs)
}

// jsonResult marshals data to JSON and returns as tool result.
func jsonResult(data any) *mcp.CallToolResult {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return errResult("json marshal err=" + err.Error())
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(b)},
		},
	}
}

// errResult returns a tool result indicating an error.
func errResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
		IsError: true,
	}
}

// parseArgs unmarshals the raw JSON arguments into a map.
func parseArgs(req *mcp.CallToolRequest) (map[string]any, error) {
	if req.Params == nil || len(req.Params.Arguments) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(req.Params.Arguments, &m); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	return m, nil
}

// getStringArg extracts a string argument from parsed args.
func getStringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// hasArg reports whether key was passed at all.
func hasArg(args map[string]any, key string) bool {
	_, ok := args[key]
	return ok
}

// getIntArg extracts an integer argument with a default value.
func getIntArg(args map[string]any, key string, defaultVal int) int {
	f, ok := args[key].(float64) // JSON numbers decode as float64
	if !ok {
		return defaultVal
	}
	return int(f)
}

// getBoolArg extracts a boolean argument from parsed args.
func getBoolArg(args map[string]any, key string) bool {
	b, _ := args[key].(bool)
	return b
}
