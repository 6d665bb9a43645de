// Package sqlcols extracts the output column names of a literal SELECT
// statement, so query results can be typed as row shapes.
package sqlcols

import (
	"log/slog"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/DeusData/phplens/internal/lang"
	"github.com/DeusData/phplens/internal/parser"
)

// Columns returns one name per output column of sql: the alias when present,
// else the bare column identifier. Columns that are neither (expressions
// without an alias, "*") are skipped. The boolean is false for anything but
// a single well-formed SELECT.
func Columns(sql string) ([]string, bool) {
	src := []byte(strings.TrimSpace(sql))
	if len(src) == 0 {
		return nil, false
	}
	tree, err := parser.Parse(lang.SQL, src)
	if err != nil {
		slog.Debug("sqlcols.parse", "err", err)
		return nil, false
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil || root.HasError() {
		return nil, false
	}

	var statements []*tree_sitter.Node
	for _, child := range parser.NamedChildren(root) {
		if child.Kind() == "statement" {
			statements = append(statements, child)
		}
	}
	if len(statements) != 1 {
		return nil, false
	}

	sel := parser.FindChild(statements[0], "select")
	if sel == nil {
		return nil, false
	}
	exprs := parser.FindChild(sel, "select_expression")
	if exprs == nil {
		return nil, false
	}

	cols := []string{}
	for _, term := range parser.NamedChildren(exprs) {
		if term.Kind() != "term" {
			continue
		}
		if name := columnName(term, src); name != "" {
			cols = append(cols, name)
		}
	}
	return cols, true
}

func columnName(term *tree_sitter.Node, src []byte) string {
	if alias := term.ChildByFieldName("alias"); alias != nil {
		return unquote(parser.NodeText(alias, src))
	}
	value := term.ChildByFieldName("value")
	if value == nil || value.Kind() != "field" {
		return ""
	}
	name := value.ChildByFieldName("name")
	if name == nil {
		return ""
	}
	return unquote(parser.NodeText(name, src))
}

func unquote(s string) string {
	return strings.Trim(s, "`\"[]")
}
