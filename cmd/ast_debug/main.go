// Command ast_debug dumps the tree-sitter tree of a PHP file (or of an SQL
// string with -sql), followed by the converted tree with inferred types.
package main

import (
	"fmt"
	"os"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/DeusData/phplens/internal/crawler"
	"github.com/DeusData/phplens/internal/lang"
	"github.com/DeusData/phplens/internal/parser"
	"github.com/DeusData/phplens/internal/phpast"
	"github.com/DeusData/phplens/internal/sqlcols"
)

func printAST(node *tree_sitter.Node, source []byte, indent int) {
	if node == nil {
		return
	}
	prefix := strings.Repeat("  ", indent)
	text := string(source[node.StartByte():node.EndByte()])
	if len(text) > 60 {
		text = text[:60] + "..."
	}
	fmt.Printf("%s%s %q\n", prefix, node.Kind(), text)
	for i := uint(0); i < node.ChildCount(); i++ {
		printAST(node.Child(i), source, indent+1)
	}
}

func printTyped(n phpast.Node, res *crawler.Result, indent int) {
	b := n.Base()
	line := fmt.Sprintf("%s%s %d:%d", strings.Repeat("  ", indent), phpast.KindName(n), b.Loc.Start.Line, b.Loc.Start.Column)
	if a := res.Attrs[b.ID]; a.DataType != "" {
		line += " : " + a.DataType
		if len(a.Modifiers) > 0 {
			line += " !" + strings.Join(a.Modifiers, " !")
		}
	}
	fmt.Println(line)
	for _, c := range n.Children() {
		printTyped(c, res, indent+1)
	}
}

func dumpSQL(query string) {
	src := []byte(query)
	tree, err := parser.Parse(lang.SQL, src)
	if err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
	printAST(tree.RootNode(), src, 0)
	tree.Close()

	cols, ok := sqlcols.Columns(query)
	fmt.Printf("\ncolumns: %v (select=%v)\n", cols, ok)
}

func main() {
	if len(os.Args) == 3 && os.Args[1] == "-sql" {
		dumpSQL(os.Args[2])
		return
	}
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: ast_debug <file.php> | ast_debug -sql '<query>'")
		os.Exit(2)
	}

	path := os.Args[1]
	src, err := os.ReadFile(path)
	if err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}

	fmt.Println("=== TREE-SITTER ===")
	tree, err := parser.Parse(lang.PHP, src)
	if err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
	printAST(tree.RootNode(), src, 0)
	tree.Close()

	file, err := phpast.Parse(path, src)
	if err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
	res, err := crawler.Crawl(file, crawler.Options{Mode: crawler.ModeMetadata})
	if err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}

	fmt.Println("\n=== TYPED ===")
	printTyped(file.Root, res, 0)

	meta, _ := res.Metadata.Encode()
	fmt.Printf("\n=== METADATA ===\n%s\n", meta)
	for _, d := range res.Diagnostics {
		fmt.Printf("%d:%d %s: %s\n", d.Loc.Start.Line, d.Loc.Start.Column+1, d.Severity, d.Message)
	}
}
