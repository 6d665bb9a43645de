package phpast

import (
	"fmt"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/DeusData/phplens/internal/lang"
	"github.com/DeusData/phplens/internal/parser"
)

// File is one parsed PHP source file.
type File struct {
	Path     string
	Source   []byte
	Root     *Program
	Nodes    []Node
	Comments []*Comment
	// HasErrors reports whether tree-sitter had to recover from syntax
	// errors. The tree is still usable.
	HasErrors bool
}

// Node returns the node with the given id, or nil.
func (f *File) Node(id NodeID) Node {
	if id < 0 || int(id) >= len(f.Nodes) {
		return nil
	}
	return f.Nodes[id]
}

// Len returns the number of nodes in the file.
func (f *File) Len() int { return len(f.Nodes) }

// Line returns the text of 1-based line n without its terminator.
func (f *File) Line(n int) string {
	src := string(f.Source)
	for i := 1; i < n; i++ {
		idx := strings.IndexByte(src, '\n')
		if idx < 0 {
			return ""
		}
		src = src[idx+1:]
	}
	if idx := strings.IndexByte(src, '\n'); idx >= 0 {
		src = src[:idx]
	}
	return strings.TrimSuffix(src, "\r")
}

// Parse parses PHP source into a File.
func Parse(path string, source []byte) (*File, error) {
	tree, err := parser.Parse(lang.PHP, source)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil || !phpKinds.module[root.Kind()] {
		return nil, fmt.Errorf("parse %s: unexpected root", path)
	}

	c := &converter{
		src:      source,
		comments: make(map[uint]*Comment),
	}
	c.collectComments(root)

	prog := &Program{}
	c.register(prog, root)
	prog.Body = c.statements(root)

	return &File{
		Path:      path,
		Source:    source,
		Root:      prog,
		Nodes:     c.nodes,
		Comments:  c.ordered,
		HasErrors: root.HasError(),
	}, nil
}

type converter struct {
	src      []byte
	nodes    []Node
	comments map[uint]*Comment
	ordered  []*Comment
}

func rangeOf(n *tree_sitter.Node) Range {
	start, end := n.StartPosition(), n.EndPosition()
	return Range{
		Start: Position{Line: int(start.Row) + 1, Column: int(start.Column)},
		End:   Position{Line: int(end.Row) + 1, Column: int(end.Column)},
	}
}

func (c *converter) text(n *tree_sitter.Node) string {
	return parser.NodeText(n, c.src)
}

// register assigns the next pre-order id to n.
func (c *converter) register(n Node, ts *tree_sitter.Node) {
	b := n.Base()
	b.ID = NodeID(len(c.nodes))
	b.Loc = rangeOf(ts)
	c.nodes = append(c.nodes, n)
}

func (c *converter) collectComments(root *tree_sitter.Node) {
	parser.Walk(root, func(n *tree_sitter.Node) bool {
		if phpKinds.comment[n.Kind()] {
			cm := &Comment{Text: c.text(n), Loc: rangeOf(n)}
			c.comments[n.StartByte()] = cm
			c.ordered = append(c.ordered, cm)
			return false
		}
		return true
	})
}

// kindSet groups node kinds registered for PHP.
type kindSet struct {
	module, comment, block, class map[string]bool
}

var phpKinds = newKindSet(lang.ForLanguage(lang.PHP))

func newKindSet(spec *lang.LanguageSpec) kindSet {
	set := func(kinds []string) map[string]bool {
		m := make(map[string]bool, len(kinds))
		for _, k := range kinds {
			m[k] = true
		}
		return m
	}
	return kindSet{
		module:  set(spec.ModuleNodeTypes),
		comment: set(spec.CommentNodeTypes),
		block:   set(spec.BlockNodeTypes),
		class:   set(spec.ClassNodeTypes),
	}
}

// skipped lists structural kinds with no meaning to the engine.
var skipped = map[string]bool{
	"php_tag":             true,
	"php_end_tag":         true,
	"text":                true,
	"text_interpolation":  true,
	"visibility_modifier": true,
	"static_modifier":     true,
	"final_modifier":      true,
	"abstract_modifier":   true,
	"readonly_modifier":   true,
}

// statements converts the named children of a statement list, attaching
// each run of comments to the node that follows it.
func (c *converter) statements(n *tree_sitter.Node) []Node {
	var (
		out     []Node
		pending []*Comment
	)
	for _, child := range parser.NamedChildren(n) {
		kind := child.Kind()
		if kind == "comment" {
			pending = append(pending, c.comments[child.StartByte()])
			continue
		}
		if skipped[kind] {
			continue
		}
		if kind == "property_declaration" {
			props := c.properties(child)
			if len(props) > 0 {
				props[0].Base().Leading = pending
				pending = nil
			}
			out = append(out, props...)
			continue
		}
		node := c.convert(child)
		if node == nil {
			continue
		}
		node.Base().Leading = pending
		pending = nil
		out = append(out, node)
	}
	return out
}

func (c *converter) convert(n *tree_sitter.Node) Node {
	if n == nil {
		return nil
	}
	kind := n.Kind()
	switch {
	case phpKinds.comment[kind]:
		return nil
	case phpKinds.block[kind]:
		b := &Block{}
		c.register(b, n)
		b.Body = c.statements(n)
		return b
	case phpKinds.class[kind]:
		return c.class(n)
	}
	switch kind {
	case "expression_statement":
		s := &ExprStmt{}
		c.register(s, n)
		s.Expr = c.convert(firstNamed(n))
		return s
	case "parenthesized_expression":
		return c.convert(firstNamed(n))
	case "function_definition":
		return c.function(n, FuncFunction)
	case "method_declaration":
		return c.function(n, FuncMethod)
	case "anonymous_function", "anonymous_function_creation_expression":
		return c.function(n, FuncClosure)
	case "arrow_function":
		return c.function(n, FuncArrow)
	case "assignment_expression", "augmented_assignment_expression", "reference_assignment_expression":
		a := &Assign{Op: "="}
		c.register(a, n)
		if op := n.ChildByFieldName("operator"); op != nil {
			a.Op = c.text(op)
		}
		a.Left = c.convert(n.ChildByFieldName("left"))
		a.Right = c.convert(n.ChildByFieldName("right"))
		return a
	case "function_call_expression":
		return c.functionCall(n)
	case "member_call_expression", "nullsafe_member_call_expression":
		call := &Call{Kind: CallMethod}
		c.register(call, n)
		call.Receiver = c.convert(n.ChildByFieldName("object"))
		if name := n.ChildByFieldName("name"); name != nil {
			call.Name, call.NameLoc = c.text(name), rangeOf(name)
		}
		call.Args = c.arguments(n.ChildByFieldName("arguments"))
		return call
	case "scoped_call_expression":
		call := &Call{Kind: CallStatic}
		c.register(call, n)
		c.scope(n.ChildByFieldName("scope"), &call.Class, &call.ClassNode)
		if name := n.ChildByFieldName("name"); name != nil {
			call.Name, call.NameLoc = c.text(name), rangeOf(name)
		}
		call.Args = c.arguments(n.ChildByFieldName("arguments"))
		return call
	case "object_creation_expression":
		return c.newExpr(n)
	case "array_creation_expression":
		return c.array(n)
	case "variable_name":
		v := &Variable{Name: strings.TrimPrefix(c.text(n), "$")}
		c.register(v, n)
		return v
	case "subscript_expression":
		o := &OffsetLookup{}
		c.register(o, n)
		named := nonComment(n)
		if len(named) > 0 {
			o.Object = c.convert(named[0])
		}
		if len(named) > 1 {
			o.Offset = c.convert(named[1])
		}
		return o
	case "member_access_expression", "nullsafe_member_access_expression":
		p := &PropertyLookup{}
		c.register(p, n)
		p.Object = c.convert(n.ChildByFieldName("object"))
		p.Prop = c.identifier(n.ChildByFieldName("name"))
		return p
	case "scoped_property_access_expression":
		p := &PropertyLookup{Static: true}
		c.register(p, n)
		p.Object = c.convert(n.ChildByFieldName("scope"))
		p.Prop = c.identifier(n.ChildByFieldName("name"))
		return p
	case "foreach_statement":
		return c.foreach(n)
	case "return_statement":
		r := &Return{}
		c.register(r, n)
		r.Expr = c.convert(firstNamed(n))
		return r
	case "if_statement", "else_if_clause":
		s := &If{}
		c.register(s, n)
		cond := n.ChildByFieldName("condition")
		s.Cond = c.convert(cond)
		for _, child := range nonComment(n) {
			if cond != nil && child.StartByte() == cond.StartByte() && child.Kind() == cond.Kind() {
				continue
			}
			if b := c.convert(child); b != nil {
				s.Branches = append(s.Branches, b)
			}
		}
		return s
	case "else_clause":
		return c.convert(firstNamed(n))
	case "while_statement":
		w := &While{}
		c.register(w, n)
		w.Cond = c.convert(n.ChildByFieldName("condition"))
		w.Body = c.convert(n.ChildByFieldName("body"))
		return w
	case "echo_statement":
		e := &Echo{}
		c.register(e, n)
		e.Exprs = c.expressions(n)
		return e
	case "binary_expression":
		b := &Binary{}
		c.register(b, n)
		if op := n.ChildByFieldName("operator"); op != nil {
			b.Op = c.text(op)
		}
		b.Left = c.convert(n.ChildByFieldName("left"))
		b.Right = c.convert(n.ChildByFieldName("right"))
		return b
	case "string", "encapsed_string":
		return c.str(n)
	case "integer", "float":
		num := &Number{Text: c.text(n)}
		c.register(num, n)
		return num
	case "name", "qualified_name", "boolean", "null", "relative_scope":
		return c.identifier(n)
	}

	o := &Other{Kind: n.Kind()}
	c.register(o, n)
	o.Body = c.statements(n)
	return o
}

func firstNamed(n *tree_sitter.Node) *tree_sitter.Node {
	for _, child := range parser.NamedChildren(n) {
		if child.Kind() != "comment" {
			return child
		}
	}
	return nil
}

func nonComment(n *tree_sitter.Node) []*tree_sitter.Node {
	var out []*tree_sitter.Node
	for _, child := range parser.NamedChildren(n) {
		if child.Kind() != "comment" {
			out = append(out, child)
		}
	}
	return out
}

func (c *converter) expressions(n *tree_sitter.Node) []Node {
	var out []Node
	for _, child := range nonComment(n) {
		if node := c.convert(child); node != nil {
			out = append(out, node)
		}
	}
	return out
}

func (c *converter) identifier(n *tree_sitter.Node) *Identifier {
	if n == nil {
		return nil
	}
	id := &Identifier{Name: strings.TrimPrefix(strings.TrimPrefix(c.text(n), "\\"), "$")}
	c.register(id, n)
	return id
}

// scope fills either the static class name or the class expression of a
// scoped call or property access.
func (c *converter) scope(n *tree_sitter.Node, name *string, expr *Node) {
	if n == nil {
		return
	}
	switch n.Kind() {
	case "name", "qualified_name", "relative_scope":
		*name = strings.TrimPrefix(c.text(n), "\\")
	default:
		*expr = c.convert(n)
	}
}

func (c *converter) class(n *tree_sitter.Node) Node {
	cls := &ClassDecl{}
	c.register(cls, n)
	if name := n.ChildByFieldName("name"); name != nil {
		cls.Name, cls.NameLoc = c.text(name), rangeOf(name)
	}
	if body := n.ChildByFieldName("body"); body != nil {
		cls.Body = c.statements(body)
	}
	return cls
}

func (c *converter) function(n *tree_sitter.Node, kind FunctionKind) Node {
	fn := &FunctionDecl{Kind: kind}
	c.register(fn, n)
	if name := n.ChildByFieldName("name"); name != nil {
		fn.Name, fn.NameLoc = c.text(name), rangeOf(name)
	}
	fn.Static = parser.FindChild(n, "static_modifier") != nil
	if kind == FuncClosure || kind == FuncArrow {
		// "static function () {}" carries a bare keyword child
		fn.Static = fn.Static || parser.FindChild(n, "static") != nil
	}
	fn.Params = c.params(n.ChildByFieldName("parameters"))
	fn.Body = c.convert(n.ChildByFieldName("body"))
	return fn
}

func (c *converter) params(n *tree_sitter.Node) []*Param {
	if n == nil {
		return nil
	}
	var out []*Param
	for _, child := range nonComment(n) {
		switch child.Kind() {
		case "simple_parameter", "variadic_parameter", "property_promotion_parameter":
		default:
			continue
		}
		p := &Param{Variadic: child.Kind() == "variadic_parameter"}
		c.register(p, child)
		if name := child.ChildByFieldName("name"); name != nil {
			p.Name = strings.TrimPrefix(c.text(name), "$")
		}
		if t := child.ChildByFieldName("type"); t != nil {
			p.TypeHint = strings.TrimPrefix(c.text(t), "\\")
		}
		p.Default = c.convert(child.ChildByFieldName("default_value"))
		out = append(out, p)
	}
	return out
}

func (c *converter) properties(n *tree_sitter.Node) []Node {
	static := parser.FindChild(n, "static_modifier") != nil
	var hint string
	if t := n.ChildByFieldName("type"); t != nil {
		hint = strings.TrimPrefix(c.text(t), "\\")
	}
	var out []Node
	for _, el := range nonComment(n) {
		if el.Kind() != "property_element" {
			continue
		}
		p := &PropertyDecl{Static: static, TypeHint: hint}
		c.register(p, el)
		name := el.ChildByFieldName("name")
		if name == nil {
			name = parser.FindChild(el, "variable_name")
		}
		if name != nil {
			p.Name = strings.TrimPrefix(c.text(name), "$")
		}
		if def := el.ChildByFieldName("default_value"); def != nil {
			p.Default = c.convert(def)
		} else if init := parser.FindChild(el, "property_initializer"); init != nil {
			p.Default = c.convert(firstNamed(init))
		}
		out = append(out, p)
	}
	return out
}

func (c *converter) functionCall(n *tree_sitter.Node) Node {
	call := &Call{Kind: CallFunction}
	c.register(call, n)
	if fn := n.ChildByFieldName("function"); fn != nil {
		switch fn.Kind() {
		case "name", "qualified_name":
			call.Name, call.NameLoc = strings.TrimPrefix(c.text(fn), "\\"), rangeOf(fn)
		default:
			call.Callee = c.convert(fn)
		}
	}
	call.Args = c.arguments(n.ChildByFieldName("arguments"))
	return call
}

// arguments unwraps argument nodes down to their value expressions.
func (c *converter) arguments(n *tree_sitter.Node) []Node {
	if n == nil {
		return nil
	}
	var out []Node
	for _, arg := range nonComment(n) {
		value := arg
		if arg.Kind() == "argument" {
			named := nonComment(arg)
			if len(named) == 0 {
				continue
			}
			// a named argument keeps its label as the first child
			value = named[len(named)-1]
		}
		if node := c.convert(value); node != nil {
			out = append(out, node)
		}
	}
	return out
}

func (c *converter) newExpr(n *tree_sitter.Node) Node {
	nw := &New{}
	c.register(nw, n)
	for _, child := range nonComment(n) {
		switch child.Kind() {
		case "arguments":
			nw.Args = c.arguments(child)
		case "name", "qualified_name":
			nw.Class, nw.ClassLoc = strings.TrimPrefix(c.text(child), "\\"), rangeOf(child)
		default:
			if nw.ClassNode == nil && nw.Class == "" {
				nw.ClassNode = c.convert(child)
			}
		}
	}
	return nw
}

func (c *converter) array(n *tree_sitter.Node) Node {
	arr := &ArrayLit{}
	c.register(arr, n)
	var pending []*Comment
	for _, el := range parser.NamedChildren(n) {
		if el.Kind() == "comment" {
			pending = append(pending, c.comments[el.StartByte()])
			continue
		}
		if el.Kind() != "array_element_initializer" {
			continue
		}
		e := &Entry{}
		c.register(e, el)
		e.Leading, pending = pending, nil
		named := nonComment(el)
		switch len(named) {
		case 0:
		case 1:
			e.Value = c.convert(named[0])
		default:
			e.Key = c.convert(named[0])
			e.Value = c.convert(named[1])
		}
		arr.Entries = append(arr.Entries, e)
	}
	return arr
}

func (c *converter) foreach(n *tree_sitter.Node) Node {
	f := &Foreach{}
	c.register(f, n)
	named := nonComment(n)
	body := n.ChildByFieldName("body")
	if body == nil && len(named) >= 3 {
		body = named[len(named)-1]
	}
	if len(named) > 0 {
		f.Source = c.convert(named[0])
	}
	if len(named) > 1 {
		target := named[1]
		if target.Kind() == "pair" {
			kv := nonComment(target)
			if len(kv) == 2 {
				f.Key = c.convert(kv[0])
				f.Value = c.convert(kv[1])
			}
		} else if body == nil || target.StartByte() != body.StartByte() {
			f.Value = c.convert(target)
		}
	}
	f.Body = c.convert(body)
	return f
}

func (c *converter) str(n *tree_sitter.Node) Node {
	s := &String{}
	c.register(s, n)
	var (
		b       strings.Builder
		content bool
	)
	for _, child := range parser.NamedChildren(n) {
		switch child.Kind() {
		case "string_content", "string_value":
			b.WriteString(c.text(child))
			content = true
		case "escape_sequence":
			b.WriteString(unescape(c.text(child)))
			content = true
		default:
			s.Interpolated = true
			if part := c.convert(child); part != nil {
				s.Parts = append(s.Parts, part)
			}
		}
	}
	if s.Interpolated {
		return s
	}
	if !content {
		b.WriteString(stripQuotes(c.text(n)))
	}
	s.Value = b.String()
	if n.Kind() == "string" && strings.ContainsRune(s.Value, '\\') {
		s.Value = strings.NewReplacer(`\\`, `\`, `\'`, `'`).Replace(s.Value)
	}
	return s
}

func stripQuotes(s string) string {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "b"), "B")
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' || first == '\'') && first == last {
			return s[1 : len(s)-1]
		}
	}
	return s
}

var escapes = map[string]string{
	`\n`: "\n", `\t`: "\t", `\r`: "\r", `\v`: "\v", `\f`: "\f", `\e`: "\x1b",
	`\\`: `\`, `\$`: "$", `\"`: `"`, `\'`: "'", `\0`: "\x00",
}

func unescape(seq string) string {
	if r, ok := escapes[seq]; ok {
		return r
	}
	return seq
}
