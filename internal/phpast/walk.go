package phpast

func nonNil(ns ...Node) []Node {
	out := make([]Node, 0, len(ns))
	for _, n := range ns {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

func (n *Program) Children() []Node { return n.Body }
func (n *Block) Children() []Node   { return n.Body }
func (n *ClassDecl) Children() []Node {
	return n.Body
}

func (n *FunctionDecl) Children() []Node {
	out := make([]Node, 0, len(n.Params)+1)
	for _, p := range n.Params {
		out = append(out, p)
	}
	if n.Body != nil {
		out = append(out, n.Body)
	}
	return out
}

func (n *Param) Children() []Node        { return nonNil(n.Default) }
func (n *PropertyDecl) Children() []Node { return nonNil(n.Default) }
func (n *ExprStmt) Children() []Node     { return nonNil(n.Expr) }
func (n *Assign) Children() []Node       { return nonNil(n.Left, n.Right) }

func (n *Call) Children() []Node {
	out := nonNil(n.Callee, n.Receiver, n.ClassNode)
	return append(out, n.Args...)
}

func (n *New) Children() []Node {
	return append(nonNil(n.ClassNode), n.Args...)
}

func (n *ArrayLit) Children() []Node {
	out := make([]Node, 0, len(n.Entries))
	for _, e := range n.Entries {
		out = append(out, e)
	}
	return out
}

func (n *Entry) Children() []Node        { return nonNil(n.Key, n.Value) }
func (n *Variable) Children() []Node     { return nil }
func (n *OffsetLookup) Children() []Node { return nonNil(n.Object, n.Offset) }

func (n *PropertyLookup) Children() []Node {
	if n.Prop == nil {
		return nonNil(n.Object)
	}
	return nonNil(n.Object, n.Prop)
}

func (n *Foreach) Children() []Node { return nonNil(n.Source, n.Key, n.Value, n.Body) }
func (n *Return) Children() []Node  { return nonNil(n.Expr) }

func (n *If) Children() []Node {
	return append(nonNil(n.Cond), n.Branches...)
}

func (n *While) Children() []Node      { return nonNil(n.Cond, n.Body) }
func (n *Echo) Children() []Node       { return n.Exprs }
func (n *Binary) Children() []Node     { return nonNil(n.Left, n.Right) }
func (n *String) Children() []Node     { return n.Parts }
func (n *Number) Children() []Node     { return nil }
func (n *Identifier) Children() []Node { return nil }
func (n *Other) Children() []Node      { return n.Body }

// Walk visits n and its descendants depth-first in source order. Returning
// false from fn skips the node's children.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range n.Children() {
		Walk(c, fn)
	}
}

// KindName returns a short name for the node's variant, used in debug
// dumps and completion matching.
func KindName(n Node) string {
	switch n := n.(type) {
	case *Program:
		return "program"
	case *Block:
		return "block"
	case *ClassDecl:
		return "class"
	case *FunctionDecl:
		return n.Kind.String()
	case *Param:
		return "parameter"
	case *PropertyDecl:
		return "property"
	case *ExprStmt:
		return "expressionstatement"
	case *Assign:
		return "assign"
	case *Call:
		return "call"
	case *New:
		return "new"
	case *ArrayLit:
		return "array"
	case *Entry:
		return "entry"
	case *Variable:
		return "variable"
	case *OffsetLookup:
		return "offsetlookup"
	case *PropertyLookup:
		return "propertylookup"
	case *Foreach:
		return "foreach"
	case *Return:
		return "return"
	case *If:
		return "if"
	case *While:
		return "while"
	case *Echo:
		return "echo"
	case *Binary:
		return "bin"
	case *String:
		return "string"
	case *Number:
		return "number"
	case *Identifier:
		return "identifier"
	case *Other:
		return n.Kind
	default:
		return "unknown"
	}
}
