// Package phpast is a closed syntax tree for PHP source, converted from the
// tree-sitter concrete tree. Every node carries a NodeID that indexes the
// crawler's attribute side tables; nodes are never mutated after Parse.
package phpast

// NodeID identifies a node within one File. IDs are dense, starting at 0 in
// pre-order.
type NodeID int32

// Position is a source location. Line is 1-based, Column is a 0-based byte
// offset within the line.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Before reports whether p sorts strictly before q.
func (p Position) Before(q Position) bool {
	return p.Line < q.Line || p.Line == q.Line && p.Column < q.Column
}

// Range is a half-open source span.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Contains reports whether pos falls inside r, end inclusive so a cursor
// placed right after a token still hits it.
func (r Range) Contains(pos Position) bool {
	return !pos.Before(r.Start) && !r.End.Before(pos)
}

// LineRange is an inclusive span of 1-based lines.
type LineRange struct {
	First int `json:"first"`
	Last  int `json:"last"`
}

// InWindow reports whether any line of r lies inside vp.
func InWindow(r Range, vp LineRange) bool {
	return r.End.Line >= vp.First && r.Start.Line <= vp.Last
}

// Comment is a source comment, including its delimiters.
type Comment struct {
	Text string
	Loc  Range
}

// Node is implemented by every syntax node variant.
type Node interface {
	Base() *NodeBase
	Children() []Node
}

// NodeBase holds the fields shared by every node.
type NodeBase struct {
	ID      NodeID
	Loc     Range
	Leading []*Comment
}

func (b *NodeBase) Base() *NodeBase { return b }

type Program struct {
	NodeBase
	Body []Node
}

type Block struct {
	NodeBase
	Body []Node
}

type ClassDecl struct {
	NodeBase
	Name    string
	NameLoc Range
	Body    []Node
}

// FunctionKind distinguishes the function-like nodes.
type FunctionKind uint8

const (
	FuncFunction FunctionKind = iota
	FuncMethod
	FuncClosure
	FuncArrow
)

func (k FunctionKind) String() string {
	switch k {
	case FuncMethod:
		return "method"
	case FuncClosure:
		return "closure"
	case FuncArrow:
		return "arrow_function"
	default:
		return "function"
	}
}

// FunctionDecl is a named function, a method, a closure or an arrow
// function. Body is a *Block, or an expression for arrow functions, or nil
// for abstract methods.
type FunctionDecl struct {
	NodeBase
	Kind    FunctionKind
	Name    string
	NameLoc Range
	Static  bool
	Params  []*Param
	Body    Node
}

type Param struct {
	NodeBase
	Name     string
	TypeHint string
	Default  Node
	Variadic bool
}

// PropertyDecl is one class property. A declaration listing several
// properties becomes several PropertyDecls; comments lead the first.
type PropertyDecl struct {
	NodeBase
	Name     string
	TypeHint string
	Static   bool
	Default  Node
}

type ExprStmt struct {
	NodeBase
	Expr Node
}

type Assign struct {
	NodeBase
	Op    string
	Left  Node
	Right Node
}

// CallKind distinguishes free function calls, instance method calls and
// static method calls.
type CallKind uint8

const (
	CallFunction CallKind = iota
	CallMethod
	CallStatic
)

// Call is a function, method or static call. For CallFunction, Name is set
// when the callee is a plain name and Callee otherwise. For CallMethod,
// Receiver is the object expression. For CallStatic, Class is the scope
// name ("self" and "static" included) or ClassNode an expression.
type Call struct {
	NodeBase
	Kind      CallKind
	Name      string
	NameLoc   Range
	Callee    Node
	Receiver  Node
	Class     string
	ClassNode Node
	Args      []Node
}

type New struct {
	NodeBase
	Class     string
	ClassLoc  Range
	ClassNode Node
	Args      []Node
}

type ArrayLit struct {
	NodeBase
	Entries []*Entry
}

// Entry is one array element. Key is nil for list-style elements.
type Entry struct {
	NodeBase
	Key   Node
	Value Node
}

// Variable is "$name"; Name excludes the sigil.
type Variable struct {
	NodeBase
	Name string
}

// OffsetLookup is "$object[offset]". Offset is nil for "$object[]".
type OffsetLookup struct {
	NodeBase
	Object Node
	Offset Node
}

// PropertyLookup is "$object->prop", or "Class::$prop" when Static.
type PropertyLookup struct {
	NodeBase
	Object Node
	Prop   *Identifier
	Static bool
}

type Foreach struct {
	NodeBase
	Source Node
	Key    Node
	Value  Node
	Body   Node
}

type Return struct {
	NodeBase
	Expr Node
}

// If covers if/elseif/else. Branches holds the then-body followed by the
// converted alternatives.
type If struct {
	NodeBase
	Cond     Node
	Branches []Node
}

type While struct {
	NodeBase
	Cond Node
	Body Node
}

type Echo struct {
	NodeBase
	Exprs []Node
}

type Binary struct {
	NodeBase
	Op    string
	Left  Node
	Right Node
}

// String is a string literal. Interpolated strings keep their embedded
// expressions in Parts and carry no usable Value.
type String struct {
	NodeBase
	Value        string
	Interpolated bool
	Parts        []Node
}

type Number struct {
	NodeBase
	Text string
}

// Identifier is a bare name: constants, true/false/null, property and
// method names.
type Identifier struct {
	NodeBase
	Name string
}

// Other is any syntax the engine has no rule for. Its children are still
// visited.
type Other struct {
	NodeBase
	Kind string
	Body []Node
}
