// Package scope implements the lexical binding records the crawler threads
// through a traversal. Scopes live in an arena and are addressed by ID so AST
// side tables can refer to them without holding pointers.
package scope

// ID addresses a Scope in an Arena. The zero ID is invalid.
type ID int32

// None is the invalid scope ID.
const None ID = 0

// Kind enumerates scope-boundary categories.
type Kind uint8

const (
	KindProgram Kind = iota + 1
	KindClass
	KindFunction
)

func (k Kind) String() string {
	switch k {
	case KindProgram:
		return "program"
	case KindClass:
		return "class"
	case KindFunction:
		return "function"
	default:
		return "invalid"
	}
}

// Scope is the binding record visible to one subtree.
type Scope struct {
	Kind      Kind
	Parent    ID
	Class     string
	Variables map[string]string

	// PendingArgs pre-types a callback's parameters before its body is
	// crawled. Consumed by the next function boundary opened under it.
	PendingArgs []string

	// ReturnType accumulates the types of return statements; last one wins.
	ReturnType string
}

// Arena owns every Scope of one crawl.
type Arena struct {
	scopes []Scope
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	// index 0 is the None sentinel
	return &Arena{scopes: make([]Scope, 1, 16)}
}

// New allocates a fresh scope. Only the class name carries over from the
// enclosing scope; variable bindings never do.
func (a *Arena) New(kind Kind, parent ID, class string) ID {
	a.scopes = append(a.scopes, Scope{
		Kind:      kind,
		Parent:    parent,
		Class:     class,
		Variables: make(map[string]string),
	})
	return ID(len(a.scopes) - 1)
}

// Get returns the scope for id, or nil for an invalid id.
func (a *Arena) Get(id ID) *Scope {
	if id <= None || int(id) >= len(a.scopes) {
		return nil
	}
	return &a.scopes[id]
}

// Len returns the number of allocated scopes.
func (a *Arena) Len() int { return len(a.scopes) - 1 }

// Bind records name -> dataType in scope id. Empty types are ignored.
func (a *Arena) Bind(id ID, name, dataType string) {
	s := a.Get(id)
	if s == nil || name == "" || dataType == "" {
		return
	}
	s.Variables[name] = dataType
}

// Lookup resolves name in scope id. "this" falls back to the enclosing class
// when nothing else is bound to it.
func (a *Arena) Lookup(id ID, name string) (string, bool) {
	s := a.Get(id)
	if s == nil {
		return "", false
	}
	if dt, ok := s.Variables[name]; ok {
		return dt, true
	}
	if name == "this" && s.Class != "" {
		return s.Class, true
	}
	return "", false
}

// SetPending stores argument types for the next callback opened in id.
func (a *Arena) SetPending(id ID, args []string) {
	if s := a.Get(id); s != nil {
		s.PendingArgs = args
	}
}

// TakePending returns and clears the pending argument types of id.
func (a *Arena) TakePending(id ID) []string {
	s := a.Get(id)
	if s == nil {
		return nil
	}
	args := s.PendingArgs
	s.PendingArgs = nil
	return args
}

// AccumulateReturn records a returned type in id.
func (a *Arena) AccumulateReturn(id ID, dataType string) {
	if s := a.Get(id); s != nil && dataType != "" {
		s.ReturnType = dataType
	}
}

// ClassOf returns the enclosing class name of id.
func (a *Arena) ClassOf(id ID) string {
	if s := a.Get(id); s != nil {
		return s.Class
	}
	return ""
}
