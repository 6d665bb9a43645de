// Package crawler is the type propagation engine. It walks a phpast.File
// once, assigning inferred types to nodes through a side table, and emits
// decorations, diagnostics and the file's metadata contribution.
package crawler

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/DeusData/phplens/internal/docblock"
	"github.com/DeusData/phplens/internal/phpast"
	"github.com/DeusData/phplens/internal/scope"
	"github.com/DeusData/phplens/internal/types"
)

// Mode selects what a crawl is for.
type Mode uint8

const (
	// ModeMetadata ignores the viewport; used for indexing.
	ModeMetadata Mode = iota
	// ModeDecorate may be restricted to the viewport; used for live editing.
	ModeDecorate
)

func (m Mode) String() string {
	if m == ModeDecorate {
		return "decorate"
	}
	return "metadata"
}

// Resolver answers cross-file lookups. *registry.Registry implements it.
type Resolver interface {
	LookupType(name string) (*types.TypeDef, bool)
	LookupFunction(name string) (*types.FunctionSignature, bool)
	LookupMethod(class, name string, static bool) (*types.FunctionSignature, bool)
	LookupClassProp(class, prop string) (types.PropSpec, bool)
	EntityNames() []string
}

// Options configures one crawl.
type Options struct {
	Mode Mode
	// Viewport is the visible line span. It only prunes the traversal when
	// Restrict is also set and Mode is ModeDecorate.
	Viewport *phpast.LineRange
	Restrict bool
	// Cursor, when set, collects completion candidates for nodes under it.
	Cursor *phpast.Position
	Types  Resolver
}

// Decoration is a range-tagged record for the host.
type Decoration = docblock.Decoration

// Severity of a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic codes.
const (
	CodeTypeMismatch = "type_mismatch"
	CodeUnknownKey   = "unknown_key"
	CodeMissingKeys  = "missing_keys"
)

// Diagnostic is a structural problem found during inference.
type Diagnostic struct {
	Message  string       `json:"message"`
	Severity Severity     `json:"severity"`
	Loc      phpast.Range `json:"loc"`
	Code     string       `json:"code"`
}

// Attrs are the inferred attributes of one node.
type Attrs struct {
	DataType       string
	BaseType       string
	AdditionalType string
	Data           *types.TypeDef
	Modifiers      []string
	Hoverable      bool
	PossibleProps  map[string]types.PropSpec
	PendingArgs    []string
	Scope          scope.ID
	Depth          int
}

// CursorNode is a node under the cursor that offers completions.
type CursorNode struct {
	ID            phpast.NodeID             `json:"id"`
	Kind          string                    `json:"kind"`
	Loc           phpast.Range              `json:"loc"`
	DataType      string                    `json:"data_type,omitempty"`
	PossibleProps map[string]types.PropSpec `json:"possible_props"`
}

// Result is everything one crawl produced.
type Result struct {
	Decorations []Decoration
	Diagnostics []Diagnostic
	Metadata    *types.FileMetadata
	CursorNodes []CursorNode
	// Visited lists the ids of the nodes the traversal entered, in order.
	Visited []phpast.NodeID
	// Attrs is indexed by phpast.NodeID.
	Attrs []Attrs
}

// Crawl runs one traversal over file. A panic anywhere in the traversal is
// recovered here and reported as an error with no result.
func Crawl(file *phpast.File, opts Options) (res *Result, err error) {
	if file == nil || file.Root == nil {
		return nil, fmt.Errorf("crawl: no syntax tree")
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("crawl.panic", "path", file.Path, "panic", r, "stack", string(debug.Stack()))
			res, err = nil, fmt.Errorf("crawl %s: %v", file.Path, r)
		}
	}()

	c := newCrawler(file, opts)
	c.comments()
	prog := c.arena.New(scope.KindProgram, scope.None, "")
	c.visit(file.Root, prog, 0)
	return c.res, nil
}

type crawler struct {
	file     *phpast.File
	opts     Options
	types    Resolver
	restrict bool

	arena  *scope.Arena
	attrs  []Attrs
	meta   *types.FileMetadata
	docs   map[*phpast.Comment]*docblock.Doc
	inline map[string]*types.TypeDef
	res    *Result
}

func newCrawler(file *phpast.File, opts Options) *crawler {
	r := opts.Types
	if r == nil {
		r = nopResolver{}
	}
	attrs := make([]Attrs, file.Len())
	meta := types.NewFileMetadata()
	return &crawler{
		file:     file,
		opts:     opts,
		types:    r,
		restrict: opts.Mode == ModeDecorate && opts.Restrict && opts.Viewport != nil,
		arena:    scope.NewArena(),
		attrs:    attrs,
		meta:     meta,
		docs:     make(map[*phpast.Comment]*docblock.Doc),
		inline:   make(map[string]*types.TypeDef),
		res:      &Result{Metadata: meta, Attrs: attrs},
	}
}

func (c *crawler) inWindow(loc phpast.Range) bool {
	return !c.restrict || phpast.InWindow(loc, *c.opts.Viewport)
}

// doc parses a comment once per crawl.
func (c *crawler) doc(cm *phpast.Comment) *docblock.Doc {
	if d, ok := c.docs[cm]; ok {
		return d
	}
	d := docblock.Parse(cm.Text, cm.Loc.Start)
	c.docs[cm] = d
	return d
}

// leadingDoc returns the parsed doc of the comment closest before n.
func (c *crawler) leadingDoc(n phpast.Node) *docblock.Doc {
	leading := n.Base().Leading
	if len(leading) == 0 {
		return nil
	}
	d := c.doc(leading[len(leading)-1])
	if d.Empty() {
		return nil
	}
	return d
}

// comments registers every typedef in the file and emits the annotation
// decorations of comments inside the window.
func (c *crawler) comments() {
	for _, cm := range c.file.Comments {
		d := c.doc(cm)
		for _, td := range d.Typedefs {
			c.meta.AddTypedef(td)
		}
		if !c.inWindow(cm.Loc) {
			continue
		}
		c.res.Decorations = append(c.res.Decorations, d.Decorations...)
	}
}

func (c *crawler) attr(n phpast.Node) *Attrs {
	return &c.attrs[n.Base().ID]
}

func (c *crawler) typeOf(n phpast.Node) string {
	if n == nil {
		return ""
	}
	return c.attrs[n.Base().ID].DataType
}

// setType assigns dt to n. Empty types never overwrite.
func (c *crawler) setType(n phpast.Node, dt string) {
	if n == nil || dt == "" {
		return
	}
	a := c.attr(n)
	a.DataType = dt
	a.BaseType, a.AdditionalType = types.SplitEntity(dt)
	a.Data = c.resolve(dt)
}

// resolve returns the structural shape of dt. Inline literals are parsed,
// names go through the file's own typedefs merged over the registry, and
// arrays have no shape of their own.
func (c *crawler) resolve(dt string) *types.TypeDef {
	if types.IsMixed(dt) {
		return nil
	}
	if _, ok := types.StripArray(dt); ok {
		return nil
	}
	if types.IsInline(dt) {
		if td, ok := c.inline[dt]; ok {
			return td
		}
		td, err := types.ParseInline(dt)
		if err != nil {
			td = nil
		}
		c.inline[dt] = td
		return td
	}
	remote, _ := c.types.LookupType(dt)
	return types.Overlay(remote, c.meta.Typedefs[dt])
}

func (c *crawler) lookupFunction(name string) *types.FunctionSignature {
	if sig, ok := c.meta.Scopes.Global.Functions[name]; ok {
		return sig
	}
	if sig, ok := c.types.LookupFunction(name); ok {
		return sig
	}
	return nil
}

func (c *crawler) lookupMethod(class, name string, static bool) *types.FunctionSignature {
	if class == "" || name == "" {
		return nil
	}
	if cs, ok := c.meta.Scopes.Classes[class]; ok {
		table := cs.Methods
		if static {
			table = cs.StaticFunctions
		}
		if sig, ok := table[name]; ok {
			return sig
		}
	}
	if sig, ok := c.types.LookupMethod(class, name, static); ok {
		return sig
	}
	return nil
}

func (c *crawler) lookupClassProp(class, prop string) (types.PropSpec, bool) {
	if cs, ok := c.meta.Scopes.Classes[class]; ok {
		if p, ok := cs.Props[prop]; ok {
			return p, true
		}
	}
	return c.types.LookupClassProp(class, prop)
}

// entityNames returns the known entity tokens, file-local ones included.
func (c *crawler) entityNames() map[string]types.PropSpec {
	out := make(map[string]types.PropSpec)
	for _, name := range c.types.EntityNames() {
		out[name] = types.PropSpec{DataType: types.EntityType(name)}
	}
	for name := range c.meta.Typedefs {
		if tok := types.EntityToken(name); tok != "" {
			out[tok] = types.PropSpec{DataType: name}
		}
	}
	return out
}

type nopResolver struct{}

func (nopResolver) LookupType(string) (*types.TypeDef, bool)               { return nil, false }
func (nopResolver) LookupFunction(string) (*types.FunctionSignature, bool) { return nil, false }
func (nopResolver) LookupMethod(string, string, bool) (*types.FunctionSignature, bool) {
	return nil, false
}
func (nopResolver) LookupClassProp(string, string) (types.PropSpec, bool) {
	return types.PropSpec{}, false
}
func (nopResolver) EntityNames() []string { return nil }
