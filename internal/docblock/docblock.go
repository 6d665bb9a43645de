// Package docblock recognizes type annotations in doc comments: @typedef
// blocks, @var, the legacy @type {T} form, @param and @return with their
// !modifier tokens.
package docblock

import (
	"regexp"
	"strings"

	"github.com/DeusData/phplens/internal/phpast"
	"github.com/DeusData/phplens/internal/types"
)

// Tag classifies a decoration record.
type Tag string

const (
	TagDataType           Tag = "data_type"
	TagAnnotation         Tag = "annotation"
	TagAnnotationDataType Tag = "annotation_data_type"
	TagTypedefPropName    Tag = "typedef_prop_name"
	TagTypedefDataType    Tag = "typedef_data_type"
	TagParam              Tag = "param"
	TagModifier           Tag = "modifier"
	TagCurlyBrace         Tag = "curly_brace"
	TagError              Tag = "error"
)

// Decoration is one range-tagged record for the host editor.
type Decoration struct {
	Loc     phpast.Range `json:"loc"`
	Tag     Tag          `json:"tag"`
	Payload string       `json:"payload,omitempty"`
}

// TypeTag is the type and modifiers attached to a parameter or return value.
type TypeTag struct {
	DataType  string
	Modifiers []string
}

// Doc is everything recognized in one comment.
type Doc struct {
	Typedefs []*types.TypeDef
	// Var is the type from @var or @type. VarName is the optional
	// "$name" that followed it.
	Var     string
	VarName string
	Params  map[string]TypeTag
	Return  *TypeTag

	Decorations []Decoration
}

// Empty reports whether nothing was recognized.
func (d *Doc) Empty() bool {
	return len(d.Typedefs) == 0 && d.Var == "" && len(d.Params) == 0 && d.Return == nil
}

var (
	reTypedef  = regexp.MustCompile(`@typedef\s+(\w+)[^{]*\{`)
	reVar      = regexp.MustCompile(`@var\s+`)
	reLegacy   = regexp.MustCompile(`@type\s+\{(.*)\}`)
	reParam    = regexp.MustCompile(`@param\s+`)
	reReturn   = regexp.MustCompile(`@return\s+`)
	reVarName  = regexp.MustCompile(`^\s*(?:\.\.\.)?&?\$(\w+)`)
	reModifier = regexp.MustCompile(`!(\w+(?:\[\])*)`)
	reProp     = regexp.MustCompile(`^([\s*]*)([A-Za-z_][\w-]*)(\?)?\s*:\s*`)
)

// Parse scans comment text that starts at start. Lines matching no pattern
// are skipped.
func Parse(text string, start phpast.Position) *Doc {
	d := &Doc{Params: make(map[string]TypeTag)}
	lines := strings.Split(text, "\n")

	var current *types.TypeDef
	for i, raw := range lines {
		line := strings.TrimSuffix(raw, "\r")
		if i == len(lines)-1 {
			if idx := strings.LastIndex(line, "*/"); idx >= 0 {
				line = line[:idx]
			}
		}
		ln := lineCtx{d: d, line: line, lineNo: start.Line + i}
		if i == 0 {
			ln.left = start.Column
		}

		if m := reTypedef.FindStringSubmatchIndex(line); m != nil {
			if current != nil {
				d.Typedefs = append(d.Typedefs, current)
			}
			current = ln.typedefOpen(m)
			if current != nil && ln.closed {
				d.Typedefs = append(d.Typedefs, current)
				current = nil
			}
			continue
		}

		if current != nil {
			if ln.typedefLine(current) {
				d.Typedefs = append(d.Typedefs, current)
				current = nil
			}
			continue
		}

		switch {
		case reParam.MatchString(line):
			ln.param()
		case reReturn.MatchString(line):
			ln.ret()
		case reVar.MatchString(line):
			ln.variable()
		case reLegacy.MatchString(line):
			ln.legacy()
		}
	}
	if current != nil {
		d.Typedefs = append(d.Typedefs, current)
	}
	return d
}

type lineCtx struct {
	d      *Doc
	line   string
	lineNo int
	left   int
	closed bool
}

func (l *lineCtx) span(from, to int) phpast.Range {
	return phpast.Range{
		Start: phpast.Position{Line: l.lineNo, Column: l.left + from},
		End:   phpast.Position{Line: l.lineNo, Column: l.left + to},
	}
}

func (l *lineCtx) decorate(from, to int, tag Tag, payload string) {
	l.d.Decorations = append(l.d.Decorations, Decoration{Loc: l.span(from, to), Tag: tag, Payload: payload})
}

func (l *lineCtx) annotation(at int, word string) {
	l.decorate(at, at+len(word), TagAnnotation, word)
}

func (l *lineCtx) typedefOpen(m []int) *types.TypeDef {
	l.annotation(m[0], "@typedef")
	name := l.line[m[2]:m[3]]
	l.decorate(m[2], m[3], TagAnnotationDataType, name)
	brace := m[1] - 1
	l.decorate(brace, brace+1, TagCurlyBrace, "")

	td := types.NewTypeDef(name)
	rest := l.line[m[1]:]
	if strings.TrimSpace(strings.Trim(rest, "* ")) == "" {
		return td
	}
	// one-line form: @typedef Car {brand: string, color?: string}
	end := matchingBrace(rest)
	if end < 0 {
		l.typedefProp(td, m[1])
		return td
	}
	inline, err := types.ParseInline("{" + rest[:end+1])
	if err == nil {
		for _, key := range inline.PropNames() {
			td.Props[key] = inline.Props[key]
			if off := strings.Index(rest, key); off >= 0 {
				l.decorate(m[1]+off, m[1]+off+len(key), TagTypedefPropName, key)
			}
		}
	}
	l.decorate(m[1]+end, m[1]+end+1, TagCurlyBrace, "")
	l.closed = true
	return td
}

// typedefLine handles one line inside a typedef block and reports whether
// it closed the block.
func (l *lineCtx) typedefLine(td *types.TypeDef) bool {
	body := strings.TrimLeft(l.line, " \t*")
	if strings.HasPrefix(body, "}") {
		at := len(l.line) - len(body)
		l.decorate(at, at+1, TagCurlyBrace, "")
		return true
	}
	l.typedefProp(td, 0)
	return false
}

func (l *lineCtx) typedefProp(td *types.TypeDef, from int) {
	m := reProp.FindStringSubmatchIndex(l.line[from:])
	if m == nil {
		return
	}
	name := l.line[from+m[4] : from+m[5]]
	l.decorate(from+m[4], from+m[5], TagTypedefPropName, name)

	dt, tStart, tEnd := scanType(l.line, from+m[1])
	if dt == "" {
		return
	}
	l.decorate(tStart, tEnd, TagTypedefDataType, dt)
	spec := types.PropSpec{
		DataType:    dt,
		Optional:    m[6] >= 0,
		Description: strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(l.line[tEnd:]), ",")),
	}
	td.Props[name] = spec
}

func (l *lineCtx) variable() {
	m := reVar.FindStringIndex(l.line)
	l.annotation(m[0], "@var")
	dt, tStart, tEnd := scanType(l.line, m[1])
	if dt == "" {
		return
	}
	l.decorate(tStart, tEnd, TagAnnotationDataType, dt)
	l.d.Var = dt
	if vm := reVarName.FindStringSubmatchIndex(l.line[tEnd:]); vm != nil {
		l.d.VarName = l.line[tEnd+vm[2] : tEnd+vm[3]]
	}
}

func (l *lineCtx) legacy() {
	m := reLegacy.FindStringSubmatchIndex(l.line)
	l.annotation(m[0], "@type")
	dt := types.Normalize(l.line[m[2]:m[3]])
	if dt == "" {
		return
	}
	l.decorate(m[2]-1, m[3]+1, TagAnnotationDataType, dt)
	l.d.Var = dt
}

func (l *lineCtx) param() {
	m := reParam.FindStringIndex(l.line)
	l.annotation(m[0], "@param")
	dt, tStart, tEnd := scanType(l.line, m[1])
	if dt == "" {
		return
	}
	vm := reVarName.FindStringSubmatchIndex(l.line[tEnd:])
	if vm == nil {
		return
	}
	l.decorate(tStart, tEnd, TagAnnotationDataType, dt)
	name := l.line[tEnd+vm[2] : tEnd+vm[3]]
	l.decorate(tEnd+vm[2]-1, tEnd+vm[3], TagParam, name)
	mods := l.modifiers(tEnd + vm[1])
	l.d.Params[name] = TypeTag{DataType: dt, Modifiers: mods}
}

func (l *lineCtx) ret() {
	m := reReturn.FindStringIndex(l.line)
	l.annotation(m[0], "@return")
	dt, tStart, tEnd := scanType(l.line, m[1])
	if dt == "" {
		return
	}
	l.decorate(tStart, tEnd, TagAnnotationDataType, dt)
	l.d.Return = &TypeTag{DataType: dt, Modifiers: l.modifiers(tEnd)}
}

func (l *lineCtx) modifiers(from int) []string {
	var mods []string
	for _, m := range reModifier.FindAllStringSubmatchIndex(l.line[from:], -1) {
		mod := l.line[from+m[2] : from+m[3]]
		l.decorate(from+m[0], from+m[1], TagModifier, mod)
		mods = append(mods, mod)
	}
	return mods
}

// scanType reads one type expression starting at or after from. Bracketed
// literals may contain spaces; anything else ends at whitespace. It returns
// the normalized type and the byte span it occupied.
func scanType(line string, from int) (dt string, start, end int) {
	i := from
	for i < len(line) && (line[i] == ' ' || line[i] == '\t') {
		i++
	}
	start = i
	if i >= len(line) {
		return "", start, start
	}
	if line[i] == '{' || line[i] == '[' {
		n := matchingBrace(line[i:])
		if n < 0 {
			return "", start, start
		}
		i += n + 1
	} else {
		for i < len(line) && !isSpace(line[i]) && !strings.ContainsRune("$!,", rune(line[i])) {
			i++
		}
	}
	for strings.HasPrefix(line[i:], "[]") {
		i += 2
	}
	raw := line[start:i]
	if raw == "" {
		return "", start, start
	}
	return types.Normalize(raw), start, i
}

// matchingBrace returns the index of the bracket closing s[0], or -1.
// When s does not start with a bracket it finds the first unbalanced "}".
func matchingBrace(s string) int {
	depth := 1
	if s != "" && (s[0] == '{' || s[0] == '[') {
		depth = 0
	}
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

// HasModifier reports whether mods contains name, ignoring any bracket
// depth suffix.
func HasModifier(mods []string, name string) bool {
	_, ok := ModifierDepth(mods, name)
	return ok
}

// ModifierDepth returns the number of "[]" suffixes on the modifier called
// name, e.g. 2 for "SQL_selected[][]".
func ModifierDepth(mods []string, name string) (int, bool) {
	for _, m := range mods {
		base := strings.TrimRight(m, "[]")
		if base != name {
			continue
		}
		return strings.Count(m[len(base):], "[]"), true
	}
	return 0, false
}
