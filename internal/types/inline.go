package types

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

const arraySuffix = "[]"

// StripArray removes one trailing "[]" from dt. The boolean reports whether
// dt was an array type at all.
func StripArray(dt string) (string, bool) {
	if strings.HasSuffix(dt, arraySuffix) && len(dt) > len(arraySuffix) {
		return dt[:len(dt)-len(arraySuffix)], true
	}
	return "", false
}

// ArrayOf wraps dt in depth array levels.
func ArrayOf(dt string, depth int) string {
	if depth <= 0 {
		return dt
	}
	return dt + strings.Repeat(arraySuffix, depth)
}

// IsInline reports whether dt is a bracket-delimited structural literal.
// Array types are not inline even when their element is.
func IsInline(dt string) bool {
	if _, ok := StripArray(dt); ok {
		return false
	}
	dt = strings.TrimSpace(dt)
	return strings.HasPrefix(dt, "{") && strings.HasSuffix(dt, "}")
}

// IsMixed reports whether dt carries no usable type information.
func IsMixed(dt string) bool {
	return dt == "" || dt == Mixed
}

// Normalize rewrites the "[T]" shorthand into "T[]" and canonicalizes inline
// literals. Anything else is returned trimmed.
func Normalize(dt string) string {
	dt = strings.TrimSpace(dt)
	if dt == "" {
		return dt
	}
	if dt[0] != '{' && dt[0] != '[' {
		return dt
	}
	p := &inlineParser{src: dt}
	t, err := p.parseType()
	if err != nil {
		return dt
	}
	p.skipSpace()
	if !p.done() {
		return dt
	}
	return t
}

// ParseInline parses a "{key[?]: Type, ...}" literal into a TypeDef named by
// its canonical rendering.
func ParseInline(dt string) (*TypeDef, error) {
	p := &inlineParser{src: strings.TrimSpace(dt)}
	props, err := p.parseObject()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if !p.done() {
		return nil, fmt.Errorf("inline type %q: trailing input at %d", dt, p.pos)
	}
	return &TypeDef{Name: FormatInline(props), Props: props}, nil
}

// FormatInline renders props canonically: keys sorted, optional keys marked.
func FormatInline(props map[string]PropSpec) string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		p := props[k]
		if p.Optional {
			b.WriteByte('?')
		}
		b.WriteString(": ")
		if p.DataType == "" {
			b.WriteString(Mixed)
		} else {
			b.WriteString(p.DataType)
		}
	}
	b.WriteByte('}')
	return b.String()
}

type inlineParser struct {
	src string
	pos int
}

func (p *inlineParser) done() bool { return p.pos >= len(p.src) }

func (p *inlineParser) peek() byte {
	if p.done() {
		return 0
	}
	return p.src[p.pos]
}

func (p *inlineParser) skipSpace() {
	for !p.done() && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *inlineParser) expect(c byte) error {
	p.skipSpace()
	if p.peek() != c {
		return fmt.Errorf("inline type %q: expected %q at %d", p.src, c, p.pos)
	}
	p.pos++
	return nil
}

func (p *inlineParser) parseObject() (map[string]PropSpec, error) {
	if err := p.expect('{'); err != nil {
		return nil, err
	}
	props := make(map[string]PropSpec)
	for {
		p.skipSpace()
		if p.peek() == '}' {
			p.pos++
			return props, nil
		}
		key, err := p.parseKey()
		if err != nil {
			return nil, err
		}
		spec := PropSpec{}
		if p.peek() == '?' {
			spec.Optional = true
			p.pos++
		}
		if err := p.expect(':'); err != nil {
			return nil, err
		}
		if spec.DataType, err = p.parseType(); err != nil {
			return nil, err
		}
		props[key] = spec

		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case '}':
		default:
			return nil, fmt.Errorf("inline type %q: expected ',' or '}' at %d", p.src, p.pos)
		}
	}
}

func (p *inlineParser) parseKey() (string, error) {
	p.skipSpace()
	if q := p.peek(); q == '"' || q == '\'' {
		end := strings.IndexByte(p.src[p.pos+1:], q)
		if end < 0 {
			return "", fmt.Errorf("inline type %q: unterminated key", p.src)
		}
		key := p.src[p.pos+1 : p.pos+1+end]
		p.pos += end + 2
		return key, nil
	}
	start := p.pos
	for !p.done() && isNameByte(p.src[p.pos]) {
		p.pos++
	}
	if start == p.pos {
		return "", fmt.Errorf("inline type %q: expected key at %d", p.src, p.pos)
	}
	return p.src[start:p.pos], nil
}

// parseType returns the canonical text of one type expression.
func (p *inlineParser) parseType() (string, error) {
	p.skipSpace()
	var t string
	switch p.peek() {
	case '{':
		props, err := p.parseObject()
		if err != nil {
			return "", err
		}
		t = FormatInline(props)
	case '[':
		p.pos++
		inner, err := p.parseType()
		if err != nil {
			return "", err
		}
		if err := p.expect(']'); err != nil {
			return "", err
		}
		t = inner + arraySuffix
	default:
		start := p.pos
		for !p.done() && isTypeNameByte(p.src[p.pos]) {
			p.pos++
		}
		if start == p.pos {
			return "", fmt.Errorf("inline type %q: expected type at %d", p.src, p.pos)
		}
		t = p.src[start:p.pos]
	}
	for strings.HasPrefix(p.src[p.pos:], arraySuffix) {
		t += arraySuffix
		p.pos += len(arraySuffix)
	}
	return t, nil
}

func isNameByte(c byte) bool {
	return c == '_' || c == '-' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}

func isTypeNameByte(c byte) bool {
	return isNameByte(c) || c == '\\' || c == '|' || c == '?'
}
