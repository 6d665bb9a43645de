package crawler

import (
	"fmt"

	"github.com/hbollon/go-edlib"

	"github.com/DeusData/phplens/internal/docblock"
	"github.com/DeusData/phplens/internal/phpast"
	"github.com/DeusData/phplens/internal/types"
)

// suggestThreshold is the minimum Jaro-Winkler similarity for a
// "did you mean" hint.
const suggestThreshold = 0.8

func (c *crawler) diagnose(loc phpast.Range, sev Severity, code, msg string) {
	c.res.Diagnostics = append(c.res.Diagnostics, Diagnostic{
		Message:  msg,
		Severity: sev,
		Loc:      loc,
		Code:     code,
	})
	c.res.Decorations = append(c.res.Decorations, Decoration{
		Loc:     loc,
		Tag:     docblock.TagError,
		Payload: msg,
	})
}

func (c *crawler) unknownKey(key *phpast.String, td *types.TypeDef) {
	msg := fmt.Sprintf("Unknown key %q for type %s", key.Value, td.Name)
	if best := closest(key.Value, td.PropNames()); best != "" {
		msg += fmt.Sprintf(" (did you mean %q?)", best)
	}
	c.diagnose(key.Loc, SeverityError, CodeUnknownKey, msg)
}

// closest returns the candidate most similar to s, or "" when none is
// similar enough.
func closest(s string, candidates []string) string {
	var (
		best  string
		score float32
	)
	for _, cand := range candidates {
		sim, err := edlib.StringsSimilarity(s, cand, edlib.JaroWinkler)
		if err != nil {
			continue
		}
		if sim > score {
			best, score = cand, sim
		}
	}
	if score < suggestThreshold {
		return ""
	}
	return best
}

// underCursor reports whether the cursor sits on the first line of loc
// within its column span.
func (c *crawler) underCursor(loc phpast.Range) bool {
	cur := c.opts.Cursor
	if cur == nil || cur.Line != loc.Start.Line {
		return false
	}
	if cur.Column < loc.Start.Column {
		return false
	}
	return loc.End.Line > loc.Start.Line || cur.Column <= loc.End.Column
}

// offer records props as completion candidates for n when the cursor is on
// it.
func (c *crawler) offer(n phpast.Node, props map[string]types.PropSpec) {
	if n == nil || len(props) == 0 {
		return
	}
	b := n.Base()
	if !c.underCursor(b.Loc) {
		return
	}
	a := c.attr(n)
	a.PossibleProps = props
	c.res.CursorNodes = append(c.res.CursorNodes, CursorNode{
		ID:            b.ID,
		Kind:          phpast.KindName(n),
		Loc:           b.Loc,
		DataType:      a.DataType,
		PossibleProps: props,
	})
}

// emit records the data_type decoration of a typed hoverable node.
func (c *crawler) emit(n phpast.Node) {
	a := c.attr(n)
	if !a.Hoverable || a.DataType == "" {
		return
	}
	loc := n.Base().Loc
	switch n := n.(type) {
	case *phpast.Call:
		if n.NameLoc != (phpast.Range{}) {
			loc = n.NameLoc
		}
	case *phpast.New:
		if n.ClassLoc != (phpast.Range{}) {
			loc = n.ClassLoc
		}
	case *phpast.PropertyLookup:
		if n.Prop != nil {
			loc = n.Prop.Loc
		}
	}
	c.res.Decorations = append(c.res.Decorations, Decoration{
		Loc:     loc,
		Tag:     docblock.TagDataType,
		Payload: a.DataType,
	})
}
