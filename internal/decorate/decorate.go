// Package decorate turns crawl results into what an editor shows: hover
// markdown, completion entries, grouped decorations and diagnostic lines.
package decorate

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/DeusData/phplens/internal/crawler"
	"github.com/DeusData/phplens/internal/docblock"
	"github.com/DeusData/phplens/internal/phpast"
	"github.com/DeusData/phplens/internal/types"
)

// TypeLookup resolves named types for hover rendering.
type TypeLookup interface {
	LookupType(name string) (*types.TypeDef, bool)
}

// Hover is the markdown shown for a source range.
type Hover struct {
	Loc      phpast.Range `json:"loc"`
	Markdown string       `json:"markdown"`
}

// Group buckets decorations by tag, preserving order within a bucket.
func Group(decs []crawler.Decoration) map[docblock.Tag][]crawler.Decoration {
	out := make(map[docblock.Tag][]crawler.Decoration)
	for _, d := range decs {
		out[d.Tag] = append(out[d.Tag], d)
	}
	return out
}

// resolve finds the shape of dt: the file's own typedef layered over the
// registry's, the same view inference uses.
func resolve(dt string, meta *types.FileMetadata, lookup TypeLookup) *types.TypeDef {
	if types.IsInline(dt) {
		td, err := types.ParseInline(dt)
		if err != nil {
			return nil
		}
		return td
	}
	var local, remote *types.TypeDef
	if meta != nil {
		local = meta.Typedefs[dt]
	}
	if lookup != nil {
		remote, _ = lookup.LookupType(dt)
	}
	return types.Overlay(remote, local)
}

// TypeMarkdown renders a type and, when its shape is known, its props.
func TypeMarkdown(dt string, td *types.TypeDef) string {
	var b strings.Builder
	display := dt
	if types.IsInline(dt) {
		display = "custom"
	}
	fmt.Fprintf(&b, "**Type:**\n\n%s\n\n", display)
	if td == nil || len(td.Props) == 0 {
		return b.String()
	}
	lines := make([]string, 0, len(td.Props))
	for _, name := range td.PropNames() {
		p := td.Props[name]
		opt := ""
		if p.Optional {
			opt = "?"
		}
		line := fmt.Sprintf(" • %s%s: %s", name, opt, p.DataType)
		if p.Description != "" {
			line += " - " + p.Description
		}
		lines = append(lines, line)
	}
	b.WriteString(strings.Join(lines, "\n\n"))
	b.WriteString("\n\n")
	return b.String()
}

// Markdown renders one decoration. Curly braces have no hover.
func Markdown(d crawler.Decoration, meta *types.FileMetadata, lookup TypeLookup) string {
	switch d.Tag {
	case docblock.TagDataType:
		return TypeMarkdown(d.Payload, resolve(d.Payload, meta, lookup))
	case docblock.TagAnnotation:
		return "**Annotation:**\n\n" + d.Payload + "\n\n"
	case docblock.TagAnnotationDataType:
		return "**Annotation data type:**\n\n" + d.Payload + "\n\n"
	case docblock.TagTypedefPropName:
		return "**Annotation property name:**\n\n" + d.Payload + "\n\n"
	case docblock.TagTypedefDataType:
		return "**Typedef data type:**\n\n" + d.Payload + "\n\n"
	case docblock.TagParam:
		return "**Parameter:**\n\n$" + d.Payload + "\n\n"
	case docblock.TagModifier:
		return "**Modifier:**\n\n!" + d.Payload + "\n\n"
	case docblock.TagError:
		return "**Error:**\n\n" + d.Payload + "\n\n"
	}
	return ""
}

func span(r phpast.Range) int {
	return (r.End.Line-r.Start.Line)*1_000_000 + r.End.Column - r.Start.Column
}

// HoverAt returns the hover for pos: any errors covering it, followed by the
// innermost other decoration.
func HoverAt(res *crawler.Result, pos phpast.Position, lookup TypeLookup) (Hover, bool) {
	if res == nil {
		return Hover{}, false
	}
	var (
		errs  []crawler.Decoration
		inner *crawler.Decoration
	)
	for i := range res.Decorations {
		d := &res.Decorations[i]
		if !d.Loc.Contains(pos) || d.Tag == docblock.TagCurlyBrace {
			continue
		}
		if d.Tag == docblock.TagError {
			errs = append(errs, *d)
			continue
		}
		if inner == nil || span(d.Loc) < span(inner.Loc) {
			inner = d
		}
	}
	if inner == nil && len(errs) == 0 {
		return Hover{}, false
	}

	var (
		parts []string
		loc   phpast.Range
	)
	for _, e := range errs {
		parts = append(parts, Markdown(e, res.Metadata, lookup))
		loc = e.Loc
	}
	if inner != nil {
		parts = append(parts, Markdown(*inner, res.Metadata, lookup))
		loc = inner.Loc
	}
	return Hover{Loc: loc, Markdown: strings.Join(parts, "---\n\n")}, true
}

// Suggestion is one completion entry.
type Suggestion struct {
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
}

// Suggest returns the candidates of the innermost cursor node on pos's line
// whose column span covers pos.
func Suggest(nodes []crawler.CursorNode, pos phpast.Position) []Suggestion {
	var best *crawler.CursorNode
	for i := range nodes {
		n := &nodes[i]
		if n.Loc.Start.Line != pos.Line || pos.Column < n.Loc.Start.Column {
			continue
		}
		if n.Loc.End.Line == n.Loc.Start.Line && pos.Column > n.Loc.End.Column {
			continue
		}
		if best == nil || span(n.Loc) < span(best.Loc) {
			best = n
		}
	}
	if best == nil {
		return nil
	}
	out := make([]Suggestion, 0, len(best.PossibleProps))
	for name, p := range best.PossibleProps {
		out = append(out, Suggestion{Name: name, Type: p.DataType, Description: p.Description})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// PageLink is the "<?php // Title [/path]" header of a page file.
type PageLink struct {
	Title string       `json:"title"`
	URL   string       `json:"url"`
	Loc   phpast.Range `json:"loc"`
}

var rePageLink = regexp.MustCompile(`^<\?php //(.*?)\[(.*?)\]`)

// FindPageLink parses the first line of a file. Without a base URL there is
// nothing to link to.
func FindPageLink(firstLine, baseURL string) (PageLink, bool) {
	if baseURL == "" {
		return PageLink{}, false
	}
	m := rePageLink.FindStringSubmatchIndex(firstLine)
	if m == nil {
		return PageLink{}, false
	}
	path := strings.ReplaceAll(firstLine[m[4]:m[5]], "{ADMIN}", "/admin/")
	url := strings.TrimSuffix(baseURL, "/") + path
	return PageLink{
		Title: strings.TrimSpace(firstLine[m[2]:m[3]]),
		URL:   url,
		Loc: phpast.Range{
			Start: phpast.Position{Line: 1, Column: m[2]},
			End:   phpast.Position{Line: 1, Column: m[1]},
		},
	}, true
}

// Markdown renders the link hover.
func (p PageLink) Markdown() string {
	return fmt.Sprintf("**Open in a browser:**\n\n[%s](%s)\n\n", p.URL, p.URL)
}

// SortDiagnostics orders diagnostics by position.
func SortDiagnostics(diags []crawler.Diagnostic) {
	sort.SliceStable(diags, func(i, j int) bool {
		return diags[i].Loc.Start.Before(diags[j].Loc.Start)
	})
}

// FormatDiagnostic renders d as "path:line:col: severity: message".
func FormatDiagnostic(path string, d crawler.Diagnostic) string {
	return fmt.Sprintf("%s:%d:%d: %s: %s", path, d.Loc.Start.Line, d.Loc.Start.Column+1, d.Severity, d.Message)
}
