package masking

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/raaihank/consolemask/internal/dom"
	"github.com/raaihank/consolemask/internal/privacy"
)

// Attributes identifying the nodes masking adds to a document.
const (
	MarkerAttr  = "data-consolemask-mask"
	WrapperAttr = "data-consolemask-wrapper"
	StyleAttr   = "data-consolemask-style"
)

// Result summarises one Mask call.
type Result struct {
	Nodes     int            `json:"nodes"`
	Markers   int            `json:"markers"`
	ByPattern map[string]int `json:"by_pattern,omitempty"`
}

// newMaskElement builds a wrapper or marker that the HTML parser keeps in
// place under parent: a span in HTML content, a tspan inside SVG. Inside
// MathML the wrapper is an mrow, since a marker nested in an mtext would be
// parsed as HTML.
func newMaskElement(parent *html.Node, attr string) *html.Node {
	a := html.Attribute{Key: attr, Val: "true"}
	switch {
	case parent.Namespace == "svg" && !htmlIntegrationPoint(parent):
		return dom.NewForeignElement("svg", "tspan", a)
	case parent.Namespace == "math" && !htmlIntegrationPoint(parent):
		if attr == WrapperAttr {
			return dom.NewForeignElement("math", "mrow", a)
		}
		return dom.NewForeignElement("math", "mtext", a)
	default:
		return dom.NewElement(atom.Span, a)
	}
}

// htmlIntegrationPoint reports whether HTML start tags under the foreign
// element n are parsed as HTML elements.
func htmlIntegrationPoint(n *html.Node) bool {
	switch n.Namespace {
	case "svg":
		return strings.EqualFold(n.Data, "foreignObject") || n.Data == "desc" || n.Data == "title"
	case "math":
		switch n.Data {
		case "mi", "mo", "mn", "ms", "mtext":
			return true
		case "annotation-xml":
			enc, _ := dom.Attr(n, "encoding")
			return strings.EqualFold(enc, "text/html") || strings.EqualFold(enc, "application/xhtml+xml")
		}
	}
	return false
}

// Mask replaces every sensitive run of text under root with a marker element.
//
// Text nodes without a match are left untouched. A node with matches is
// replaced, in one substitution, by a wrapper holding the unmatched runs
// as text and one marker per match. Nodes are built directly; page text
// never goes through the HTML parser. Mask is only idempotent when preceded by
// Unmask.
func Mask(root *html.Node, patterns []privacy.Pattern) Result {
	res := Result{ByPattern: make(map[string]int)}
	if root == nil || len(patterns) == 0 {
		return res
	}

	for _, text := range textNodes(root) {
		if text.Parent == nil {
			continue
		}

		content := text.Data
		spans, winner := privacy.ResolveWithID(content, patterns)
		if len(spans) == 0 {
			continue
		}

		wrapper := newMaskElement(text.Parent, WrapperAttr)
		last := 0
		for _, span := range spans {
			if last < span.Start {
				wrapper.AppendChild(dom.NewText(content[last:span.Start]))
			}
			marker := newMaskElement(text.Parent, MarkerAttr)
			marker.AppendChild(dom.NewText(content[span.Start:span.End]))
			wrapper.AppendChild(marker)
			last = span.End
		}
		if last < len(content) {
			wrapper.AppendChild(dom.NewText(content[last:]))
		}

		if !dom.Replace(text, wrapper) {
			continue
		}

		res.Nodes++
		res.Markers += len(spans)
		res.ByPattern[winner] += len(spans)
	}

	if res.Markers > 0 {
		injectStyle(root)
	}
	return res
}
