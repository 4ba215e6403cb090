package masking

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/raaihank/consolemask/internal/dom"
)

// Elements whose text children are never rendered as page text, or cannot
// hold element children once serialised.
var skipParents = map[atom.Atom]bool{
	atom.Script:    true,
	atom.Style:     true,
	atom.Textarea:  true,
	atom.Title:     true,
	atom.Iframe:    true,
	atom.Noscript:  true,
	atom.Noembed:   true,
	atom.Noframes:  true,
	atom.Xmp:       true,
	atom.Plaintext: true,
}

// textNodes returns the maskable text nodes under root in document order:
// not whitespace-only, attached to a parent that renders text, and not already
// inside a marker.
func textNodes(root *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(n *html.Node, inMarker bool)
	walk = func(n *html.Node, inMarker bool) {
		if n.Type == html.TextNode {
			if acceptText(n, inMarker) {
				out = append(out, n)
			}
			return
		}
		if dom.HasAttr(n, MarkerAttr) {
			inMarker = true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inMarker)
		}
	}
	walk(root, insideMarker(root))
	return out
}

func acceptText(n *html.Node, inMarker bool) bool {
	if inMarker || strings.TrimSpace(n.Data) == "" {
		return false
	}
	parent := n.Parent
	if parent == nil || parent.Type != html.ElementNode {
		return false
	}
	// SVG has its own script and style elements.
	if parent.Data == "script" || parent.Data == "style" {
		return false
	}
	return parent.Namespace != "" || !skipParents[parent.DataAtom]
}

// insideMarker reports whether n has a marker ancestor.
func insideMarker(n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if dom.HasAttr(p, MarkerAttr) {
			return true
		}
	}
	return false
}
