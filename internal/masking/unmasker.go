package masking

import (
	"golang.org/x/net/html"

	"github.com/raaihank/consolemask/internal/dom"
)

// Unmask restores every marker under root to plain text and returns how many
// markers it removed. A wrapper left without markers collapses back into the
// single text node it replaced, walking up through nested wrappers. The
// injected style goes once the owning document has no markers left. Calling
// Unmask on a tree without markers changes nothing.
func Unmask(root *html.Node) int {
	if root == nil {
		return 0
	}

	removed := 0
	for _, marker := range dom.FindAll(root, isMarker) {
		parent := marker.Parent
		if parent == nil {
			continue
		}
		if !dom.Replace(marker, dom.NewText(dom.TextContent(marker))) {
			continue
		}
		removed++
		collapseWrappers(parent)
	}

	// Wrappers whose markers were dropped by something else.
	for _, wrapper := range dom.FindAll(root, isWrapper) {
		collapseWrappers(wrapper)
	}

	if len(dom.FindAll(dom.Top(root), isMarker)) == 0 {
		removeStyle(root)
	}
	return removed
}

// collapseWrappers replaces n, and then each enclosing wrapper, with a text
// node carrying its text for as long as the wrapper holds no marker.
func collapseWrappers(n *html.Node) {
	for n != nil && isWrapper(n) && n.Parent != nil {
		if len(dom.FindAll(n, isMarker)) > 0 {
			return
		}
		parent := n.Parent
		dom.Replace(n, dom.NewText(dom.TextContent(n)))
		n = parent
	}
}

func isMarker(n *html.Node) bool {
	return n.Type == html.ElementNode && dom.HasAttr(n, MarkerAttr)
}

func isWrapper(n *html.Node) bool {
	return n.Type == html.ElementNode && dom.HasAttr(n, WrapperAttr)
}
