package masking

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/raaihank/consolemask/internal/dom"
)

// ErrMarkersLost means serialised output parses back with fewer markers than
// the in-memory document held, e.g. text inside <option> that cannot carry an
// element.
var ErrMarkersLost = errors.New("markers lost in rendered output")

// CountMarkers counts the markers in doc and every frame WalkFrames reaches
// within maxDepth.
func CountMarkers(doc *dom.Document, maxDepth int) int {
	total := 0
	dom.WalkFrames(doc, maxDepth, func(v dom.Visit) {
		total += len(dom.FindAll(v.Doc.Root, isMarker))
	})
	return total
}

// VerifyRendered parses rendered markup again, following srcdoc frames up to
// maxDepth levels, and returns ErrMarkersLost when fewer than want markers
// survive.
func VerifyRendered(rendered []byte, want, maxDepth int) error {
	got, err := renderedMarkers(string(rendered), maxDepth)
	if err != nil {
		return fmt.Errorf("reparse rendered output: %w", err)
	}
	if got < want {
		return fmt.Errorf("%w: %d of %d", ErrMarkersLost, got, want)
	}
	return nil
}

func renderedMarkers(markup string, depth int) (int, error) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return 0, err
	}

	count := len(dom.FindAll(root, isMarker))
	if depth <= 0 {
		return count, nil
	}

	iframes := dom.FindAll(root, func(n *html.Node) bool { return dom.IsElement(n, atom.Iframe) })
	for _, iframe := range iframes {
		srcdoc, ok := dom.Attr(iframe, "srcdoc")
		if !ok {
			continue
		}
		n, err := renderedMarkers(srcdoc, depth-1)
		if err != nil {
			return 0, err
		}
		count += n
	}
	return count, nil
}
