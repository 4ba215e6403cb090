package dom

import (
	"bytes"
	"io"

	"golang.org/x/net/html"
)

// Render serialises doc. Accessible frame documents are embedded into their
// iframe's srcdoc so the client sees the in-memory (possibly masked) frame
// content instead of refetching it. The tree is left as it was found.
func Render(w io.Writer, doc *Document) error {
	restore, err := embedFrames(doc, map[*Document]bool{doc: true})
	defer restore()
	if err != nil {
		return err
	}
	return html.Render(w, doc.Root)
}

// RenderString renders doc to a string.
func RenderString(doc *Document) (string, error) {
	var buf bytes.Buffer
	if err := Render(&buf, doc); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func embedFrames(doc *Document, seen map[*Document]bool) (func(), error) {
	var undo []func()
	restore := func() {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
	}

	for iframe, f := range doc.frames {
		if f.err != nil || f.doc == nil || seen[f.doc] {
			continue
		}
		seen[f.doc] = true

		childRestore, err := embedFrames(f.doc, seen)
		undo = append(undo, childRestore)
		if err != nil {
			return restore, err
		}

		var buf bytes.Buffer
		if err := html.Render(&buf, f.doc.Root); err != nil {
			return restore, err
		}

		saved := make([]html.Attribute, len(iframe.Attr))
		copy(saved, iframe.Attr)
		node := iframe
		undo = append(undo, func() { node.Attr = saved })

		SetAttr(iframe, "srcdoc", buf.String())
		if !f.inline {
			RemoveAttr(iframe, "src")
		}
	}

	return restore, nil
}
