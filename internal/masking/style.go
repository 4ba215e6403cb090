package masking

import (
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/raaihank/consolemask/internal/dom"
)

// maskCSS paints an opaque block over every marker.
const maskCSS = `
[` + MarkerAttr + `] {
  position: relative;
}
[` + MarkerAttr + `]::after {
  content: "";
  position: absolute;
  top: 0;
  left: 0;
  width: 100%;
  height: 100%;
  background-color: #000;
  opacity: 1.0;
  z-index: 9999;
  pointer-events: none;
  border-radius: 2px;
}
tspan[` + MarkerAttr + `] {
  fill: transparent;
  stroke: none;
}
`

// injectStyle adds the marker style to the document owning n unless it is
// already there.
func injectStyle(n *html.Node) {
	top := dom.Top(n)
	if findStyle(top) != nil {
		return
	}

	style := dom.NewElement(atom.Style, html.Attribute{Key: StyleAttr, Val: "true"})
	style.AppendChild(dom.NewText(maskCSS))

	if head := dom.FindFirst(top, atom.Head); head != nil {
		head.AppendChild(style)
		return
	}
	if root := dom.FindFirst(top, atom.Html); root != nil {
		root.InsertBefore(style, root.FirstChild)
		return
	}
	top.InsertBefore(style, top.FirstChild)
}

// removeStyle drops the injected style from the document owning n.
func removeStyle(n *html.Node) bool {
	removed := false
	for _, s := range dom.FindAll(dom.Top(n), isStyle) {
		if s.Parent != nil {
			s.Parent.RemoveChild(s)
			removed = true
		}
	}
	return removed
}

func findStyle(top *html.Node) *html.Node {
	if styles := dom.FindAll(top, isStyle); len(styles) > 0 {
		return styles[0]
	}
	return nil
}

func isStyle(n *html.Node) bool {
	return dom.IsElement(n, atom.Style) && dom.HasAttr(n, StyleAttr)
}
