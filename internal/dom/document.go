// Package dom holds the in-memory document model that masking operates on: a
// parsed HTML tree plus the documents of its frames, each reachable only
// through ContentDocument so that opaque frames behave like they do in a
// browser.
package dom

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	// ErrCrossOrigin is returned for frames whose document belongs to another origin.
	ErrCrossOrigin = errors.New("frame document is cross-origin")
	// ErrNotLoaded is returned for frames without a usable document or body.
	ErrNotLoaded = errors.New("frame document not loaded")
	// ErrTooDeep is returned for frames nested beyond the configured depth.
	ErrTooDeep = errors.New("frame nesting too deep")
)

// Document is one HTML document: the top-level page or a frame's content.
type Document struct {
	Root *html.Node
	URL  *url.URL

	origin string
	frames map[*html.Node]frame
}

type frame struct {
	doc *Document
	err error
	// srcdoc frames are re-embedded on render; fetched ones replace src.
	inline bool
}

// NewDocument wraps an already-parsed tree. u may be nil for documents
// without a location.
func NewDocument(root *html.Node, u *url.URL) *Document {
	return &Document{
		Root:   root,
		URL:    u,
		origin: originOf(u),
		frames: make(map[*html.Node]frame),
	}
}

// Parse parses r into a Document located at u.
func Parse(r io.Reader, u *url.URL) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return NewDocument(root, u), nil
}

// ParseString is Parse over a string.
func ParseString(s string, u *url.URL) (*Document, error) {
	return Parse(strings.NewReader(s), u)
}

// Origin returns scheme://host of the document, or "" when opaque.
func (d *Document) Origin() string {
	return d.origin
}

// Body returns the <body> element, or nil when the document has none.
func (d *Document) Body() *html.Node {
	return FindFirst(d.Root, atom.Body)
}

// Head returns the <head> element, or nil.
func (d *Document) Head() *html.Node {
	return FindFirst(d.Root, atom.Head)
}

// Iframes returns the document's <iframe> elements in document order.
func (d *Document) Iframes() []*html.Node {
	return FindAll(d.Root, func(n *html.Node) bool { return IsElement(n, atom.Iframe) })
}

// ContentDocument returns the document loaded into iframe. Frames that were
// never resolved report ErrNotLoaded; opaque frames report ErrCrossOrigin; a
// document without a body yet reports ErrNotLoaded.
func (d *Document) ContentDocument(iframe *html.Node) (*Document, error) {
	f, ok := d.frames[iframe]
	if !ok {
		return nil, ErrNotLoaded
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.doc == nil || f.doc.Body() == nil {
		return nil, ErrNotLoaded
	}
	return f.doc, nil
}

// AttachFrame records child as the content document of iframe.
func (d *Document) AttachFrame(iframe *html.Node, child *Document, inline bool) {
	d.frames[iframe] = frame{doc: child, inline: inline}
}

// AttachFrameError records that iframe's document cannot be accessed.
func (d *Document) AttachFrameError(iframe *html.Node, err error) {
	d.frames[iframe] = frame{err: err}
}

// SameOrigin reports whether u shares this document's origin. Opaque origins
// are never same-origin with anything.
func (d *Document) SameOrigin(u *url.URL) bool {
	o := originOf(u)
	return o != "" && o == d.origin
}

func originOf(u *url.URL) string {
	if u == nil || u.Host == "" {
		return ""
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return ""
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}
