package dom

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/raaihank/consolemask/internal/logger"
)

// Fetcher retrieves the HTML of a same-origin frame.
type Fetcher interface {
	Fetch(ctx context.Context, u *url.URL) (io.ReadCloser, error)
}

// HTTPFetcher fetches frames over HTTP, forwarding a fixed set of headers
// (typically the page request's cookies) so the frame loads as the user sees it.
type HTTPFetcher struct {
	Client *http.Client
	Header http.Header
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range f.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if !IsHTML(resp.Header.Get("Content-Type")) {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected content type %q", resp.Header.Get("Content-Type"))
	}
	return resp.Body, nil
}

// IsHTML reports whether a Content-Type header denotes an HTML document.
// A missing header counts as HTML.
func IsHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

// Loader parses pages and resolves their frames into nested Documents.
type Loader struct {
	Fetcher      Fetcher
	MaxDepth     int
	FetchTimeout time.Duration
	Logger       *logger.Logger
}

// Load parses r as the document at u and resolves its frames up to MaxDepth.
// Frame failures never fail the load; they are recorded on the parent so
// ContentDocument reports them.
func (l *Loader) Load(ctx context.Context, u *url.URL, r io.Reader) (*Document, error) {
	doc, err := Parse(r, u)
	if err != nil {
		return nil, err
	}
	l.resolveFrames(ctx, doc, 1)
	return doc, nil
}

func (l *Loader) resolveFrames(ctx context.Context, doc *Document, depth int) {
	for _, iframe := range doc.Iframes() {
		if depth > l.MaxDepth {
			doc.AttachFrameError(iframe, ErrTooDeep)
			continue
		}

		if srcdoc, ok := Attr(iframe, "srcdoc"); ok {
			root, err := html.Parse(strings.NewReader(srcdoc))
			if err != nil {
				doc.AttachFrameError(iframe, fmt.Errorf("%w: %v", ErrNotLoaded, err))
				continue
			}
			child := NewDocument(root, nil)
			child.origin = doc.origin
			doc.AttachFrame(iframe, child, true)
			l.resolveFrames(ctx, child, depth+1)
			continue
		}

		child, err := l.loadSrc(ctx, doc, iframe)
		if err != nil {
			l.debug("Frame not accessible",
				zap.String("src", srcOf(iframe)),
				zap.Int("depth", depth),
				zap.Error(err),
			)
			doc.AttachFrameError(iframe, err)
			continue
		}
		doc.AttachFrame(iframe, child, false)
		l.resolveFrames(ctx, child, depth+1)
	}
}

func (l *Loader) loadSrc(ctx context.Context, doc *Document, iframe *html.Node) (*Document, error) {
	src := strings.TrimSpace(srcOf(iframe))
	if src == "" || src == "about:blank" {
		root, err := html.Parse(strings.NewReader(""))
		if err != nil {
			return nil, err
		}
		child := NewDocument(root, nil)
		child.origin = doc.origin
		return child, nil
	}

	ref, err := url.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("%w: bad src: %v", ErrNotLoaded, err)
	}
	target := ref
	if doc.URL != nil {
		target = doc.URL.ResolveReference(ref)
	}

	if !doc.SameOrigin(target) {
		return nil, ErrCrossOrigin
	}
	if l.Fetcher == nil {
		return nil, ErrNotLoaded
	}

	fetchCtx := ctx
	if l.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, l.FetchTimeout)
		defer cancel()
	}

	body, err := l.Fetcher.Fetch(fetchCtx, target)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotLoaded, err)
	}
	defer body.Close()

	child, err := Parse(body, target)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotLoaded, err)
	}
	return child, nil
}

func (l *Loader) debug(msg string, fields ...zap.Field) {
	if l.Logger != nil {
		l.Logger.Debug(msg, fields...)
	}
}

func srcOf(iframe *html.Node) string {
	src, _ := Attr(iframe, "src")
	return src
}
