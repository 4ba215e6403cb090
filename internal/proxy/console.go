package proxy

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/consolemask/internal/dom"
	"github.com/raaihank/consolemask/internal/masking"
)

// handleConsoleProxy forwards /console/* to the upstream console.
func (s *Server) handleConsoleProxy(w http.ResponseWriter, r *http.Request) {
	r.URL.Path = strings.TrimPrefix(r.URL.Path, "/console")
	if r.URL.Path == "" {
		r.URL.Path = "/"
	}
	r.URL.RawPath = ""

	start := time.Now()
	s.console.ServeHTTP(w, r)

	s.requestLogger(r).Debug("Console request proxied",
		zap.String("path", r.URL.Path),
		zap.Duration("upstream_duration", time.Since(start)),
	)
}

func (s *Server) newConsoleProxy() *httputil.ReverseProxy {
	target := s.upstream
	proxy := httputil.NewSingleHostReverseProxy(target)

	director := proxy.Director
	proxy.Director = func(req *http.Request) {
		director(req)
		req.Host = target.Host
		// Bodies must arrive identity-encoded to be masked.
		req.Header.Del("Accept-Encoding")
	}

	proxy.ModifyResponse = s.maskConsoleResponse

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		s.requestLogger(r).Error("Console proxy error", zap.Error(err))
		writeError(w, http.StatusBadGateway, fmt.Sprintf("proxy error: %v", err))
	}

	proxy.Transport = &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ResponseHeaderTimeout: s.config.Upstream.Timeout,
		DisableCompression:    true,
	}

	return proxy
}

// maskConsoleResponse masks HTML pages whose upstream URL passes activation.
// Everything else passes through untouched. A page that should be masked but
// cannot be is turned into an error rather than delivered in clear.
func (s *Server) maskConsoleResponse(resp *http.Response) error {
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	ct := resp.Header.Get("Content-Type")
	if ct != "" && !dom.IsHTML(ct) {
		return nil
	}

	pageURL := resp.Request.URL
	if !s.matcher.Load().Matches(pageURL.String()) {
		return nil
	}

	log := s.requestLogger(resp.Request)

	if enc := resp.Header.Get("Content-Encoding"); enc != "" && !strings.EqualFold(enc, "identity") {
		return fmt.Errorf("cannot mask %s: unsupported content encoding %q", pageURL, enc)
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("read upstream page: %w", err)
	}

	if ct == "" && !dom.IsHTML(http.DetectContentType(body)) {
		resp.Body = io.NopCloser(bytes.NewReader(body))
		return nil
	}

	ctx := resp.Request.Context()
	loader := s.newLoader(&dom.HTTPFetcher{Client: s.client, Header: forwardedHeaders(resp.Request)})
	doc, err := loader.Load(ctx, pageURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("parse upstream page: %w", err)
	}

	ack := s.dispatcher.Dispatch(ctx, masking.CommandApply, "", doc)
	if !ack.Success {
		return errors.New(ack.Error)
	}

	var out bytes.Buffer
	if err := dom.Render(&out, doc); err != nil {
		return fmt.Errorf("render masked page: %w", err)
	}
	if err := masking.VerifyRendered(out.Bytes(), ack.Outcome.Markers(), s.config.Masking.MaxFrameDepth); err != nil {
		return fmt.Errorf("mask %s: %w", pageURL, err)
	}

	resp.Body = io.NopCloser(&out)
	resp.ContentLength = int64(out.Len())
	resp.Header.Set("Content-Length", strconv.Itoa(out.Len()))
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("ETag")

	log.Info("Console page masked",
		zap.String("url", pageURL.String()),
		zap.Int("markers", ack.Outcome.Markers()),
		zap.Int("documents", len(ack.Outcome.Documents)),
		zap.Int("skipped_frames", len(ack.Outcome.Skipped)),
	)
	return nil
}
