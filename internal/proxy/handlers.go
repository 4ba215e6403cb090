package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/raaihank/consolemask/internal/dom"
	"github.com/raaihank/consolemask/internal/masking"
	"github.com/raaihank/consolemask/internal/pages"
	"github.com/raaihank/consolemask/internal/privacy"
)

// DocumentURLHeader carries the page location of an uploaded document.
const DocumentURLHeader = "X-Document-URL"

type commandRequest struct {
	Action string `json:"action"`
}

type createdDocument struct {
	ID     string `json:"id"`
	URL    string `json:"url,omitempty"`
	Frames int    `json:"frames"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	clients := 0
	if s.wsHub != nil {
		clients = s.wsHub.ClientCount()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":              "consolemask",
		"version":           Version,
		"store_backend":     s.store.Backend(),
		"active_patterns":   patternIDs(s.service.ActivePatterns(r.Context())),
		"rules":             privacy.Describe(),
		"pages":             s.pages.Len(),
		"activation":        s.matcher.Load().Patterns(),
		"websocket_clients": clients,
		"max_frame_depth":   s.config.Masking.MaxFrameDepth,
	})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"documents": s.pages.List()})
}

// handleCreateDocument parses the request body as an HTML page and keeps it
// as a live document. Same-origin src frames are fetched with the caller's
// cookies.
func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	log := s.requestLogger(r)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody()))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "document too large")
		return
	}

	var pageURL *url.URL
	if raw := documentURL(r); raw != "" {
		pageURL, err = url.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid document url: %v", err))
			return
		}
	}

	loader := s.newLoader(&dom.HTTPFetcher{Client: s.client, Header: forwardedHeaders(r)})
	doc, err := loader.Load(r.Context(), pageURL, bytes.NewReader(body))
	if err != nil {
		log.Warn("Failed to parse document", zap.Error(err))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := s.pages.Add(doc)
	created := createdDocument{ID: id, Frames: len(doc.Iframes())}
	if pageURL != nil {
		created.URL = pageURL.String()
	}

	log.Info("Document registered",
		zap.String("document_id", id),
		zap.String("url", created.URL),
		zap.Int("bytes", len(body)),
		zap.Int("frames", created.Frames),
	)
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var buf bytes.Buffer
	err := s.pages.With(r.Context(), id, "", func(p *pages.Page) error {
		if err := dom.Render(&buf, p.Doc); err != nil {
			return err
		}
		depth := s.config.Masking.MaxFrameDepth
		return masking.VerifyRendered(buf.Bytes(), masking.CountMarkers(p.Doc, depth), depth)
	})
	if err != nil {
		s.writeLookupError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.pages.Remove(id); err != nil {
		s.writeLookupError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDocumentCommand(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	// Browsers send text/plain and form bodies cross-site without a preflight.
	if mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mediaType != "application/json" {
		writeError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}

	var req commandRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ack, err := s.HandleCommand(r.Context(), req.Action, id)
	if err != nil {
		s.writeLookupError(w, r, err)
		return
	}

	status := http.StatusOK
	if !ack.Success {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, ack)
}

// HandleCommand runs action on the live document documentID. Commands on the
// same document are serialised; the last one to run decides the final state.
func (s *Server) HandleCommand(ctx context.Context, action, documentID string) (masking.Ack, error) {
	cmd, err := masking.ParseCommand(action)
	if err != nil {
		return masking.Ack{}, err
	}

	var ack masking.Ack
	err = s.pages.With(ctx, documentID, string(cmd), func(p *pages.Page) error {
		ack = s.dispatcher.Dispatch(ctx, cmd, documentID, p.Doc)
		return nil
	})
	if err != nil {
		return masking.Ack{}, err
	}
	return ack, nil
}

func (s *Server) writeLookupError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, pages.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, masking.ErrUnknownCommand):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, masking.ErrMarkersLost):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.requestLogger(r).Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (s *Server) maxBody() int64 {
	if s.config.Server.MaxBodyBytes > 0 {
		return s.config.Server.MaxBodyBytes
	}
	return 10 << 20
}

func documentURL(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(DocumentURLHeader)); v != "" {
		return v
	}
	return strings.TrimSpace(r.URL.Query().Get("url"))
}

// forwardedHeaders are the credentials a frame fetch needs to see the same
// content the page did.
func forwardedHeaders(r *http.Request) http.Header {
	h := http.Header{}
	for _, k := range []string{"Cookie", "Authorization", "User-Agent", "Accept-Language"} {
		if v := r.Header.Values(k); len(v) > 0 {
			h[k] = append([]string(nil), v...)
		}
	}
	return h
}

func patternIDs(patterns []privacy.Pattern) []string {
	ids := make([]string, 0, len(patterns))
	for _, p := range patterns {
		ids = append(ids, p.ID)
	}
	return ids
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
