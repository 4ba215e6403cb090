package proxy

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/raaihank/consolemask/internal/config"
	"github.com/raaihank/consolemask/internal/dom"
	"github.com/raaihank/consolemask/internal/logger"
	"github.com/raaihank/consolemask/internal/masking"
	"github.com/raaihank/consolemask/internal/pages"
	"github.com/raaihank/consolemask/internal/security"
	"github.com/raaihank/consolemask/internal/settings"
	"github.com/raaihank/consolemask/internal/web"
	"github.com/raaihank/consolemask/internal/websocket"
)

// Version is reported by /info.
const Version = "0.1.0"

// Server is the HTTP front end: document API, console proxy and event hub.
type Server struct {
	config     *config.Config
	logger     *logger.Logger
	store      *settings.Store
	service    *masking.Service
	dispatcher *masking.Dispatcher
	pages      *pages.Registry
	limiter    *security.RateLimiter
	matcher    atomic.Pointer[config.Matcher]
	client     *http.Client
	upstream   *url.URL
	console    *httputil.ReverseProxy
	router     *mux.Router
	server     *http.Server
	wsHub      *websocket.Hub
	startedAt  time.Time
}

// New creates a new server instance.
func New(cfg *config.Config, store *settings.Store, log *logger.Logger) (*Server, error) {
	matcher, err := config.NewMatcher(cfg.Activation.Matches)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:    cfg,
		logger:    log.WithComponent("proxy"),
		store:     store,
		service:   masking.NewService(store, cfg.Masking.MaxFrameDepth, cfg.Masking.SettingsTimeout, log.WithComponent("masking")),
		pages:     pages.NewRegistry(cfg.Pages.TTL, cfg.Pages.MaxPages, log.WithComponent("pages")),
		limiter:   security.NewRateLimiter(cfg.RateLimit),
		client:    &http.Client{Timeout: cfg.Upstream.Timeout},
		router:    mux.NewRouter(),
		startedAt: time.Now(),
	}
	s.matcher.Store(matcher)

	var sink masking.EventSink
	if cfg.WebSocket.Enabled {
		s.wsHub = websocket.NewHub(&websocket.HubConfig{
			BroadcastMasking:     true,
			BroadcastSystem:      true,
			BroadcastConnections: true,
			Username:             cfg.WebSocket.Username,
			Password:             cfg.WebSocket.Password,
			PingInterval:         cfg.WebSocket.PingInterval,
			PongTimeout:          cfg.WebSocket.PongTimeout,
			WriteTimeout:         cfg.WebSocket.WriteTimeout,
			MaxMessageSize:       cfg.WebSocket.MaxMessageSize,
		}, s, log)
		sink = s.wsHub
	}
	s.dispatcher = masking.NewDispatcher(s.service, sink, log.WithComponent("dispatcher"))

	if cfg.Upstream.Console != "" {
		s.upstream, err = url.Parse(cfg.Upstream.Console)
		if err != nil {
			return nil, fmt.Errorf("invalid upstream console URL: %w", err)
		}
		s.console = s.newConsoleProxy()
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")
	s.router.HandleFunc("/", web.ServeDashboard).Methods("GET", "HEAD")

	if s.wsHub != nil {
		s.router.HandleFunc(s.wsPath(), s.wsHub.HandleWebSocket).Methods("GET")
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)
	api.HandleFunc("/documents", s.handleListDocuments).Methods("GET")
	api.HandleFunc("/documents", s.handleCreateDocument).Methods("POST")
	api.HandleFunc("/documents/{id}", s.handleGetDocument).Methods("GET")
	api.HandleFunc("/documents/{id}", s.handleDeleteDocument).Methods("DELETE")
	api.HandleFunc("/documents/{id}/commands", s.handleDocumentCommand).Methods("POST")

	if s.console != nil {
		console := s.router.PathPrefix("/console").Subrouter()
		console.Use(s.loggingMiddleware)
		console.Use(s.rateLimitMiddleware)
		console.PathPrefix("/").HandlerFunc(s.handleConsoleProxy)
	}
}

func (s *Server) wsPath() string {
	if s.config.WebSocket.Path != "" {
		return s.config.WebSocket.Path
	}
	return "/ws"
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the background workers and then serves HTTP until Stop.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting ConsoleMask server",
		zap.Int("port", s.config.Server.Port),
		zap.String("upstream_console", s.config.Upstream.Console),
		zap.String("settings_backend", s.store.Backend()),
		zap.Strings("activation", s.matcher.Load().Patterns()),
	)

	s.pages.StartCleanup(ctx, s.config.Pages.CleanupInterval)
	s.limiter.StartCleanupRoutine(ctx)

	if s.wsHub != nil {
		go s.wsHub.Run(ctx)
		go s.publishStatus(ctx, 30*time.Second)
	}

	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping ConsoleMask server")
	return s.server.Shutdown(ctx)
}

// ApplyConfig swaps in the parts of cfg that can change at runtime: the
// activation patterns and the rate limits.
func (s *Server) ApplyConfig(cfg *config.Config) error {
	matcher, err := config.NewMatcher(cfg.Activation.Matches)
	if err != nil {
		return err
	}
	s.matcher.Store(matcher)
	s.limiter.Update(cfg.RateLimit)

	s.logger.Info("Configuration reloaded",
		zap.Strings("activation", matcher.Patterns()),
		zap.Bool("rate_limit", cfg.RateLimit.Enabled),
		zap.Int("requests_per_min", cfg.RateLimit.RequestsPerMin),
	)
	return nil
}

// GetWebSocketHub returns the hub, or nil when WebSocket support is off.
func (s *Server) GetWebSocketHub() *websocket.Hub {
	return s.wsHub
}

func (s *Server) publishStatus(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.wsHub.PublishStatus(websocket.SystemStatusEvent{
				Status:         "healthy",
				Uptime:         time.Since(s.startedAt).Round(time.Second).String(),
				Pages:          s.pages.Len(),
				ActivePatterns: patternIDs(s.service.ActivePatterns(ctx)),
				StoreBackend:   s.store.Backend(),
			})
		}
	}
}

func (s *Server) newLoader(fetcher dom.Fetcher) *dom.Loader {
	return &dom.Loader{
		Fetcher:      fetcher,
		MaxDepth:     s.config.Masking.MaxFrameDepth,
		FetchTimeout: s.config.Masking.FrameFetchTimeout,
		Logger:       s.logger,
	}
}
