// Package server hosts the playground: the editor UI, the per-session
// live preview pipeline, the share endpoints, and the WebSocket channel
// that pushes recomposed documents to connected browsers.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/fiddle/internal/config"
	"github.com/conneroisu/fiddle/internal/logging"
	"github.com/conneroisu/fiddle/internal/registry"
	"github.com/conneroisu/fiddle/internal/validation"
	"github.com/conneroisu/fiddle/internal/watcher"
)

// PlaygroundServer serves the playground with live preview
type PlaygroundServer struct {
	config       *config.Config
	httpServer   *http.Server
	serverMutex  sync.RWMutex // Protects httpServer and server state
	clients      map[*websocket.Conn]*Client
	clientsMutex sync.RWMutex
	broadcast    chan []byte
	register     chan *Client
	unregister   chan *websocket.Conn
	sessions     *SessionManager
	registry     *registry.TemplateRegistry
	watcher      *watcher.FileWatcher
	rateLimiter  *RateLimiter
	logger       logging.Logger
	shutdownOnce sync.Once
}

// UpdateMessage represents a message sent to the browser
type UpdateMessage struct {
	Type      string    `json:"type"`
	Target    string    `json:"target,omitempty"`
	Content   string    `json:"content,omitempty"`
	Revision  uint64    `json:"revision,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// New creates a new playground server
func New(cfg *config.Config, logger logging.Logger) (*PlaygroundServer, error) {
	if logger == nil {
		logger = logging.NewLogger(logging.DefaultConfig())
	}
	logger = logger.WithComponent("server")

	templates := registry.NewTemplateRegistry()
	if cfg.Templates.Dir != "" {
		loaded, err := templates.LoadDir(cfg.Templates.Dir)
		if err != nil {
			logger.Warn(context.Background(), err, "Some template definitions were skipped",
				"dir", cfg.Templates.Dir)
		}
		if loaded > 0 {
			logger.Info(context.Background(), "Loaded template directory",
				"dir", cfg.Templates.Dir, "templates", loaded)
		}
	}

	fileWatcher, err := watcher.NewFileWatcher(300 * time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &PlaygroundServer{
		config:     cfg,
		clients:    make(map[*websocket.Conn]*Client),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *Client),
		unregister: make(chan *websocket.Conn),
		sessions:   NewSessionManager(),
		registry:   templates,
		watcher:    fileWatcher,
		logger:     logger,
	}, nil
}

// Registry exposes the template registry, mainly for the CLI.
func (s *PlaygroundServer) Registry() *registry.TemplateRegistry {
	return s.registry
}

// Start starts the playground server and blocks until it stops.
func (s *PlaygroundServer) Start(ctx context.Context) error {
	if s.config.Development.HotReload {
		s.setupFileWatcher(ctx)
	}

	// Start WebSocket hub
	go s.runWebSocketHub(ctx)

	// Expire idle sessions in the background
	go s.runSessionCleaner(ctx)

	handler := s.handler()

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: handler,
	}
	server := s.httpServer // Get local copy for safe access
	s.serverMutex.Unlock()

	if s.config.Server.Open {
		go s.openBrowser(fmt.Sprintf("http://%s", addr))
	}

	s.logger.Info(ctx, "Playground listening", "addr", addr)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// routes builds the request mux.
func (s *PlaygroundServer) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/preview/", s.handlePreview)
	mux.HandleFunc("/view", s.handleView)
	mux.HandleFunc("/docs", s.handleDocs)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/version", s.handleVersion)
	mux.HandleFunc("/api/session", s.handleSessionCreate)
	mux.HandleFunc("/api/session/", s.handleSessionSubroute)
	mux.HandleFunc("/api/compose", s.handleCompose)
	mux.HandleFunc("/api/share/encode", s.handleShareEncode)
	mux.HandleFunc("/api/share/decode", s.handleShareDecode)
	mux.HandleFunc("/api/templates", s.handleTemplates)

	if s.config.Server.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.Server.StaticDir))
		mux.Handle("/static/", http.StripPrefix("/static/", fs))
	}

	return mux
}

// handler is the full stack the listener serves: routes wrapped in the
// middleware chain.
func (s *PlaygroundServer) handler() http.Handler {
	return s.addMiddleware(s.routes())
}

func (s *PlaygroundServer) setupFileWatcher(ctx context.Context) {
	s.watcher.AddFilter(watcher.NoHiddenFilter)
	s.watcher.AddFilter(watcher.NoTempFilter)
	s.watcher.AddHandler(s.handleFileChange)

	if s.config.Templates.Dir != "" {
		if err := s.watcher.AddPath(s.config.Templates.Dir); err != nil {
			s.logger.Warn(ctx, err, "Template directory not watched", "dir", s.config.Templates.Dir)
		}
	}
	if s.config.Server.StaticDir != "" {
		if err := s.watcher.AddRecursive(s.config.Server.StaticDir); err != nil {
			s.logger.Warn(ctx, err, "Static directory not watched", "dir", s.config.Server.StaticDir)
		}
	}

	if err := s.watcher.Start(ctx); err != nil {
		s.logger.Warn(ctx, err, "File watcher failed to start")
	}
}

// handleFileChange reacts to a debounced batch of file events: template
// definition changes reload the template directory and tell clients to
// refresh their template list, anything else under the static dir
// forces a full reload.
func (s *PlaygroundServer) handleFileChange(events []watcher.ChangeEvent) error {
	var templateChange, staticChange bool
	for _, event := range events {
		s.logger.Debug(context.Background(), "File changed",
			"path", event.Path, "event", event.Type.String())
		if watcher.TemplateFilter(event.Path) {
			templateChange = true
		} else {
			staticChange = true
		}
	}

	if templateChange && s.config.Templates.Dir != "" {
		if _, err := s.registry.LoadDir(s.config.Templates.Dir); err != nil {
			s.logger.Warn(context.Background(), err, "Template reload had problems")
		}
		s.broadcastMessage(UpdateMessage{Type: "template_update", Timestamp: time.Now()})
	}
	if staticChange {
		s.broadcastMessage(UpdateMessage{Type: "full_reload", Timestamp: time.Now()})
	}

	return nil
}

func (s *PlaygroundServer) runSessionCleaner(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if dropped := s.sessions.expire(time.Now(), sessionIdleExpiry); dropped > 0 {
				s.logger.Debug(ctx, "Expired idle sessions", "count", dropped)
			}
		}
	}
}

func (s *PlaygroundServer) openBrowser(url string) {
	time.Sleep(100 * time.Millisecond) // Give server time to start

	// Validate URL for security before passing to system commands
	if err := validation.ValidateURL(url); err != nil {
		s.logger.Warn(context.Background(), err, "Browser open failed due to invalid URL")
		return
	}

	var err error
	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", url).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		err = exec.Command("open", url).Start()
	default:
		err = fmt.Errorf("unsupported platform")
	}

	if err != nil {
		s.logger.Warn(context.Background(), err, "Failed to open browser")
	}
}

func (s *PlaygroundServer) addMiddleware(handler http.Handler) http.Handler {
	securityConfig := SecurityConfigFromAppConfig(s.config)
	securityConfig.Logger = s.logger
	securityHandler := SecurityMiddleware(securityConfig)(handler)

	if securityConfig.RateLimiting != nil && securityConfig.RateLimiting.Enabled {
		s.rateLimiter = NewRateLimiter(securityConfig.RateLimiting, s.logger)
		securityHandler = RateLimitMiddleware(s.rateLimiter)(securityHandler)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// CORS headers based on environment
		origin := r.Header.Get("Origin")
		if s.isAllowedOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else if s.config.Server.Environment == "development" {
			// Only allow wildcard in development
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		// Production default: no CORS header (blocks cross-origin requests)

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		start := time.Now()
		securityHandler.ServeHTTP(w, r)
		s.logger.Debug(r.Context(), "Request served",
			"method", r.Method, "path", r.URL.Path, "duration", time.Since(start).String())
	})
}

// isAllowedOrigin checks if the origin is in the allowed origins list
func (s *PlaygroundServer) isAllowedOrigin(origin string) bool {
	if origin == "" {
		return false
	}

	for _, allowed := range s.config.Server.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}

	return false
}

func (s *PlaygroundServer) broadcastMessage(msg UpdateMessage) {
	jsonData, err := json.Marshal(msg)
	if err != nil {
		s.logger.Warn(context.Background(), err, "Failed to marshal broadcast message")
		jsonData = []byte(`{"type":"full_reload"}`)
	}

	select {
	case s.broadcast <- jsonData:
	default:
		// Nobody draining the hub, drop the message
	}
}

// Shutdown gracefully shuts down the server and cleans up resources
func (s *PlaygroundServer) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "Shutting down server")

		if s.watcher != nil {
			s.watcher.Stop()
		}

		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}

		// Close all WebSocket connections
		s.clientsMutex.Lock()
		for conn, client := range s.clients {
			close(client.send)
			conn.Close(websocket.StatusNormalClosure, "")
		}
		s.clients = make(map[*websocket.Conn]*Client)
		s.clientsMutex.Unlock()

		s.serverMutex.RLock()
		server := s.httpServer
		s.serverMutex.RUnlock()

		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		}
	})

	return shutdownErr
}
