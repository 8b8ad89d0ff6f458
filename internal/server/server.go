// Package server runs the wisp preview server. Every page load opens a
// session: a private document with its own runtime and event loop, holding
// one mounted component. The browser mirrors the session's composed markup
// and forwards DOM events over a websocket; the server dispatches them on
// the session loop and pushes the re-rendered markup back.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/conneroisu/wisp/internal/component"
	"github.com/conneroisu/wisp/internal/config"
	"github.com/conneroisu/wisp/internal/errors"
	"github.com/conneroisu/wisp/internal/loader"
	"github.com/conneroisu/wisp/internal/logging"
	"github.com/conneroisu/wisp/internal/version"
	"github.com/conneroisu/wisp/internal/watcher"
)

// Message types pushed to the browser.
const (
	MessageRender     = "render"
	MessageFullReload = "full_reload"
	MessageError      = "error"
)

// UpdateMessage represents a message sent to the browser
type UpdateMessage struct {
	Type      string    `json:"type"`
	Target    string    `json:"target,omitempty"`
	Content   string    `json:"content,omitempty"`
	Rev       int       `json:"rev,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// PreviewServer serves components from a registry with live mirroring.
type PreviewServer struct {
	config    *config.Config
	registry  *component.Registry
	logger    logging.Logger
	collector *errors.ErrorCollector

	httpServer  *http.Server
	serverMutex sync.RWMutex

	sessions      map[string]*Session
	sessionsMutex sync.RWMutex
	idleTimeout   time.Duration

	clients      map[*Client]struct{}
	clientsMutex sync.RWMutex
	broadcast    chan []byte
	register     chan *Client
	unregister   chan *Client
	done         chan struct{}

	// registry changes drive reloads and close sessions of removed tags
	definitions <-chan component.RegistryEvent

	watcher       *watcher.FileWatcher
	shutdownOnce  sync.Once
	isShutdown    bool
	shutdownMutex sync.RWMutex
}

// Option configures a PreviewServer.
type Option func(*PreviewServer)

// WithLogger sets the server logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *PreviewServer) { s.logger = logger }
}

// WithErrorCollector shares a diagnostics collector with the server.
func WithErrorCollector(c *errors.ErrorCollector) Option {
	return func(s *PreviewServer) { s.collector = c }
}

// WithIdleTimeout sets how long a session without clients survives.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *PreviewServer) { s.idleTimeout = d }
}

// New creates a preview server for the components defined on reg.
func New(cfg *config.Config, reg *component.Registry, opts ...Option) *PreviewServer {
	s := &PreviewServer{
		config:      cfg,
		registry:    reg,
		logger:      logging.NewNop(),
		collector:   errors.NewErrorCollector(),
		sessions:    make(map[string]*Session),
		idleTimeout: 2 * time.Minute,
		clients:     make(map[*Client]struct{}),
		broadcast:   make(chan []byte, 16),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("server")
	s.definitions = reg.Watch()
	return s
}

// Handler returns the HTTP routes.
func (s *PreviewServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)
	r.Get("/api/components", s.handleComponents)
	r.Get("/components/{tag}", s.handleComponent)
	r.Get("/ws/{session}", s.handleWebSocket)
	return r
}

// Start runs the hub and the file watcher, then serves until the server is
// shut down.
func (s *PreviewServer) Start(ctx context.Context) error {
	if s.config.Development.HotReload {
		if err := s.setupFileWatcher(ctx); err != nil {
			s.logger.Warn(ctx, err, "File watcher disabled")
		}
	}

	go s.runWebSocketHub(ctx)

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	s.logger.Info(ctx, "Preview server listening", "addr", "http://"+addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.NewNetworkError(errors.ErrCodeServerFailed, "server error", err)
	}
	return nil
}

func (s *PreviewServer) setupFileWatcher(ctx context.Context) error {
	fw, err := watcher.NewFileWatcher(300*time.Millisecond, s.logger)
	if err != nil {
		return err
	}
	fw.AddFilter(watcher.DefinitionFilter)
	fw.AddFilter(watcher.ExcludeFilter(s.config.Components.ExcludePatterns))
	fw.AddFilter(watcher.NoGitFilter)
	fw.AddHandler(s.handleFileChange)

	for _, path := range s.config.Components.ScanPaths {
		if err := fw.AddRecursive(path); err != nil {
			s.logger.Warn(ctx, err, "Cannot watch path", "path", path)
		}
	}
	if err := fw.Start(ctx); err != nil {
		return err
	}
	s.watcher = fw
	return nil
}

func (s *PreviewServer) handleFileChange(events []watcher.ChangeEvent) error {
	for _, event := range events {
		s.logger.Info(context.Background(), "File changed", "path", event.Path, "type", event.Type.String())
	}
	return s.Reload()
}

// Reload rescans the component paths, replaces the definitions and removes
// the ones whose files are gone. The resulting registry events make the hub
// ask every browser to reload. On failure the browsers get the error overlay
// instead.
func (s *PreviewServer) Reload() error {
	s.collector.Clear()

	defs, err := loader.Scan(s.config.Components.ScanPaths, s.config.Components.ExcludePatterns)
	if err == nil {
		err = loader.Register(s.registry, defs, true)
	}
	if err == nil {
		s.removeStale(defs)
	}
	if err != nil {
		s.collector.Add(errors.DiagnosticFromError(err, errors.ErrorSeverityError))
		s.broadcastMessage(UpdateMessage{
			Type:      MessageError,
			Content:   s.collector.ErrorOverlay(),
			Timestamp: time.Now(),
		})
		return err
	}

	// The hub broadcasts full_reload when it sees the registry events.
	s.logger.Info(context.Background(), "Components reloaded", "count", len(defs))
	return nil
}

// removeStale drops file-backed definitions whose files no longer define
// them. Built-in components have no source and stay.
func (s *PreviewServer) removeStale(defs []*loader.Definition) {
	current := make(map[string]bool, len(defs))
	for _, def := range defs {
		current[strings.ToLower(def.Tag)] = true
	}
	for _, tag := range s.registry.Tags() {
		def, ok := s.registry.Get(tag)
		if ok && def.Source != "" && !current[tag] {
			s.registry.Remove(tag)
		}
	}
}

// applyDefinitionChanges handles ev and any events queued behind it, then
// asks every page to reload once. Sessions of removed tags are closed.
func (s *PreviewServer) applyDefinitionChanges(ctx context.Context, ev component.RegistryEvent) {
	changed := 0
	for more := true; more; {
		changed++
		if ev.Type == component.EventTypeRemoved {
			s.closeSessionsFor(ev.Definition.Tag)
		}
		s.logger.Debug(ctx, "Definition changed", "tag", ev.Definition.Tag, "change", ev.Type.String())

		select {
		case next, ok := <-s.definitions:
			more = ok
			ev = next
		default:
			more = false
		}
	}

	data, err := json.Marshal(UpdateMessage{Type: MessageFullReload, Timestamp: time.Now()})
	if err != nil {
		return
	}
	s.sendAll(data)
	s.logger.Debug(ctx, "Broadcast full reload", "changes", changed)
}

func (s *PreviewServer) closeSessionsFor(tag string) {
	s.sessionsMutex.RLock()
	var ids []string
	for id, sess := range s.sessions {
		if sess.Tag == tag {
			ids = append(ids, id)
		}
	}
	s.sessionsMutex.RUnlock()

	for _, id := range ids {
		s.closeSession(id)
	}
}

func (s *PreviewServer) broadcastMessage(msg UpdateMessage) {
	jsonData, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error(context.Background(), err, "Failed to marshal message")
		jsonData = []byte(`{"type":"full_reload"}`)
	}

	select {
	case s.broadcast <- jsonData:
	case <-s.done:
	}
}

// openSession creates a session and mounts tag into it. The session is
// registered even when mounting fails, so the page can show the overlay.
func (s *PreviewServer) openSession(ctx context.Context, tag string, attrs map[string]string) (*Session, error) {
	sess, err := newSession(s.registry, tag, attrs, sessionOptions{
		runtime:   s.config.Runtime,
		logger:    s.logger,
		collector: s.collector,
	})
	if sess == nil {
		return nil, err
	}

	s.sessionsMutex.Lock()
	s.sessions[sess.ID] = sess
	count := len(s.sessions)
	s.sessionsMutex.Unlock()

	s.logger.Debug(ctx, "Session opened", "session", sess.ID, "tag", tag, "sessions", count)
	return sess, err
}

func (s *PreviewServer) session(id string) (*Session, bool) {
	s.sessionsMutex.RLock()
	defer s.sessionsMutex.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *PreviewServer) closeSession(id string) {
	s.sessionsMutex.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.sessionsMutex.Unlock()

	if ok {
		sess.Close()
		s.logger.Debug(context.Background(), "Session closed", "session", id)
	}
}

// reapSessions closes sessions nobody has been connected to for the idle
// timeout.
func (s *PreviewServer) reapSessions(now time.Time) {
	s.sessionsMutex.RLock()
	var idle []string
	for id, sess := range s.sessions {
		if sess.idleSince(now) >= s.idleTimeout {
			idle = append(idle, id)
		}
	}
	s.sessionsMutex.RUnlock()

	for _, id := range idle {
		s.closeSession(id)
	}
}

// SessionCount returns the number of open sessions.
func (s *PreviewServer) SessionCount() int {
	s.sessionsMutex.RLock()
	defer s.sessionsMutex.RUnlock()
	return len(s.sessions)
}

// Shutdown gracefully shuts down the server and cleans up resources
func (s *PreviewServer) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "Shutting down server")

		s.shutdownMutex.Lock()
		s.isShutdown = true
		s.shutdownMutex.Unlock()
		close(s.done)
		s.registry.UnWatch(s.definitions)

		if s.watcher != nil {
			if err := s.watcher.Stop(); err != nil {
				s.logger.Warn(ctx, err, "Cannot stop file watcher")
			}
		}

		s.clientsMutex.Lock()
		for client := range s.clients {
			client.conn.Close(websocket.StatusGoingAway, "server shutting down")
		}
		s.clientsMutex.Unlock()

		s.sessionsMutex.Lock()
		sessions := s.sessions
		s.sessions = make(map[string]*Session)
		s.sessionsMutex.Unlock()
		for _, sess := range sessions {
			sess.Close()
		}

		s.serverMutex.RLock()
		server := s.httpServer
		s.serverMutex.RUnlock()
		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		}
	})

	return shutdownErr
}

func (s *PreviewServer) shuttingDown() bool {
	s.shutdownMutex.RLock()
	defer s.shutdownMutex.RUnlock()
	return s.isShutdown
}

func (s *PreviewServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug(r.Context(), "Request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// handleHealth returns the server health status for health checks
func (s *PreviewServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.clientsMutex.RLock()
	clients := len(s.clients)
	s.clientsMutex.RUnlock()

	status := "healthy"
	if s.shuttingDown() {
		status = "shutting_down"
	}

	health := map[string]any{
		"status":     status,
		"timestamp":  time.Now().UTC(),
		"version":    version.GetShortVersion(),
		"build_info": version.GetBuildInfo(),
		"checks": map[string]any{
			"registry":    map[string]any{"status": "healthy", "components": s.registry.Count()},
			"sessions":    map[string]any{"status": "healthy", "open": s.SessionCount()},
			"websocket":   map[string]any{"status": "healthy", "clients": clients},
			"diagnostics": map[string]any{"errors": s.collector.Len()},
		},
	}
	writeJSON(w, http.StatusOK, health)
}

func (s *PreviewServer) handleComponents(w http.ResponseWriter, r *http.Request) {
	type entry struct {
		Tag       string    `json:"tag"`
		Shadow    bool      `json:"shadow"`
		Source    string    `json:"source,omitempty"`
		DefinedAt time.Time `json:"defined_at"`
	}
	var out []entry
	for _, tag := range s.registry.Tags() {
		if def, ok := s.registry.Get(tag); ok {
			out = append(out, entry{Tag: def.Tag, Shadow: def.Shadow, Source: def.Source, DefinedAt: def.DefinedAt})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"components": out, "count": len(out)})
}

func (s *PreviewServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := IndexPage(s.registry.Tags()).Render(r.Context(), w); err != nil {
		s.logger.Error(r.Context(), err, "Cannot render index")
	}
}

// handleComponent opens a session for the tag; query parameters become the
// element's attributes.
func (s *PreviewServer) handleComponent(w http.ResponseWriter, r *http.Request) {
	tag := chi.URLParam(r, "tag")
	if _, ok := s.registry.Get(tag); !ok {
		http.Error(w, "Unknown component: "+tag, http.StatusNotFound)
		return
	}

	attrs := make(map[string]string)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			attrs[key] = values[0]
		}
	}

	sess, err := s.openSession(r.Context(), tag, attrs)
	if sess == nil {
		s.logger.Error(r.Context(), err, "Cannot open session", "tag", tag)
		http.Error(w, "Cannot open session", http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	overlay := ""
	if err != nil {
		s.collector.Add(errors.DiagnosticFromError(err, errors.ErrorSeverityError))
		s.logger.Warn(r.Context(), err, "Component failed to mount", "tag", tag)
		status = http.StatusInternalServerError
	}
	if s.config.Development.ErrorOverlay {
		overlay = s.collector.ErrorOverlay()
	}

	markup, rev := sess.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	page := Page(PageData{
		Title:   tag,
		Session: sess.ID,
		Rev:     rev,
		Body:    markup,
		Overlay: overlay,
	})
	if err := page.Render(r.Context(), w); err != nil {
		s.logger.Error(r.Context(), err, "Cannot render page", "tag", tag)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
