package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"

	"github.com/jpalmerr/missioncontrol/internal/board"
	"github.com/jpalmerr/missioncontrol/internal/dispatch"
	"github.com/jpalmerr/missioncontrol/internal/docstore"
	"github.com/jpalmerr/missioncontrol/internal/subscription"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write operation.
	// This prevents goroutine leaks when clients are slow or disconnected.
	// Must be <= shutdown timeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	// shutdownTimeout bounds graceful shutdown of in-flight requests.
	shutdownTimeout = 5 * time.Second

	// defaultReadTimeout bounds a one-shot collection read.
	defaultReadTimeout = 5 * time.Second

	// maxBodySize caps write and command request bodies.
	maxBodySize = 1 << 20

	// defaultTitle is used when no custom title is configured.
	defaultTitle = "Mission Control"

	// titlePlaceholder is the marker in HTML that gets replaced with the actual title.
	titlePlaceholder = "{{.Title}}"
)

// Backend is what the server reads from and writes to.
type Backend struct {
	// Board serves the widget endpoints.
	Board *board.Board

	// Manager serves the per-collection endpoints. Each request gets its own
	// subscription store, so listeners are shared with the board.
	Manager *subscription.Manager

	// Dispatcher performs every write.
	Dispatcher *dispatch.Dispatcher
}

// Server handles HTTP requests for the dashboard, its API and the remote
// listener protocol.
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	backend     Backend
	port        int
	httpServer  *http.Server
	addr        net.Addr
	assets      fs.FS
	title       string
	logger      *slog.Logger
	auth        *Authenticator
	readTimeout time.Duration
	now         func() time.Time
}

// Option configures a [Server].
type Option func(*Server)

// WithAuthenticator requires a valid bearer token on every write. Without
// it writes are open.
func WithAuthenticator(a *Authenticator) Option {
	return func(s *Server) {
		s.auth = a
	}
}

// WithReadTimeout bounds how long a one-shot collection read waits for the
// first snapshot.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.readTimeout = d
		}
	}
}

// NewServer creates a new HTTP [Server].
//
// Parameters:
//   - be: board, subscription manager and dispatcher
//   - port: TCP port to listen on (0 picks a free port)
//   - assets: Embedded filesystem containing dashboard assets (may be nil)
//   - title: Dashboard title (defaults to "Mission Control" if empty)
//   - logger: Logger for server events
//
// The server is not started until [Server.Start] is called.
func NewServer(be Backend, port int, assets fs.FS, title string, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		backend:     be,
		port:        port,
		assets:      assets,
		title:       title,
		logger:      logger,
		readTimeout: defaultReadTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the router with logging middleware applied.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	api := r.PathPrefix("/api").Subrouter()
	api.Methods(http.MethodGet).Path("/widgets").HandlerFunc(s.handleWidgets)
	api.Methods(http.MethodGet).Path("/widgets/sse").HandlerFunc(s.handleWidgetsSSE)

	api.Methods(http.MethodGet).Path("/collections/{name}").HandlerFunc(s.handleCollection)
	api.Methods(http.MethodGet).Path("/collections/{name}/sse").HandlerFunc(s.handleCollectionSSE)
	api.Methods(http.MethodGet).Path("/collections/{name}/ws").HandlerFunc(s.handleListenerSocket)

	writes := api.NewRoute().Subrouter()
	writes.Use(s.requireAuth)
	writes.Methods(http.MethodPatch).Path("/collections/{name}/documents/{id}").HandlerFunc(s.handleWriteDocument)
	writes.Methods(http.MethodPost).Path("/collections/{name}/documents").HandlerFunc(s.handleCreateDocument)
	writes.Methods(http.MethodPost).Path("/commands/force-scrape").HandlerFunc(s.handleForceScrape)
	writes.Methods(http.MethodPost).Path("/commands/console").HandlerFunc(s.handleConsole)
	writes.Methods(http.MethodPost).Path("/commands/directive").HandlerFunc(s.handleDirective)
	writes.Methods(http.MethodPost).Path("/commands/protocol/{key}/toggle").HandlerFunc(s.handleToggleProtocol)

	if s.assets != nil {
		r.Methods(http.MethodGet).Path("/").HandlerFunc(s.handleDashboard)
	}
	return r
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown with a 5-second
// timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}
	s.addr = ln.Addr()

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// BaseContext derives all request contexts from the server context.
		// When ctx is cancelled, all request contexts are also cancelled,
		// enabling graceful shutdown of long-running handlers like SSE.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	// shutdown on context cancellation
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	s.logger.Info("http server listening", "addr", s.addr.String())
	return nil
}

// Addr returns the bound address after a successful [Server.Start].
func (s *Server) Addr() net.Addr {
	return s.addr
}

// logRequests logs one line per request with its status and duration.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		level := slog.LevelDebug
		if m.Code >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		s.logger.Log(r.Context(), level, "handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", m.Code,
			"bytes", m.Written,
			"duration", m.Duration,
		)
	})
}

// requireAuth rejects writes without a valid token when auth is enabled.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil {
			next.ServeHTTP(w, r)
			return
		}
		subject, err := s.auth.verifyRequest(r)
		if err != nil {
			s.logger.Warn("write rejected", "path", r.URL.Path, "error", err)
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		s.logger.Debug("write authorized", "subject", subject, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

// handleDashboard serves the main dashboard page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	if s.assets == nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	// read index.html from embedded assets
	content, err := fs.ReadFile(s.assets, "assets/index.html")
	if err != nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	// apply title substitution with HTML escaping to prevent XSS
	title := s.title
	if title == "" {
		title = defaultTitle
	}
	safeTitle := html.EscapeString(title)
	rendered := strings.ReplaceAll(string(content), titlePlaceholder, safeTitle)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err = w.Write([]byte(rendered)); err != nil {
		s.logger.Error("failed to write dashboard response", "error", err)
	}
}

// handleWidgets returns the current board summary as JSON.
func (s *Server) handleWidgets(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	s.writeJSON(w, http.StatusOK, s.backend.Board.Summary())
}

// errorResponse is the JSON body of every error reply.
type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// decodeBody reads a JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// ackStatus maps a failed write to an HTTP status.
func ackStatus(err error) int {
	switch {
	case errors.Is(err, docstore.ErrInvalidCollection),
		errors.Is(err, docstore.ErrInvalidDocumentID),
		errors.Is(err, dispatch.ErrUnknownSwitch):
		return http.StatusBadRequest
	case errors.Is(err, docstore.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, docstore.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
