package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/quotaward/quotaward/internal/errors"
	"github.com/quotaward/quotaward/internal/metrics"
	"github.com/quotaward/quotaward/internal/observability"
	"github.com/quotaward/quotaward/internal/server/handlers"
	servermw "github.com/quotaward/quotaward/internal/server/middleware"
)

// Dependencies are the components the gateway routes to. Nil Quota disables
// the quota routes and the proxy; nil Health serves an always-healthy manager.
type Dependencies struct {
	Quota    servermw.Evaluator
	Reporter handlers.StatusReporter
	Cleaner  handlers.Cleaner
	Health   *handlers.HealthManager
	Auth     servermw.AuthConfig

	// Upstream receives admitted /api/* traffic. Nil answers 404.
	Upstream http.Handler

	AdminToken string

	// Timeouts for the HTTP server. Zero values use the defaults.
	Timeouts Timeouts
}

// Timeouts bound reading, writing and idling connections.
type Timeouts struct {
	Read  time.Duration
	Write time.Duration
	Idle  time.Duration
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Read <= 0 {
		t.Read = 30 * time.Second
	}
	if t.Write <= 0 {
		t.Write = 30 * time.Second
	}
	if t.Idle <= 0 {
		t.Idle = 120 * time.Second
	}
	return t
}

// Server represents the HTTP server
type Server struct {
	router  *chi.Mux
	server  *http.Server
	host    string
	port    int
	deps    Dependencies
	started time.Time
	conns   atomic.Int64
}

// New creates a new HTTP server instance
func New(host string, port int, deps Dependencies) *Server {
	r := chi.NewRouter()

	// RequestID -> Metrics -> Recovery. Client addresses are read from the
	// forwarding headers by the quota middleware, so RemoteAddr is left as is.
	r.Use(servermw.RequestID)
	r.Use(servermw.RequestMetrics)
	r.Use(servermw.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewNotFoundError("The requested resource was not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewMethodNotAllowedError("The requested method is not allowed for this resource"))
	})

	if deps.Health == nil {
		deps.Health = handlers.NewHealthManager(handlers.AppVersion)
	}

	s := &Server{
		router: r,
		host:   host,
		port:   port,
		deps:   deps,
	}

	handlers.SetHTTPErrorResponder(HandleError)

	s.registerRoutes()

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)

	timeouts := s.deps.Timeouts.withDefaults()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       timeouts.Read,
		ReadHeaderTimeout: timeouts.Read,
		WriteTimeout:      timeouts.Write,
		IdleTimeout:       timeouts.Idle,
		ConnState:         s.trackConn,
	}

	s.started = time.Now()
	metrics.SetServerStartTime(s.started.Unix())

	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Starting HTTP server",
			zap.String("host", s.host),
			zap.Int("port", s.port),
			zap.String("addr", addr))
	}

	return s.server.ListenAndServe()
}

// trackConn keeps the open connection gauge current.
func (s *Server) trackConn(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		metrics.SetOpenConnections(s.conns.Add(1))
	case http.StateClosed, http.StateHijacked:
		metrics.SetOpenConnections(s.conns.Add(-1))
	}
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Shutting down HTTP server")
	}
	if !s.started.IsZero() {
		metrics.SetServerUptime(int64(time.Since(s.started).Seconds()))
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the underlying router for testing and instrumentation
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the server port for testing
func (s *Server) Port() int {
	return s.port
}
