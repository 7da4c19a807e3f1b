package server

import (
	"net/http"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/quotaward/quotaward/internal/errors"
	"github.com/quotaward/quotaward/internal/observability"
	"github.com/quotaward/quotaward/internal/server/handlers"
	servermw "github.com/quotaward/quotaward/internal/server/middleware"
)

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	health := s.deps.Health
	s.router.Get("/health", health.HealthHandler)
	s.router.Get("/health/live", health.LivenessHandler)
	s.router.Get("/health/ready", health.ReadinessHandler)
	s.router.Get("/health/startup", health.StartupHandler)

	s.router.Get("/version", handlers.VersionHandler)
	s.router.Get("/metrics", s.metricsHandler)

	s.registerQuotaRoutes()
	s.registerAdminEndpoints()
}

// registerQuotaRoutes puts the status endpoint and the upstream proxy behind
// authentication and quota enforcement.
func (s *Server) registerQuotaRoutes() {
	if s.deps.Quota == nil {
		return
	}

	s.router.Group(func(r chi.Router) {
		r.Use(servermw.Authenticate(s.deps.Auth))
		r.Use(servermw.Quota(s.deps.Quota))

		if s.deps.Reporter != nil {
			h := &handlers.QuotaHandler{Reporter: s.deps.Reporter}
			r.Get("/api/v1/quota/status", h.Status)
		}

		r.Handle("/api/*", s.upstream())
	})
}

func (s *Server) upstream() http.Handler {
	if s.deps.Upstream != nil {
		return s.deps.Upstream
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		HandleError(w, r, apperrors.NewNotFoundError("The requested resource was not found"))
	})
}

// registerAdminEndpoints registers cleanup and signal endpoints when an admin
// token is configured.
func (s *Server) registerAdminEndpoints() {
	logger := observability.ServerLogger
	token := s.deps.AdminToken

	if token == "" {
		if logger != nil {
			logger.Debug("Admin endpoints disabled (no admin.token set)")
		}
		return
	}

	if s.deps.Cleaner != nil {
		h := &handlers.QuotaHandler{Cleaner: s.deps.Cleaner, AdminToken: token}
		s.router.Post("/admin/quota/cleanup", h.Cleanup)
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: token,
		RateLimit: 10, // per minute
		RateBurst: 5,
		Manager:   nil,
	})
	s.router.Post("/admin/signal", handler.ServeHTTP)

	if logger != nil {
		logger.Info("Admin endpoints enabled",
			zap.Strings("paths", []string{"/admin/quota/cleanup", "/admin/signal"}),
			zap.String("auth", "bearer token"))
		logger.Warn("Admin endpoints enabled - ensure this server is not exposed to public internet")
	}
}
