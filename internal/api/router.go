package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds the database ping done by /api/health.
const healthCheckTimeout = 3 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Bearer auth applies only when security.jwt.secret is set
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/metrics", s.handleMetrics)

			r.Post("/command/send-command", s.handleSendCommand)

			r.Route("/settings", func(r chi.Router) {
				r.Post("/update-settings", s.handleUpdateSettings)
				r.Post("/request-settings/{deviceId}", s.handleRequestSettings)
				r.Get("/{deviceId}", s.handleGetSettings)
			})

			r.Route("/readings/{deviceId}", func(r chi.Router) {
				r.Get("/", s.handleListReadings)
				r.Get("/latest", s.handleLatestReading)
			})

			r.Get("/audit", s.handleListAuditLogs)

			// Browsers cannot set headers on the upgrade request; the
			// token may come as ?access_token= instead.
			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// healthResponse is the body of GET /api/health.
type healthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Broker   string `json:"broker"`
	Database string `json:"database"`
}

// handleHealth reports broker and database status.
// It answers 503 when the database ping fails; a disconnected broker only
// degrades the status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:   "ok",
		Version:  s.version,
		Broker:   "connected",
		Database: "ok",
	}
	status := http.StatusOK

	if !s.gateway.IsConnected() {
		resp.Broker = "disconnected"
		resp.Status = "degraded"
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()
	if err := s.db.HealthCheck(ctx); err != nil {
		s.logger.Warn("database health check failed", "error", err)
		resp.Database = "unavailable"
		resp.Status = "unavailable"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, resp)
}
