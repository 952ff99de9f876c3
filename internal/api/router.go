package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Device history
		r.Route("/devices/{type}/{id}/history", func(r chi.Router) {
			r.Get("/", s.handleGetHistory)
			r.Post("/sync", s.handleSyncHistory)
			r.Get("/export", s.handleExportHistory)
		})

		// Tank registry
		r.Route("/tanks", func(r chi.Router) {
			r.Get("/", s.handleListTanks)
			r.Post("/", s.handleSaveTank)

			r.Route("/{deviceID}", func(r chi.Router) {
				r.Get("/", s.handleGetTank)
				r.Put("/", s.handleSaveTank)
				r.Delete("/", s.handleDeleteTank)
			})
		})
	})

	return r
}

// healthCheckTimeout bounds each component probe in the health handler.
const healthCheckTimeout = 2 * time.Second

// handleHealth returns the server health status, including the state of
// optional infrastructure components.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := map[string]string{}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := "ok"
	if s.db != nil {
		if err := s.db.HealthCheck(ctx); err != nil {
			components["database"] = err.Error()
			status = "degraded"
		} else {
			components["database"] = "ok"
		}
	}
	if s.mqtt != nil {
		if err := s.mqtt.HealthCheck(ctx); err != nil {
			components["mqtt"] = err.Error()
			status = "degraded"
		} else {
			components["mqtt"] = "ok"
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"version":    s.version,
		"components": components,
	})
}
