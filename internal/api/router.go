package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds each component check on /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)
	r.Use(s.rateLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Route("/{uid}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.With(s.cacheMiddleware).Get("/readings/latest", s.handleDeviceLatest)
				r.With(s.authMiddleware).Put("/placement", s.handleMoveDevice)
			})
		})

		r.Route("/rooms", func(r chi.Router) {
			r.Get("/", s.handleListRooms)
			r.With(s.cacheMiddleware).Get("/summary", s.handleRoomSummaries)
			r.Get("/{id}", s.handleGetRoom)
			r.Get("/{id}/readings", s.handleRoomReadings)
		})

		r.With(s.cacheMiddleware).Get("/readings/latest", s.handleLatestReadings)
		r.Get("/ingest/stats", s.handleIngestStats)
		r.Get("/ws", s.handleWebSocket)

		r.Route("/provisioning", func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Post("/devices", s.handleProvisionDevice)
			r.Get("/status/{uid}", s.handleProvisioningStatus)
		})
	})

	return r
}

// handleHealth runs every registered health check. Any failure turns the
// response into a 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.health))
	for name := range s.health {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "ok"
	code := http.StatusOK
	components := make(map[string]string, len(names))
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.health[name].HealthCheck(ctx)
		cancel()
		if err != nil {
			components[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":     status,
		"version":    s.version,
		"components": components,
	})
}
