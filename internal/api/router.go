package api

import (
	"net/http"

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

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/catalog", s.handleCatalog)

		r.Route("/drivers", func(r chi.Router) {
			r.Get("/", s.handleListDrivers)

			r.Route("/{driverId}", func(r chi.Router) {
				r.Post("/discover/{type}", s.handleDiscover)
				r.Get("/auth", s.handleAuthProcess)
				r.Post("/auth/{step}", s.handleAuthStep)
			})
		})

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Post("/commands/{command}", s.handleRunCommand)
			})
		})

		r.Get("/events/{type}", s.handleListEvents)

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status. Drivers that failed to
// load degrade the status but do not fail the check.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	failures := s.service.Failures()
	if len(failures) > 0 {
		status = "degraded"
	}
	clients := 0
	if s.hub != nil {
		clients = s.hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          status,
		"version":         s.version,
		"driver_failures": len(failures),
		"ws_clients":      clients,
	})
}
