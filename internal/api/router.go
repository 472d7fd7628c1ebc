package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter constructs the HTTP route tree with all middleware.
//
// Route structure:
//
//	/api/v1/health              - Health check (no auth)
//	/api/v1/me                  - Authenticated account profile
//	/api/v1/accounts            - Account registration
//	/api/v1/store/...           - Catalog browsing and purchase
//	/api/v1/devices/...         - Owned devices and state history
//	/ws                         - WebSocket endpoint (token query param auth)
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied in order
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health endpoint requires no authentication
		r.Get("/health", s.handleHealth)

		// Everything else requires a valid bearer token
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/me", s.handleMe)
			r.Put("/me", s.handleUpdateMe)
			r.Post("/accounts", s.handleRegisterAccount)

			r.Route("/store", func(r chi.Router) {
				r.Get("/devices", s.handleListCatalog)
				r.Get("/devices/{id}", s.handleGetCatalogEntry)
				r.Post("/purchase", s.handlePurchase)
			})

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.Get("/{id}", s.handleGetDevice)
				r.Get("/{id}/history", s.handleGetDeviceHistory)
			})
		})
	})

	// WebSocket auth happens in the handler (query parameter token),
	// not through the bearer token middleware.
	wsPath := s.wsCfg.Path
	if wsPath == "" {
		wsPath = "/ws"
	}
	r.Get(wsPath, s.handleWS)

	return r
}

// handleHealth returns the API health status.
//
// This endpoint is intentionally unauthenticated for load balancer probes.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.version,
	})
}
