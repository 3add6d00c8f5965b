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

	// Probes live at the root so orchestrators reach them without the
	// API prefix.
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/models", func(r chi.Router) {
			r.Get("/", s.handleListModels)
			r.Post("/", s.handleRegisterModel)
			r.Get("/{id}", s.handleGetModel)
		})

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Post("/", s.handleCreateDevice)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Delete("/", s.handleDeleteDevice)
				r.Post("/start", s.handleStartDevice)
				r.Post("/stop", s.handleStopDevice)
				r.Get("/metrics", s.handleDeviceMetrics)
				r.Post("/bind", s.handleBindDevice)
				r.Post("/unbind", s.handleUnbindDevice)
				r.Get("/binding", s.handleDeviceBinding)
			})
		})

		r.Route("/groups", func(r chi.Router) {
			r.Post("/", s.handleCreateGroup)

			r.Route("/{id}", func(r chi.Router) {
				r.Post("/start", s.handleStartGroup)
				r.Post("/stop", s.handleStopGroup)
				r.Delete("/", s.handleDeleteGroup)
				r.Post("/dropout", s.handleDropout)
			})
		})

		r.Get("/stats", s.handleStats)

		// Inbound telemetry for HTTP-bound proxy devices.
		r.Post("/webhooks/{id}", s.handleWebhook)
	})

	return r
}
