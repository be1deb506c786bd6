package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all analysis routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/analysis", func(r chi.Router) {
		// Pipeline
		r.Post("/run", h.HandleRun)
		r.Get("/runs", h.HandleListRuns)
		r.Get("/runs/{id}", h.HandleGetRun)

		// Building blocks
		r.Post("/stats", h.HandleStats)
		r.Post("/returns", h.HandleReturns)
		r.Get("/frontier/stream", h.HandleFrontierStream)
	})
}
