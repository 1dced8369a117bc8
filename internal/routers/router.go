package routers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"codesync/internal/api"
	"codesync/internal/metrics"
)

func New(h *api.Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/api/v1/healthz", h.Health)

	r.Get("/api/v1/languages", h.ListLanguages)
	r.Post("/api/v1/run", h.RunOnce)
	r.Get("/api/v1/sessions/{id}", h.GetSession)

	r.Get("/ws", h.CollabWS)

	r.Handle("/metrics", metrics.Handler())

	return r
}
