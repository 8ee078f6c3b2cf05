/**
 * @description
 * HTTP router setup for the marketplace-service using go-chi/chi.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new Chi router and registers marketplace routes.
func NewRouter(h *Handler, jwksURL string, internalKey string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Internal-API-Key"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Marketplace service is healthy"))
	})

	// Gateway webhooks authenticate by HMAC signature, not JWT.
	r.Post("/webhooks/paygate", h.handlePaygateWebhook)

	r.Route("/internal", func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalKey))
		r.Post("/fee-collection/run", h.handleRunFeeCollection)
	})

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwksURL))

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", h.handleCreateJob)
			r.Get("/{id}", h.handleGetJob)
			r.Patch("/{id}", h.handleUpdateJob)
			r.Delete("/{id}", h.handleDeleteJob)
			r.Post("/{id}/applications", h.handleCreateApplication)
		})

		r.Post("/applications/{id}/resolve", h.handleResolveApplication)
		r.Get("/platform-payments", h.handleListPlatformPayments)
	})

	return r
}
