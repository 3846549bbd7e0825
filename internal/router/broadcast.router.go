package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"broadcast-service/internal/handler"
)

// SetupRoutes configures the HTTP routes for the broadcast service.
func SetupRoutes(r chi.Router, h *handler.WebhookHandler, uploadDir string) chi.Router {
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
		},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/", h.Health)
	r.Get("/health", h.Health)
	r.Post("/webhook/sms", h.HandleInbound)
	r.Get("/api/v1/broadcast/stats", h.Stats)

	// Mirrored attachments are served back to recipients from here.
	if uploadDir != "" {
		fs := http.StripPrefix("/uploads/", http.FileServer(http.Dir(uploadDir)))
		r.Get("/uploads/*", fs.ServeHTTP)
	}

	return r
}
