package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates and configures the HTTP router
func NewRouter(handlers *Handlers, authMiddleware *AuthMiddleware, loggingMiddleware *LoggingMiddleware) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware - ORDER MATTERS!
	r.Use(EscapedRouting)            // Route on the encoded path so ids may contain "/"
	r.Use(middleware.RequestID)      // Generate request ID first
	r.Use(middleware.RealIP)         // Extract real IP
	r.Use(loggingMiddleware.Handler) // Add logger to context with request ID
	r.Use(middleware.Recoverer)      // Panic recovery

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check endpoint (no auth required)
	r.Get("/health", handlers.Health)

	r.Route("/v1", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		// Live stream runs until the run goes idle, so it stays outside the timeout
		r.Get("/runs/{workflow_id}/{run_id}/events", handlers.StreamEvents)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			// Runs
			r.Get("/runs", handlers.ListRuns)
			r.Get("/runs/{workflow_id}/{run_id}", handlers.GetRun)
			r.Post("/runs/{workflow_id}/{run_id}/terminate", handlers.TerminateRun)

			// Stages
			r.Get("/runs/{workflow_id}/{run_id}/stages/{stage}/output", handlers.StageOutput)
			r.Get("/runs/{workflow_id}/{run_id}/stages/{stage}/export", handlers.ExportStage)
			r.Post("/runs/{workflow_id}/{run_id}/stages/{stage}/retry", handlers.RetryStage)

			// Backend credentials
			r.Get("/api-keys", handlers.ListAPIKeys)
			r.Post("/api-keys", handlers.SetAPIKey)
			r.Delete("/api-keys/{service}", handlers.DeleteAPIKey)
		})
	})

	return r
}
