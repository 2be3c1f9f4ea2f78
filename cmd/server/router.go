package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/voxlate/voxlate-api/internal/api"
	apiMiddleware "github.com/voxlate/voxlate-api/internal/api/middleware"
)

// setupRouter creates and configures the application router with all
// routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	// Apply standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	taskHandler := api.NewTaskHandler(app.submitService, app.statusService, app.logger)
	creditHandler := api.NewCreditHandler(app.creditService, app.logger)
	internalHandler := api.NewInternalHandler(
		app.executor, app.creditService, app.config.Dispatch.TriggerSecret, app.logger)
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.config.Auth.JWTSecret)

	r.Route("/api", func(r chi.Router) {
		// Owner-facing routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)
			r.Post("/tasks", taskHandler.SubmitTask)
			r.Get("/tasks/{id}", taskHandler.GetTask)
			r.Get("/credits/balance", creditHandler.GetBalance)
		})

		// Service-to-service routes guarded by the shared secret
		r.Route("/internal", func(r chi.Router) {
			r.Use(internalHandler.Authorize)
			r.Post("/tasks/process", internalHandler.ProcessTask)
			r.Post("/credits/grant", internalHandler.GrantCredits)
		})
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}
