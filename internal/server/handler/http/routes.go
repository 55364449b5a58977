package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/atinyakov/LoginKeeper/internal/metrics"
	"github.com/atinyakov/LoginKeeper/internal/middleware"
)

// NewRouter builds the storage backend API.
//
// Middleware chain (applied in order):
//  1. AllowContentType("application/json") rejects bodies of other types
//  2. WithRequestLogging logs and counts requests
//  3. CertAuth enforces the client certificate outside middleware.PublicPaths
func NewRouter(
	authHandler *AuthHandler,
	credHandler *CredentialHandler,
	logger *zap.Logger,
	m *metrics.Metrics,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.AllowContentType("application/json"))
	r.Use(middleware.WithRequestLogging(logger, m))
	r.Use(middleware.CertAuth)

	r.Method(http.MethodGet, "/metrics", m.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Get("/session", authHandler.Session)
		r.Post("/check-strength", credHandler.CheckStrength)

		r.Route("/credentials", func(r chi.Router) {
			r.Get("/", credHandler.List)
			r.Post("/", credHandler.Create)
			r.Post("/exists", credHandler.Exists)
			r.Get("/health", credHandler.Health)
			r.Get("/{id}", credHandler.Get)
			r.Delete("/{id}", credHandler.Delete)
			r.Post("/{id}/favorite", credHandler.ToggleFavorite)
		})
	})

	return r
}
