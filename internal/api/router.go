// Package api assembles the HTTP surface: middleware stack, scoped route
// groups and the public health and metrics endpoints.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/servicemap/internal/api/middleware"
	"github.com/kiranshivaraju/servicemap/internal/api/response"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies holds all handler and middleware dependencies for the router.
// A nil handler is served as 501.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler  http.HandlerFunc
	MetricsHandler http.Handler

	GetTopology http.HandlerFunc
	GetService  http.HandlerFunc

	CreateService    http.HandlerFunc
	UpdateService    http.HandlerFunc
	DeleteService    http.HandlerFunc
	CreateDependency http.HandlerFunc
	DeleteDependency http.HandlerFunc

	ListApplications  http.HandlerFunc
	GetApplication    http.HandlerFunc
	CreateApplication http.HandlerFunc
	UpdateApplication http.HandlerFunc
	DeleteApplication http.HandlerFunc

	SyncProvider     http.HandlerFunc
	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.Logger)
	r.Use(mw.Metrics)
	r.Use(mw.Recovery)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	metrics := deps.MetricsHandler
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", orNotImplemented(deps.HealthHandler))

		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.Authenticate)
			r.Use(deps.RateLimit.Limit)
			protectedRoutes(r, deps)
		})
	})

	return r
}

func protectedRoutes(r chi.Router, deps Dependencies) {
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.RequireScope(mw.ScopeRead))

		r.Get("/topology", orNotImplemented(deps.GetTopology))
		r.Get("/services/{id}", orNotImplemented(deps.GetService))
		r.Get("/applications", orNotImplemented(deps.ListApplications))
		r.Get("/applications/{id}", orNotImplemented(deps.GetApplication))
	})

	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.RequireScope(mw.ScopeWrite))

		r.Post("/services", orNotImplemented(deps.CreateService))
		r.Put("/services/{id}", orNotImplemented(deps.UpdateService))
		r.Delete("/services/{id}", orNotImplemented(deps.DeleteService))
		r.Post("/services/{id}/dependencies/{targetID}", orNotImplemented(deps.CreateDependency))
		r.Delete("/services/{id}/dependencies/{targetID}", orNotImplemented(deps.DeleteDependency))

		r.Post("/applications", orNotImplemented(deps.CreateApplication))
		r.Put("/applications/{id}", orNotImplemented(deps.UpdateApplication))
		r.Delete("/applications/{id}", orNotImplemented(deps.DeleteApplication))
	})

	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.RequireScope(mw.ScopeAdmin))

		r.Post("/providers/{providerID}/sync", orNotImplemented(deps.SyncProvider))

		r.Post("/admin/keys", orNotImplemented(deps.CreateKeyHandler))
		r.Get("/admin/keys", orNotImplemented(deps.ListKeysHandler))
		r.Delete("/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
	})
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not available", nil)
	}
}
