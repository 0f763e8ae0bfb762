package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/tenantsvc/internal/api/middleware"
	"github.com/kiranshivaraju/tenantsvc/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit
	Metrics   *mw.Metrics // optional

	HealthHandler http.HandlerFunc

	CreateTenant      http.HandlerFunc
	ListTenantsPaging http.HandlerFunc
	ListTenants       http.HandlerFunc
	UpdateTenant      http.HandlerFunc
	DeleteTenant      http.HandlerFunc
	VerifyTenantCode  http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Instrument)
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotFound, response.CodeResourceNotFound, "Resource not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, response.CodeMethodNotAllowed, "Method not allowed", nil)
	})

	// Public health check
	r.Get("/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Route("/tenant", func(r chi.Router) {
			r.Post("/create", orNotImplemented(deps.CreateTenant))
			r.Get("/list-paging", orNotImplemented(deps.ListTenantsPaging))
			r.Get("/list", orNotImplemented(deps.ListTenants))
			r.Post("/update", orNotImplemented(deps.UpdateTenant))
			r.Post("/delete", orNotImplemented(deps.DeleteTenant))
			r.Get("/verify-tenant-code", orNotImplemented(deps.VerifyTenantCode))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, response.CodeNotImplemented, "Endpoint not yet implemented", nil)
	}
}
