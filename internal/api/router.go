package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/dmarques/spsync/internal/api/middleware"
	"github.com/dmarques/spsync/internal/api/response"
	"github.com/dmarques/spsync/pkg/models"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	IngestProducts      http.HandlerFunc
	ClassifyHandler     http.HandlerFunc
	ListClassifications http.HandlerFunc
	ApproveHandler      http.HandlerFunc
	BulkApproveHandler  http.HandlerFunc

	SyncHandler         http.HandlerFunc
	RefreshListings     http.HandlerFunc
	ListRunsHandler     http.HandlerFunc
	GetRunHandler       http.HandlerFunc

	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/products", orNotImplemented(deps.IngestProducts))
		r.Post("/api/v1/classify", orNotImplemented(deps.ClassifyHandler))

		r.Get("/api/v1/classifications", orNotImplemented(deps.ListClassifications))
		r.Post("/api/v1/classifications/approve", orNotImplemented(deps.ApproveHandler))
		r.Post("/api/v1/classifications/bulk-approve", orNotImplemented(deps.BulkApproveHandler))

		r.Post("/api/v1/sync", orNotImplemented(deps.SyncHandler))
		r.Post("/api/v1/listings/refresh", orNotImplemented(deps.RefreshListings))

		r.Get("/api/v1/runs", orNotImplemented(deps.ListRunsHandler))
		r.Get("/api/v1/runs/{runID}", orNotImplemented(deps.GetRunHandler))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(models.ScopeAdmin))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
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
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
