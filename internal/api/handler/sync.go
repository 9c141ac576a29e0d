package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/dmarques/spsync/internal/api/response"
	"github.com/dmarques/spsync/internal/run"
	"github.com/dmarques/spsync/internal/spapi"
	"github.com/dmarques/spsync/pkg/models"
)

// Syncer executes one whole sync run.
type Syncer interface {
	Sync(ctx context.Context) (*models.RunSummary, error)
}

// ListingsRefresher rebuilds the seller listings index from a fresh report.
type ListingsRefresher interface {
	RefreshListings(ctx context.Context) (int, error)
}

// NewSyncHandler returns the handler for POST /api/v1/sync. Runs are
// serialized: a second call while one is running gets 409.
func NewSyncHandler(svc Syncer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := svc.Sync(r.Context())
		if err != nil {
			switch {
			case errors.Is(err, run.ErrRunInProgress):
				response.Error(w, http.StatusConflict, "RUN_IN_PROGRESS",
					"Another sync run is in progress", nil)
			case errors.Is(err, spapi.ErrAuth):
				response.Error(w, http.StatusBadGateway, "MARKETPLACE_AUTH",
					"Marketplace credential exchange failed", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Sync run failed", nil)
			}
			return
		}
		response.JSON(w, summary)
	}
}

// NewRefreshListingsHandler returns the handler for
// POST /api/v1/listings/refresh.
func NewRefreshListingsHandler(svc ListingsRefresher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := svc.RefreshListings(r.Context())
		if err != nil {
			if errors.Is(err, spapi.ErrAuth) {
				response.Error(w, http.StatusBadGateway, "MARKETPLACE_AUTH",
					"Marketplace credential exchange failed", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Listings refresh failed", nil)
			return
		}
		response.JSON(w, map[string]int{"listings": n})
	}
}
