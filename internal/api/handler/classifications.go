package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/dmarques/spsync/internal/api/response"
	"github.com/dmarques/spsync/internal/spapi"
	"github.com/dmarques/spsync/internal/store"
	"github.com/dmarques/spsync/pkg/models"
)

// Classifier runs resolution and pricing over all stored products.
type Classifier interface {
	ClassifyAll(ctx context.Context) ([]models.RowReport, error)
}

// Approver promotes review rows to concrete catalog matches.
type Approver interface {
	Approve(ctx context.Context, sku, asin string) (*models.Classification, error)
	BulkApprove(ctx context.Context, skus []string) (int, error)
}

// NewClassifyHandler returns the handler for POST /api/v1/classify.
func NewClassifyHandler(svc Classifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reports, err := svc.ClassifyAll(r.Context())
		if err != nil {
			if errors.Is(err, spapi.ErrAuth) {
				response.Error(w, http.StatusBadGateway, "MARKETPLACE_AUTH",
					"Marketplace credential exchange failed", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Classification failed", nil)
			return
		}
		response.JSON(w, map[string]any{"rows": reports})
	}
}

// NewListClassificationsHandler returns the handler for
// GET /api/v1/classifications with optional status/action/limit filters.
func NewListClassificationsHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := store.ClassificationFilter{
			Status: r.URL.Query().Get("status"),
			Action: r.URL.Query().Get("action"),
		}
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a positive integer", nil)
				return
			}
			filter.Limit = n
		}

		rows, err := st.ListClassifications(r.Context(), filter)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list classifications", nil)
			return
		}
		response.JSON(w, rows)
	}
}

// NewApproveHandler returns the handler for
// POST /api/v1/classifications/approve: one sku, optionally an explicit asin.
func NewApproveHandler(svc Approver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			SKU  string `json:"sku"`
			ASIN string `json:"asin"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.SKU == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "sku is required", nil)
			return
		}

		c, err := svc.Approve(r.Context(), req.SKU, req.ASIN)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Classification not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusConflict, "NOT_APPROVABLE", err.Error(), nil)
			return
		}
		response.JSON(w, c)
	}
}

// NewBulkApproveHandler returns the handler for
// POST /api/v1/classifications/bulk-approve.
func NewBulkApproveHandler(svc Approver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			SKUs []string `json:"skus"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if len(req.SKUs) == 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "skus must not be empty", nil)
			return
		}

		n, err := svc.BulkApprove(r.Context(), req.SKUs)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Bulk approval failed", nil)
			return
		}
		response.JSON(w, map[string]int{"approved": n})
	}
}
