// Package handler contains the HTTP handlers of the operator API. Handlers
// depend on narrow interfaces so tests can drive them without the full
// service graph.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/dmarques/spsync/internal/api/response"
	"github.com/dmarques/spsync/internal/store"
	"github.com/dmarques/spsync/pkg/models"
)

const maxIngestRows = 10000

// NewIngestProductsHandler returns the handler for POST /api/v1/products:
// upsert a batch of supplier catalog rows.
func NewIngestProductsHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Products []models.ProductDescriptor `json:"products"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if len(req.Products) == 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "products must not be empty", nil)
			return
		}
		if len(req.Products) > maxIngestRows {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "too many products in one batch", nil)
			return
		}

		// Malformed rows are rejected up front so the batch is all-or-nothing.
		for i, p := range req.Products {
			if err := p.Validate(); err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(),
					map[string]any{"row": i})
				return
			}
		}

		n, err := st.UpsertProducts(r.Context(), req.Products)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to store products", nil)
			return
		}
		response.Created(w, map[string]int{"upserted": n})
	}
}
