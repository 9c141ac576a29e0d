package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmarques/spsync/internal/api/response"
	"github.com/dmarques/spsync/internal/store"
)

// NewListRunsHandler returns the handler for GET /api/v1/runs.
func NewListRunsHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 20
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > 100 {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be 1-100", nil)
				return
			}
			limit = n
		}

		runs, err := st.ListRuns(r.Context(), limit)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list runs", nil)
			return
		}
		response.JSON(w, runs)
	}
}

// NewGetRunHandler returns the handler for GET /api/v1/runs/{runID}.
func NewGetRunHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "runID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "runID must be a UUID", nil)
			return
		}

		run, err := st.GetRun(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Run not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load run", nil)
			return
		}
		response.JSON(w, run)
	}
}
