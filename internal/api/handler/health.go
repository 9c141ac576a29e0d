package handler

import (
	"net/http"

	"github.com/dmarques/spsync/internal/api/response"
	"github.com/dmarques/spsync/internal/cache"
	"github.com/dmarques/spsync/internal/store"
)

// NewHealthHandler returns the handler for GET /api/v1/health. Reports the
// database and cache as individual components; any failure is a 503.
func NewHealthHandler(st store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		components := map[string]string{"database": "ok", "redis": "ok"}
		healthy := true

		if err := st.Ping(r.Context()); err != nil {
			components["database"] = err.Error()
			healthy = false
		}
		if err := c.Ping(r.Context()); err != nil {
			components["redis"] = err.Error()
			healthy = false
		}

		status := "ok"
		code := http.StatusOK
		if !healthy {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		response.Status(w, code, map[string]any{"status": status, "components": components})
	}
}
