package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/dmarques/spsync/internal/api/response"
)

// Recovery converts handler panics into a 500 response instead of tearing
// down the connection. The stack is logged once, at the recovery point.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("panic recovered",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"stack", string(debug.Stack()),
				)
				response.Error(w, http.StatusInternalServerError,
					"INTERNAL_ERROR", "An unexpected error occurred", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
