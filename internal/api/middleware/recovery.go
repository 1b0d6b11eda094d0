package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/kiranshivaraju/servicemap/internal/api/response"
)

// Recovery turns a handler panic into a 500 envelope. The panic is logged
// with the caller's tenant so a bad topology row can be traced back.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			route := routePattern(r)
			if route == "" {
				route = "unmatched"
			}
			httpPanicsTotal.WithLabelValues(route).Inc()

			attrs := []any{
				"error", rec,
				"method", r.Method,
				"path", r.URL.Path,
				"route", route,
				"stack", string(debug.Stack()),
			}
			if tenantID, ok := GetTenantID(r); ok {
				attrs = append(attrs, "tenant_id", tenantID)
			}
			slog.Error("panic recovered", attrs...)

			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "An unexpected error occurred", nil)
		}()
		next.ServeHTTP(w, r)
	})
}
