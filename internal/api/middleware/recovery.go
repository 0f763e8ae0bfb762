package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/kiranshivaraju/tenantsvc/internal/api/response"
)

// Recovery turns a handler panic into a 500 envelope. http.ErrAbortHandler
// is re-raised so the server can drop the connection.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}

			attrs := []any{
				"panic", rec,
				"method", r.Method,
				"path", r.URL.Path,
				"request_id", RequestID(r.Context()),
			}
			if p, ok := GetPrincipal(r); ok {
				attrs = append(attrs, "user", p.UserName)
			}
			slog.ErrorContext(r.Context(), "panic recovered", append(attrs, "stack", string(debug.Stack()))...)

			response.Error(w, http.StatusInternalServerError,
				response.CodeInternalError, "An unexpected error occurred", nil)
		}()
		next.ServeHTTP(w, r)
	})
}
