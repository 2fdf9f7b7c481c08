package middleware

import (
	"net/http"

	"shipmode-access/internal/common/logging"
)

// RecoveryMiddleware converts panics into a 500 response. No panic is
// allowed to escape to the transport layer, and no stack trace appears in
// the response body.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logging.Error("Panic recovered in handler", nil,
					logging.Field{Key: "panic", Value: rec},
					logging.Field{Key: "method", Value: r.Method},
					logging.Field{Key: "path", Value: r.URL.Path},
				)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`{"error": "internal server error"}`))
			}
		}()

		next.ServeHTTP(w, r)
	})
}
