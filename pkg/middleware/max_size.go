package middleware

import (
	"net/http"

	apperrors "eventmarket/pkg/errors"
	"eventmarket/pkg/logger"
)

// MaxRequestSize rejects declared oversized bodies up front and caps the
// rest with http.MaxBytesReader.
func MaxRequestSize(limit int64, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				reject(w, r, log,
					apperrors.New(apperrors.CodeTooLarge, "Request body too large", http.StatusRequestEntityTooLarge),
					"Request body too large", "content_length", r.ContentLength, "limit", limit)
				return
			}
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}
