package middleware

import (
	"mime"
	"net/http"

	apperrors "eventmarket/pkg/errors"
	"eventmarket/pkg/logger"
)

// ContentTypeValidation requires a JSON body on writes that carry one. Bodyless
// POSTs such as accept and decline are let through.
func ContentTypeValidation(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if requiresContentType(r) {
				contentType := extractContentType(r.Header.Get("Content-Type"))
				if contentType != "application/json" {
					reject(w, r, log,
						apperrors.New(apperrors.CodeUnsupported, "Content-Type must be application/json", http.StatusUnsupportedMediaType),
						"Invalid Content-Type header", "content_type", contentType)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func requiresContentType(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return r.ContentLength != 0
	}
	return false
}

func extractContentType(header string) string {
	if header == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return mediaType
}
