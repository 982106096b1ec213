package middleware

import (
	"net/http"

	apperrors "eventmarket/pkg/errors"
	httputil "eventmarket/pkg/http"
	"eventmarket/pkg/logger"
	"eventmarket/pkg/session"
)

func reject(w http.ResponseWriter, r *http.Request, log *logger.Logger, err *apperrors.AppError, reason string, attrs ...any) {
	log.Warn(reason, append([]any{
		"request_id", session.RequestIDFromContext(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
	}, attrs...)...)

	_ = httputil.WriteError(w, err)
}
