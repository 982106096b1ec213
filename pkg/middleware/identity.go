package middleware

import (
	"net/http"
	"strings"

	apperrors "eventmarket/pkg/errors"
	"eventmarket/pkg/logger"
	"eventmarket/pkg/model"
	"eventmarket/pkg/session"
)

const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

// ActorIdentity attaches the caller forwarded by the gateway to the request
// context. Requests without one are refused, except for the public paths.
func ActorIdentity(log *logger.Logger, publicPaths ...string) func(http.Handler) http.Handler {
	public := make(map[string]struct{}, len(publicPaths))
	for _, p := range publicPaths {
		public[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := public[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			actor := model.Actor{
				ID:   strings.TrimSpace(r.Header.Get(HeaderActorID)),
				Role: strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderActorRole))),
			}
			if actor.IsZero() || len(actor.ID) > 128 {
				reject(w, r, log, apperrors.Unauthorized("Authentication required"), "Missing actor identity")
				return
			}

			next.ServeHTTP(w, r.WithContext(session.WithActor(r.Context(), actor)))
		})
	}
}

// RequireRole refuses actors whose role is not listed.
func RequireRole(log *logger.Logger, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := session.ActorFromContext(r.Context())
			if !ok {
				reject(w, r, log, apperrors.Unauthorized("Authentication required"), "Missing actor identity")
				return
			}
			for _, role := range roles {
				if actor.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			reject(w, r, log, apperrors.Forbidden("Insufficient permissions"), "Role not permitted",
				"actor_id", actor.ID, "role", actor.Role)
		})
	}
}
