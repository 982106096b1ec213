package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"eventmarket/internal/identity"
	"eventmarket/internal/locks/service"
	apperrors "eventmarket/pkg/errors"
	httputil "eventmarket/pkg/http"
	"eventmarket/pkg/logger"
	"eventmarket/pkg/middleware"
	"eventmarket/pkg/model"
	"eventmarket/pkg/session"

	"github.com/julienschmidt/httprouter"
)

type LockHandler struct {
	service  service.LockService
	resolver *identity.Resolver
	log      *logger.Logger
}

// NewLockHandler builds the HTTP surface of the lock service. resolver may
// be nil, in which case holders are returned without display names.
func NewLockHandler(service service.LockService, resolver *identity.Resolver, log *logger.Logger) *LockHandler {
	return &LockHandler{
		service:  service,
		resolver: resolver,
		log:      log,
	}
}

func (h *LockHandler) Acquire(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.AcquireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Acquire", apperrors.InvalidInput("Invalid request body"))
		return
	}

	outcome, err := h.service.Acquire(r.Context(), actor(r), &req)
	if err != nil {
		h.writeError(w, "Acquire", err)
		return
	}

	h.enrich(r.Context(), outcome.Holder)
	h.writeSuccess(w, "Acquire", outcome)
}

func (h *LockHandler) Status(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	key, err := resourceKey(ps)
	if err != nil {
		h.writeError(w, "Status", err)
		return
	}

	status, err := h.service.IsLocked(r.Context(), key)
	if err != nil {
		h.writeError(w, "Status", err)
		return
	}

	h.enrich(r.Context(), status.Holder)
	h.writeSuccess(w, "Status", status)
}

func (h *LockHandler) Renew(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	key, err := resourceKey(ps)
	if err != nil {
		h.writeError(w, "Renew", err)
		return
	}

	var req model.RenewRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, "Renew", apperrors.InvalidInput("Invalid request body"))
			return
		}
	}

	outcome, err := h.service.Renew(r.Context(), actor(r), key, req.LeaseID)
	if err != nil {
		h.writeError(w, "Renew", err)
		return
	}

	h.writeSuccess(w, "Renew", outcome)
}

func (h *LockHandler) Release(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	key, err := resourceKey(ps)
	if err != nil {
		h.writeError(w, "Release", err)
		return
	}

	if err := h.service.Release(r.Context(), actor(r), key); err != nil {
		h.writeError(w, "Release", err)
		return
	}

	httputil.WriteNoContent(w)
}

func (h *LockHandler) Wait(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	key, err := resourceKey(ps)
	if err != nil {
		h.writeError(w, "Wait", err)
		return
	}

	maxWait, err := httputil.ExtractDuration(r, "max_wait", 0)
	if err != nil {
		h.writeError(w, "Wait", err)
		return
	}

	outcome, err := h.service.WaitForLock(r.Context(), key, maxWait)
	if err != nil {
		h.writeError(w, "Wait", err)
		return
	}

	if outcome.LastHolder != nil {
		h.enrich(r.Context(), outcome.LastHolder.Holder)
	}
	h.writeSuccess(w, "Wait", outcome)
}

func (h *LockHandler) ForceRelease(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	key, err := resourceKey(ps)
	if err != nil {
		h.writeError(w, "ForceRelease", err)
		return
	}

	var req model.ForceReleaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "ForceRelease", apperrors.InvalidInput("Invalid request body"))
		return
	}

	result, err := h.service.ForceRelease(r.Context(), actor(r), key, &req)
	if err != nil {
		h.writeError(w, "ForceRelease", err)
		return
	}

	h.enrich(r.Context(), result.PreviousHolder)
	h.writeSuccess(w, "ForceRelease", result)
}

func (h *LockHandler) List(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "List", err)
		return
	}

	resourceType := model.ResourceType(r.URL.Query().Get("type"))
	locks, total, err := h.service.List(r.Context(), resourceType, limit, offset)
	if err != nil {
		h.writeError(w, "List", err)
		return
	}

	holders := make([]*model.Holder, 0, len(locks))
	for _, l := range locks {
		holders = append(holders, l.Holder)
	}
	h.enrich(r.Context(), holders...)

	if err := httputil.WritePaginated(w, locks, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "List", "operation", "WritePaginated", "error", err)
	}
}

func (h *LockHandler) Purge(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	result, err := h.service.PurgeExpired(r.Context())
	if err != nil {
		h.writeError(w, "Purge", err)
		return
	}

	h.writeSuccess(w, "Purge", result)
}

func (h *LockHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/locks", h.Acquire)
	router.GET("/api/v1/locks/:type/:id", h.Status)
	router.PUT("/api/v1/locks/:type/:id/renew", h.Renew)
	router.DELETE("/api/v1/locks/:type/:id", h.Release)
	router.GET("/api/v1/locks/:type/:id/wait", h.Wait)

	router.Handler(http.MethodGet, "/api/v1/admin/locks", h.adminOnly(h.List))
	router.Handler(http.MethodPost, "/api/v1/admin/locks/purge", h.adminOnly(h.Purge))
	router.Handler(http.MethodDelete, "/api/v1/admin/locks/:type/:id", h.adminOnly(h.ForceRelease))
}

func (h *LockHandler) adminOnly(handle httprouter.Handle) http.Handler {
	return middleware.RequireRole(h.log, model.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handle(w, r, httprouter.ParamsFromContext(r.Context()))
	}))
}

func (h *LockHandler) enrich(ctx context.Context, holders ...*model.Holder) {
	if h.resolver != nil {
		h.resolver.Enrich(ctx, holders...)
	}
}

func (h *LockHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *LockHandler) writeSuccess(w http.ResponseWriter, handler string, data any) {
	if err := httputil.WriteSuccess(w, data); err != nil {
		h.log.Error("failed to write success response", "handler", handler, "operation", "WriteSuccess", "error", err)
	}
}

func resourceKey(ps httprouter.Params) (model.ResourceKey, error) {
	key, err := model.ParseResourceKey(ps.ByName("type") + ":" + ps.ByName("id"))
	if err != nil {
		return model.ResourceKey{}, apperrors.InvalidInput(err.Error())
	}
	return key, nil
}

func actor(r *http.Request) model.Actor {
	a, _ := session.ActorFromContext(r.Context())
	return a
}
