package handler

import (
	"encoding/json"
	"net/http"

	"eventmarket/internal/identity"
	"eventmarket/internal/jobcarts/service"
	apperrors "eventmarket/pkg/errors"
	httputil "eventmarket/pkg/http"
	"eventmarket/pkg/logger"
	"eventmarket/pkg/middleware"
	"eventmarket/pkg/model"
	"eventmarket/pkg/session"

	"github.com/julienschmidt/httprouter"
)

type JobCartHandler struct {
	service  service.JobCartService
	resolver *identity.Resolver
	log      *logger.Logger
}

func NewJobCartHandler(service service.JobCartService, resolver *identity.Resolver, log *logger.Logger) *JobCartHandler {
	return &JobCartHandler{
		service:  service,
		resolver: resolver,
		log:      log,
	}
}

func (h *JobCartHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var cart model.JobCart
	if err := json.NewDecoder(r.Body).Decode(&cart); err != nil {
		h.writeError(w, "Create", apperrors.InvalidInput("Invalid request body"))
		return
	}

	if err := h.service.Create(r.Context(), actor(r), &cart); err != nil {
		h.writeError(w, "Create", err)
		return
	}

	if err := httputil.WriteCreated(w, cart); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "operation", "WriteCreated", "error", err)
	}
}

func (h *JobCartHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	cart, err := h.service.GetByID(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	h.writeSuccess(w, "GetByID", cart)
}

func (h *JobCartHandler) Available(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "Available", err)
		return
	}

	query := r.URL.Query()
	filter := model.JobCartFilter{
		Location:    query.Get("location"),
		ServiceType: query.Get("service_type"),
	}

	carts, total, err := h.service.GetAvailableJobCarts(r.Context(), actor(r).ID, filter, limit, offset)
	if err != nil {
		h.writeError(w, "Available", err)
		return
	}

	if err := httputil.WritePaginated(w, carts, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "Available", "operation", "WritePaginated", "error", err)
	}
}

func (h *JobCartHandler) Accept(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	result, err := h.service.AcceptJobCart(r.Context(), ps.ByName("id"), actor(r).ID)
	if err != nil {
		h.writeError(w, "Accept", err)
		return
	}

	if h.resolver != nil && result.ClaimedBy != nil {
		h.resolver.Enrich(r.Context(), result.ClaimedBy)
	}
	h.writeSuccess(w, "Accept", result)
}

func (h *JobCartHandler) Decline(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	result, err := h.service.DeclineJobCart(r.Context(), ps.ByName("id"), actor(r).ID)
	if err != nil {
		h.writeError(w, "Decline", err)
		return
	}

	h.writeSuccess(w, "Decline", result)
}

func (h *JobCartHandler) QuotationPermission(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	permission, err := h.service.CanUploadQuotation(r.Context(), ps.ByName("id"), actor(r).ID)
	if err != nil {
		h.writeError(w, "QuotationPermission", err)
		return
	}

	h.writeSuccess(w, "QuotationPermission", permission)
}

func (h *JobCartHandler) RegisterRoutes(router *httprouter.Router) {
	clients := middleware.RequireRole(h.log, model.RoleClient, model.RoleAdmin)
	providers := middleware.RequireRole(h.log, model.RoleServiceProvider)

	router.Handler(http.MethodPost, "/api/v1/job-carts", clients(handle(h.Create)))
	router.GET("/api/v1/job-carts/id/:id", h.GetByID)

	router.Handler(http.MethodGet, "/api/v1/job-carts/available", providers(handle(h.Available)))
	router.Handler(http.MethodPost, "/api/v1/job-carts/id/:id/accept", providers(handle(h.Accept)))
	router.Handler(http.MethodPost, "/api/v1/job-carts/id/:id/decline", providers(handle(h.Decline)))
	router.Handler(http.MethodGet, "/api/v1/job-carts/id/:id/quotation-permission", providers(handle(h.QuotationPermission)))
}

// handle adapts an httprouter.Handle so it can sit behind plain middleware.
func handle(fn httprouter.Handle) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fn(w, r, httprouter.ParamsFromContext(r.Context()))
	})
}

func (h *JobCartHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *JobCartHandler) writeSuccess(w http.ResponseWriter, handler string, data any) {
	if err := httputil.WriteSuccess(w, data); err != nil {
		h.log.Error("failed to write success response", "handler", handler, "operation", "WriteSuccess", "error", err)
	}
}

func actor(r *http.Request) model.Actor {
	a, _ := session.ActorFromContext(r.Context())
	return a
}
