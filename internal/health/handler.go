package health

import (
	"context"
	"net/http"
	"time"

	"eventmarket/pkg/contracts"
	httputil "eventmarket/pkg/http"
	"eventmarket/pkg/logger"

	"github.com/julienschmidt/httprouter"
)

type Response struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
	Driver   string `json:"driver,omitempty"`
}

type Handler struct {
	db     contracts.Pinger
	driver string
	log    *logger.Logger
}

func NewHandler(db contracts.Pinger, driver string, log *logger.Logger) *Handler {
	return &Handler{db: db, driver: driver, log: log}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := httputil.WriteJSON(w, http.StatusOK, Response{Status: "ok"}); err != nil {
		h.log.Error("failed to write JSON response", "handler", "Health", "operation", "WriteJSON", "error", err)
	}
}

func (h *Handler) Ready(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, resp := http.StatusOK, Response{Status: "ready", Database: "ok", Driver: h.driver}
	if err := h.db.Ping(ctx); err != nil {
		h.log.Error("Database health check failed", "error", err, "driver", h.driver)
		status, resp = http.StatusServiceUnavailable, Response{Status: "unavailable", Database: "error", Driver: h.driver}
	}

	if err := httputil.WriteJSON(w, status, resp); err != nil {
		h.log.Error("failed to write JSON response", "handler", "Ready", "operation", "WriteJSON", "error", err)
	}
}

func (h *Handler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
}
