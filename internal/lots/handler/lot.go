package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"smartpark/internal/lots/service"
	apperrors "smartpark/pkg/errors"
	httputil "smartpark/pkg/http"
	"smartpark/pkg/logger"
	"smartpark/pkg/middleware"
	"smartpark/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type LotHandler struct {
	service service.LotService
	log     *logger.Logger
}

func NewLotHandler(service service.LotService, log *logger.Logger) *LotHandler {
	return &LotHandler{
		service: service,
		log:     log,
	}
}

func (h *LotHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		h.writeError(w, "Create", apperrors.Unauthorized("Missing principal"))
		return
	}

	var lot model.Lot
	if err := json.NewDecoder(r.Body).Decode(&lot); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Create", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	if err := h.service.Create(r.Context(), principal, &lot); err != nil {
		h.writeError(w, "Create", err)
		return
	}

	if err := httputil.WriteCreated(w, lot); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "operation", "WriteCreated", "error", err)
	}
}

func (h *LotHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")

	lot, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	if err := httputil.WriteSuccess(w, lot); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

func (h *LotHandler) GetAll(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "GetAll", err)
		return
	}

	lots, total, err := h.service.GetAll(r.Context(), limit, offset)
	if err != nil {
		h.writeError(w, "GetAll", err)
		return
	}

	if err := httputil.WritePaginated(w, lots, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "GetAll", "operation", "WritePaginated", "error", err)
	}
}

func (h *LotHandler) Update(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		h.writeError(w, "Update", apperrors.Unauthorized("Missing principal"))
		return
	}

	id := ps.ByName("id")

	var updates model.LotUpdate
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Update", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	if err := h.service.Update(r.Context(), principal, id, &updates); err != nil {
		h.writeError(w, "Update", err)
		return
	}

	httputil.WriteNoContent(w)
}

func (h *LotHandler) SetCapacity(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		h.writeError(w, "SetCapacity", apperrors.Unauthorized("Missing principal"))
		return
	}

	id := ps.ByName("id")

	var body struct {
		Capacity int `json:"capacity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, "SetCapacity", apperrors.InvalidInput(fmt.Sprintf("invalid request body: %v", err)))
		return
	}

	if err := h.service.SetCapacity(r.Context(), principal, id, body.Capacity); err != nil {
		h.writeError(w, "SetCapacity", err)
		return
	}

	httputil.WriteNoContent(w)
}

func (h *LotHandler) Delete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		h.writeError(w, "Delete", apperrors.Unauthorized("Missing principal"))
		return
	}

	id := ps.ByName("id")

	if err := h.service.Delete(r.Context(), principal, id); err != nil {
		h.writeError(w, "Delete", err)
		return
	}

	httputil.WriteNoContent(w)
}

func (h *LotHandler) writeError(w http.ResponseWriter, handlerName string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handlerName, "operation", "WriteError", "error", writeErr)
	}
}

func (h *LotHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/lots", h.Create)
	router.GET("/api/v1/lots", h.GetAll)
	router.GET("/api/v1/lots/id/:id", h.GetByID)
	router.PATCH("/api/v1/lots/id/:id", h.Update)
	router.PATCH("/api/v1/lots/id/:id/capacity", h.SetCapacity)
	router.DELETE("/api/v1/lots/id/:id", h.Delete)
}
