package handler

import (
	"encoding/json"
	"net/http"

	"smartpark/internal/chat/service"
	apperrors "smartpark/pkg/errors"
	httputil "smartpark/pkg/http"
	"smartpark/pkg/logger"
	"smartpark/pkg/middleware"

	"github.com/julienschmidt/httprouter"
)

type ChatHandler struct {
	service service.ChatService
	log     *logger.Logger
}

func NewChatHandler(service service.ChatService, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		service: service,
		log:     log,
	}
}

func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		h.writeError(w, "History", apperrors.Unauthorized("Missing principal"))
		return
	}

	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "History", err)
		return
	}

	messages, total, err := h.service.History(r.Context(), principal, ps.ByName("bookingId"), limit, offset)
	if err != nil {
		h.writeError(w, "History", err)
		return
	}

	if err := httputil.WritePaginated(w, messages, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "History", "operation", "WritePaginated", "error", err)
	}
}

func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		h.writeError(w, "Send", apperrors.Unauthorized("Missing principal"))
		return
	}

	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Send", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	msg, err := h.service.Send(r.Context(), principal, ps.ByName("bookingId"), body.Text)
	if err != nil {
		h.writeError(w, "Send", err)
		return
	}

	if err := httputil.WriteCreated(w, msg); err != nil {
		h.log.Error("failed to write created response", "handler", "Send", "operation", "WriteCreated", "error", err)
	}
}

func (h *ChatHandler) MarkRead(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		h.writeError(w, "MarkRead", apperrors.Unauthorized("Missing principal"))
		return
	}

	if err := h.service.MarkRead(r.Context(), principal, ps.ByName("bookingId")); err != nil {
		h.writeError(w, "MarkRead", err)
		return
	}

	if err := httputil.WriteSuccess(w, map[string]bool{"ok": true}); err != nil {
		h.log.Error("failed to write success response", "handler", "MarkRead", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ChatHandler) Unread(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		h.writeError(w, "Unread", apperrors.Unauthorized("Missing principal"))
		return
	}

	count, err := h.service.UnreadCount(r.Context(), principal, ps.ByName("bookingId"))
	if err != nil {
		h.writeError(w, "Unread", err)
		return
	}

	if err := httputil.WriteSuccess(w, map[string]int64{"unread": count}); err != nil {
		h.log.Error("failed to write success response", "handler", "Unread", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ChatHandler) ActiveChats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		h.writeError(w, "ActiveChats", apperrors.Unauthorized("Missing principal"))
		return
	}

	summaries, err := h.service.ActiveChats(r.Context(), principal)
	if err != nil {
		h.writeError(w, "ActiveChats", err)
		return
	}

	if err := httputil.WriteSuccess(w, summaries); err != nil {
		h.log.Error("failed to write success response", "handler", "ActiveChats", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ChatHandler) writeError(w http.ResponseWriter, handlerName string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handlerName, "operation", "WriteError", "error", writeErr)
	}
}

func (h *ChatHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/chats/id/:bookingId", h.History)
	router.POST("/api/v1/chats/id/:bookingId", h.Send)
	router.PATCH("/api/v1/chats/id/:bookingId/read", h.MarkRead)
	router.GET("/api/v1/chats/id/:bookingId/unread", h.Unread)
	router.GET("/api/v1/chats/admin/active", h.ActiveChats)
}
