package ws

import (
	"net/http"
	"time"

	"smartpark/internal/chat/room"
	"smartpark/internal/chat/service"
	"smartpark/pkg/config"
	apperrors "smartpark/pkg/errors"
	"smartpark/pkg/middleware"
	"smartpark/pkg/model"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

const (
	frameJoinRoom    = "joinRoom"
	frameLeaveRoom   = "leaveRoom"
	frameSendMessage = "sendMessage"

	reasonInternalError = "internalError"
	reasonEmptyMessage  = "emptyMessage"

	maxFrameSize = 16 * 1024
)

// clientFrame is one client-to-server frame.
type clientFrame struct {
	Type      string `json:"type"`
	BookingID string `json:"booking_id"`
	Text      string `json:"text"`
}

// Handler upgrades authenticated requests to WebSocket connections and
// bridges frames to the chat service and room router.
type Handler struct {
	chat     service.ChatService
	router   *room.Router
	cfg      *config.Config
	upgrader websocket.Upgrader
}

func NewHandler(chat service.ChatService, router *room.Router, cfg *config.Config) *Handler {
	return &Handler{
		chat:   chat,
		router: router,
		cfg:    cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The bearer token already authenticates the handshake; browser
			// origin is not part of the trust model for this API.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) Serve(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		appErr := apperrors.Unauthorized("Missing principal")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(appErr.StatusCode())
		_, _ = w.Write(appErr.ToJSON())
		return
	}

	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		h.cfg.Log.Warn("WebSocket upgrade failed",
			"principal_id", principal.ID,
			"error", err,
		)
		return
	}

	conn := h.router.Register(principal)

	h.cfg.Log.Info("WebSocket connected",
		"conn_id", conn.ID,
		"principal_id", principal.ID,
	)

	go h.writePump(socket, conn)
	h.readPump(r, socket, conn, principal)
}

// readPump consumes client frames until the connection drops. It runs on the
// handler goroutine so the request context stays alive for service calls.
func (h *Handler) readPump(r *http.Request, socket *websocket.Conn, conn *room.Conn, principal *model.Principal) {
	defer func() {
		h.router.Unregister(conn)
		socket.Close()
		h.cfg.Log.Info("WebSocket disconnected", "conn_id", conn.ID)
	}()

	socket.SetReadLimit(maxFrameSize)
	_ = socket.SetReadDeadline(time.Now().Add(h.cfg.WSPongTimeout))
	socket.SetPongHandler(func(string) error {
		return socket.SetReadDeadline(time.Now().Add(h.cfg.WSPongTimeout))
	})

	for {
		var frame clientFrame
		if err := socket.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.cfg.Log.Warn("WebSocket read failed", "conn_id", conn.ID, "error", err)
			}
			return
		}

		switch frame.Type {
		case frameJoinRoom:
			h.handleJoin(r, conn, principal, frame.BookingID)
		case frameLeaveRoom:
			h.router.Leave(conn, frame.BookingID)
		case frameSendMessage:
			h.handleSend(r, conn, principal, frame.BookingID, frame.Text)
		default:
			h.cfg.Log.Debug("Ignoring unknown frame type",
				"conn_id", conn.ID,
				"type", frame.Type,
			)
		}
	}
}

// handleJoin gate-checks the booking and either joins the room or reports
// the specific denial reason back to the connection.
func (h *Handler) handleJoin(r *http.Request, conn *room.Conn, principal *model.Principal, bookingID string) {
	decision, err := h.chat.CheckAccess(r.Context(), principal, bookingID)
	if err != nil {
		h.push(conn, room.Event{Type: room.EventJoinError, BookingID: bookingID, Reason: reasonInternalError})
		return
	}
	if !decision.Granted {
		h.push(conn, room.Event{Type: room.EventJoinError, BookingID: bookingID, Reason: string(decision.Reason)})
		return
	}

	h.router.Join(conn, bookingID)
}

func (h *Handler) handleSend(r *http.Request, conn *room.Conn, principal *model.Principal, bookingID, text string) {
	decision, err := h.chat.CheckAccess(r.Context(), principal, bookingID)
	if err != nil {
		h.push(conn, room.Event{Type: room.EventSendError, BookingID: bookingID, Reason: reasonInternalError})
		return
	}
	if !decision.Granted {
		h.push(conn, room.Event{Type: room.EventSendError, BookingID: bookingID, Reason: string(decision.Reason)})
		return
	}

	// Fan-out to the room, including this connection, happens inside Send.
	if _, err := h.chat.Send(r.Context(), principal, bookingID, text); err != nil {
		reason := reasonInternalError
		if apperrors.HasCode(err, apperrors.CodeInvalidInput) || apperrors.HasCode(err, apperrors.CodeValidation) {
			reason = reasonEmptyMessage
		}
		h.push(conn, room.Event{Type: room.EventSendError, BookingID: bookingID, Reason: reason})
	}
}

// push queues an event directly to one connection without going through a
// room.
func (h *Handler) push(conn *room.Conn, event room.Event) {
	select {
	case conn.Send <- event:
	default:
		h.cfg.Log.Warn("Dropping event, send queue full",
			"conn_id", conn.ID,
			"type", event.Type,
		)
	}
}

// writePump serializes all writes to the socket: queued events plus periodic
// pings. Exits when the send queue is closed by Unregister.
func (h *Handler) writePump(socket *websocket.Conn, conn *room.Conn) {
	pingInterval := h.cfg.WSPongTimeout * 9 / 10
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		socket.Close()
	}()

	for {
		select {
		case event, ok := <-conn.Send:
			_ = socket.SetWriteDeadline(time.Now().Add(h.cfg.WSWriteTimeout))
			if !ok {
				_ = socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := socket.WriteJSON(event); err != nil {
				h.cfg.Log.Warn("WebSocket write failed", "conn_id", conn.ID, "error", err)
				return
			}
		case <-ticker.C:
			_ = socket.SetWriteDeadline(time.Now().Add(h.cfg.WSWriteTimeout))
			if err := socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Handler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/ws", h.Serve)
}
