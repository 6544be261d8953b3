// Package room tracks which WebSocket connections are joined to which
// booking chat and fans messages out to them. Membership is in-process:
// each instance routes only its own connections.
package room

import (
	"sync"

	"smartpark/pkg/logger"
	"smartpark/pkg/model"

	"github.com/google/uuid"
)

const (
	EventNewMessage = "newMessage"
	EventJoinError  = "joinError"
	EventSendError  = "sendError"
)

// Event is one server-to-client frame.
type Event struct {
	Type      string         `json:"type"`
	BookingID string         `json:"booking_id,omitempty"`
	Message   *model.Message `json:"message,omitempty"`
	Reason    string         `json:"reason,omitempty"`
}

// Conn is the router's view of one WebSocket connection. The transport layer
// owns the socket; the router only pushes events into the buffered Send
// queue, so a slow consumer never blocks a broadcast.
type Conn struct {
	ID        string
	Principal *model.Principal
	Send      chan Event
}

type Router struct {
	mu     sync.RWMutex
	conns  map[string]*Conn
	rooms  map[string]map[string]*Conn // bookingID -> connID -> conn
	joined map[string]map[string]bool  // connID -> bookingID set

	sendBuffer int
	log        *logger.Logger
}

func NewRouter(sendBuffer int, log *logger.Logger) *Router {
	return &Router{
		conns:      make(map[string]*Conn),
		rooms:      make(map[string]map[string]*Conn),
		joined:     make(map[string]map[string]bool),
		sendBuffer: sendBuffer,
		log:        log,
	}
}

// Register creates and tracks a connection for an authenticated principal.
func (r *Router) Register(principal *model.Principal) *Conn {
	conn := &Conn{
		ID:        uuid.New().String(),
		Principal: principal,
		Send:      make(chan Event, r.sendBuffer),
	}

	r.mu.Lock()
	r.conns[conn.ID] = conn
	r.joined[conn.ID] = make(map[string]bool)
	r.mu.Unlock()

	r.log.Debug("Connection registered",
		"conn_id", conn.ID,
		"principal_id", principal.ID,
	)
	return conn
}

// Unregister removes the connection from every room and closes its send
// queue. The close happens under the write lock, and broadcasts send under
// the read lock, so a broadcast can never hit a closed queue. Safe to call
// more than once.
func (r *Router) Unregister(conn *Conn) {
	r.mu.Lock()
	if _, ok := r.conns[conn.ID]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.conns, conn.ID)
	for bookingID := range r.joined[conn.ID] {
		r.removeFromRoom(bookingID, conn.ID)
	}
	delete(r.joined, conn.ID)
	close(conn.Send)
	r.mu.Unlock()

	r.log.Debug("Connection unregistered", "conn_id", conn.ID)
}

// Join adds the connection to a booking's room. The caller is responsible
// for gate-checking first. Joining twice is a no-op.
func (r *Router) Join(conn *Conn, bookingID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[conn.ID]; !ok {
		return
	}

	members, ok := r.rooms[bookingID]
	if !ok {
		members = make(map[string]*Conn)
		r.rooms[bookingID] = members
	}
	members[conn.ID] = conn
	r.joined[conn.ID][bookingID] = true
}

// Leave removes the connection from a booking's room. Leaving a room the
// connection never joined is a no-op.
func (r *Router) Leave(conn *Conn, bookingID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeFromRoom(bookingID, conn.ID)
	if set, ok := r.joined[conn.ID]; ok {
		delete(set, bookingID)
	}
}

// BroadcastMessage delivers a new message to every connection currently in
// the booking's room. Connections with a full send queue are skipped rather
// than awaited.
func (r *Router) BroadcastMessage(bookingID string, msg *model.Message) {
	event := Event{
		Type:      EventNewMessage,
		BookingID: bookingID,
		Message:   msg,
	}

	// Sends stay under the read lock: every delivery is non-blocking, and
	// holding the lock keeps Unregister from closing a queue mid-broadcast.
	r.mu.RLock()
	var dropped []string
	for _, conn := range r.rooms[bookingID] {
		select {
		case conn.Send <- event:
		default:
			dropped = append(dropped, conn.ID)
		}
	}
	r.mu.RUnlock()

	for _, connID := range dropped {
		r.log.Warn("Dropping broadcast, send queue full",
			"conn_id", connID,
			"booking_id", bookingID,
		)
	}
}

// RoomSize reports how many connections are joined to a booking's room.
func (r *Router) RoomSize(bookingID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[bookingID])
}

// caller must hold r.mu
func (r *Router) removeFromRoom(bookingID, connID string) {
	members, ok := r.rooms[bookingID]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, bookingID)
	}
}
