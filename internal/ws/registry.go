package ws

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"support-chat-service/internal/models"
	"support-chat-service/internal/observability"
)

// ErrNotConnected is returned by Send when the user has no live channel; the
// router falls back to the bot transport on it.
var ErrNotConnected = errors.New("user has no live connection")

// Conn is the write half of a live channel. *websocket.Conn satisfies it.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// ConnInfo carries handshake metadata for a live connection.
type ConnInfo struct {
	ConnID      string
	UserID      int64
	IP          string
	TraceID     string
	ConnectedAt time.Time
}

// Registry holds the live mapping from customer id to an open channel. At
// most one channel per user id; Connect replaces any prior channel.
type Registry struct {
	mu    sync.RWMutex
	conns map[int64]Conn
	infos map[int64]ConnInfo
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[int64]Conn),
		infos: make(map[int64]ConnInfo),
	}
}

// Connect registers the channel for the user, closing any prior one.
func (r *Registry) Connect(userID int64, conn Conn, info ConnInfo) {
	r.mu.Lock()
	prev := r.conns[userID]
	r.conns[userID] = conn
	r.infos[userID] = info
	r.mu.Unlock()

	if prev != nil && prev != conn {
		_ = prev.Close()
	}
	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
}

// Disconnect removes the mapping only when conn still owns it. A stale
// connection that was already replaced must not evict its successor.
func (r *Registry) Disconnect(userID int64, conn Conn) {
	r.mu.Lock()
	owned := r.conns[userID] == conn
	if owned {
		delete(r.conns, userID)
		delete(r.infos, userID)
	}
	r.mu.Unlock()

	if owned {
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
	}
}

// Send delivers one event over the live channel. A write error evicts the
// connection so the next attempt falls back immediately.
func (r *Registry) Send(userID int64, event models.Event) error {
	r.mu.RLock()
	conn, ok := r.conns[userID]
	r.mu.RUnlock()
	if !ok {
		return ErrNotConnected
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		log.Printf("websocket write error for user %d: %v", userID, err)
		_ = conn.Close()
		r.Disconnect(userID, conn)
		observability.IncWSEvent("ws_error")
		return err
	}
	return nil
}

// Broadcast sends the event to every live connection. Diagnostics only.
func (r *Registry) Broadcast(event models.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}

	r.mu.RLock()
	conns := make(map[int64]Conn, len(r.conns))
	for id, c := range r.conns {
		conns[id] = c
	}
	r.mu.RUnlock()

	for userID, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Printf("broadcast write error for user %d: %v", userID, err)
		}
	}
}
