package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jwhitden/muster/internal/monitoring"
)

// Message represents a real-time RSVP notification broadcast to all clients.
// EventID scopes the change so clients watching one event can filter.
type Message struct {
	Type    string         `json:"type"`
	Entity  string         `json:"entity"`
	Action  string         `json:"action"`
	EventID int64          `json:"event_id,omitempty"`
	ID      int64          `json:"id,omitempty"`
	Extra   map[string]any `json:"extra,omitempty"`
}

// NewMessage creates a Message with the Type field derived from entity and action.
func NewMessage(entity, action string, eventID, id int64, extra map[string]any) Message {
	return Message{
		Type:    fmt.Sprintf("%s_%s", entity, action),
		Entity:  entity,
		Action:  action,
		EventID: eventID,
		ID:      id,
		Extra:   extra,
	}
}

// Hub maintains the set of active WebSocket clients and broadcasts messages.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	monitoring.WebsocketConnected()
	h.logger.Debug("client connected", "client_id", c.id)
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	if ok {
		monitoring.WebsocketDisconnected()
		h.logger.Debug("client disconnected", "client_id", c.id)
	}
}

// Broadcast sends a message to all connected clients.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Client buffer full: drop the message rather than block
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
