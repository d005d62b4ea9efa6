package notify

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Event is one server-sent event.
type Event struct {
	EventType string `json:"event"`
	Data      string `json:"data"`
}

// Client is a connected SSE subscriber. An empty Channel receives every event.
type Client struct {
	ID      string
	UserID  string
	Channel string
	Events  chan Event
}

// Hub keeps the SSE connections of floor screens and tracking pages.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	h.logger.Debug("sse client registered",
		zap.String("client_id", client.ID),
		zap.String("channel", client.Channel),
		zap.Int("total", len(h.clients)))
}

func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, ok := h.clients[clientID]; ok {
		close(client.Events)
		delete(h.clients, clientID)
		h.logger.Debug("sse client unregistered", zap.String("client_id", clientID), zap.Int("total", len(h.clients)))
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Notify pushes the message to every client subscribed to channel. Slow clients are skipped.
func (h *Hub) Notify(_ context.Context, channel string, msg Message) error {
	body, err := json.Marshal(struct {
		Channel string `json:"channel"`
		Message
	}{channel, msg})
	if err != nil {
		return err
	}
	event := Event{EventType: msg.Event, Data: string(body)}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if client.Channel != "" && client.Channel != channel {
			continue
		}
		select {
		case client.Events <- event:
		default:
			h.logger.Warn("sse client buffer full, skipping event", zap.String("client_id", client.ID))
		}
	}
	return nil
}
