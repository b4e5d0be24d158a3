// Package api exposes the minimal HTTP/WebSocket surface needed to
// attach a live process-message or attempt-diff stream and to drive an
// attempt through the orchestrator, per SPEC_FULL.md §7 — not a full
// product REST API. Grounded on the teacher's internal/api/websocket.go
// Hub (register/unregister/broadcast over channels), generalized from a
// session-keyed hub to a topic-keyed one so it can carry both process
// message streams and attempt diff streams.
package api

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

// Event is one JSON payload pushed to subscribers of a topic.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Client is one WebSocket connection subscribed to a topic.
type Client struct {
	Topic string
	Conn  *websocket.Conn
	Send  chan Event
	hub   *Hub
}

// NewClient creates a new WebSocket client.
func NewClient(topic string, conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		Topic: topic,
		Conn:  conn,
		Send:  make(chan Event, 256),
		hub:   hub,
	}
}

// ReadLoop drains the connection until it closes. Clients don't send
// anything meaningful; this just keeps the read side pumped so close
// frames and pings are observed.
func (c *Client) ReadLoop(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.Conn.Close(websocket.StatusNormalClosure, "")
	}()
	for {
		if _, _, err := c.Conn.Read(ctx); err != nil {
			break
		}
	}
}

// WriteLoop writes queued events to the connection until Send closes.
func (c *Client) WriteLoop(ctx context.Context, log zerolog.Logger) {
	defer c.Conn.Close(websocket.StatusNormalClosure, "")
	for event := range c.Send {
		data, err := json.Marshal(event)
		if err != nil {
			log.Warn().Err(err).Str("topic", c.Topic).Msg("marshal event")
			continue
		}
		if err := c.Conn.Write(ctx, websocket.MessageText, data); err != nil {
			break
		}
	}
}

// Hub multiplexes events to clients by topic (a process id or an
// attempt id, depending on the stream kind). Register/Unregister take
// the map mutex directly rather than going through the broadcast
// channel, so a Register call is guaranteed visible to the next
// Broadcast the caller issues — important since a producer is typically
// started right after registering its one client.
type Hub struct {
	clients   map[string][]*Client
	broadcast chan broadcastMsg
	mu        sync.RWMutex
}

type broadcastMsg struct {
	Topic string
	Event Event
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:   make(map[string][]*Client),
		broadcast: make(chan broadcastMsg, 256),
	}
}

// Run drains the broadcast channel until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-h.broadcast:
			h.mu.RLock()
			clients := h.clients[msg.Topic]
			h.mu.RUnlock()
			for _, client := range clients {
				select {
				case client.Send <- msg.Event:
				default:
					h.Unregister(client)
				}
			}
		}
	}
}

// Register adds a new client.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.Topic] = append(h.clients[client.Topic], client)
}

// Unregister removes a client, closing its Send channel. Safe to call
// more than once for the same client.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.clients[client.Topic]
	if !ok {
		return
	}
	for i, c := range clients {
		if c == client {
			h.clients[client.Topic] = append(clients[:i], clients[i+1:]...)
			if len(h.clients[client.Topic]) == 0 {
				delete(h.clients, client.Topic)
			}
			close(client.Send)
			return
		}
	}
}

// Broadcast sends an event to every client subscribed to topic.
func (h *Hub) Broadcast(topic string, event Event) {
	h.broadcast <- broadcastMsg{Topic: topic, Event: event}
}
