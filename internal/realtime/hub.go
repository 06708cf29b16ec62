package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/angelmondragon/sareehub-backend/pkg/metrics"
)

const defaultClientBuffer = 32

// Event is the frame pushed to SSE clients.
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Data          json.RawMessage `json:"data"`
}

// Client is one SSE connection registered with the hub.
type Client struct {
	events chan Event
	done   chan struct{}
	once   sync.Once
}

// Events delivers broadcast frames. The channel is closed when the client is removed.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Done is closed when the hub drops the client.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Hub fans events out to the SSE clients connected to this instance.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	buffer  int
	closed  bool
	metrics *metrics.RealtimeMetrics
}

// NewHub builds a hub whose clients buffer up to buffer events; non-positive uses the default.
func NewHub(buffer int, m *metrics.RealtimeMetrics) *Hub {
	if buffer <= 0 {
		buffer = defaultClientBuffer
	}
	return &Hub{
		clients: make(map[*Client]struct{}),
		buffer:  buffer,
		metrics: m,
	}
}

// Subscribe registers a new client. A closed hub returns an already-finished client.
func (h *Hub) Subscribe() *Client {
	client := &Client{
		events: make(chan Event, h.buffer),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		client.close()
		return client
	}
	h.clients[client] = struct{}{}
	h.metrics.SetClients(len(h.clients))
	return client
}

// Unsubscribe removes the client and closes its channel. Safe to call twice.
func (h *Hub) Unsubscribe(client *Client) {
	if client == nil {
		return
	}
	h.mu.Lock()
	delete(h.clients, client)
	h.metrics.SetClients(len(h.clients))
	h.mu.Unlock()
	client.close()
}

// Broadcast delivers the event to every client with buffer room and returns
// how many received it. Slow clients miss the event rather than blocking the hub.
func (h *Hub) Broadcast(event Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for client := range h.clients {
		select {
		case client.events <- event:
			delivered++
		default:
			h.metrics.IncDropped(event.Type)
		}
	}
	return delivered
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client; later subscriptions finish immediately.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for client := range h.clients {
		client.close()
		delete(h.clients, client)
	}
	h.metrics.SetClients(0)
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.done)
		close(c.events)
	})
}
