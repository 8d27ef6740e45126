package hub

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"puppyspa/waitlist-service/internal/metrics"
	"puppyspa/waitlist-service/internal/store"
)

// Subscription narrows the events a client receives to a single day. An empty
// Date means every day.
type Subscription struct {
	Date string
}

type Client struct {
	ID           string
	Send         chan []byte
	Subscription Subscription
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *zap.Logger
}

type SubscribeMessage struct {
	Action string `json:"action"`
	Date   string `json:"date"`
}

// Envelope is the frame pushed to realtime clients for every outbox event.
type Envelope struct {
	Type      string          `json:"type"`
	Date      string          `json:"date"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

func New(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{clients: make(map[string]*Client), logger: logger}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	metrics.RealtimeClients.Set(float64(len(h.clients)))
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
	metrics.RealtimeClients.Set(float64(len(h.clients)))
}

func (h *Hub) UpdateSubscription(client *Client, sub Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.Subscription = sub
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues payload for every client subscribed to date and returns how
// many clients accepted it. Clients with a full buffer miss the message.
func (h *Hub) Broadcast(payload []byte, date string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for _, client := range h.clients {
		if !match(client.Subscription, date) {
			continue
		}
		select {
		case client.Send <- payload:
			delivered++
		default:
			h.logger.Warn("drop realtime message", zap.String("client_id", client.ID), zap.String("date", date))
		}
	}
	return delivered
}

// BroadcastEvent wraps an outbox event in an Envelope and broadcasts it to the
// clients watching the event's day.
func (h *Hub) BroadcastEvent(event store.OutboxEvent) (int, error) {
	payload, err := json.Marshal(Envelope{
		Type:      event.Type,
		Date:      event.Date,
		Payload:   event.Payload,
		CreatedAt: event.CreatedAt,
	})
	if err != nil {
		return 0, err
	}
	return h.Broadcast(payload, event.Date), nil
}

func match(sub Subscription, date string) bool {
	return sub.Date == "" || sub.Date == date
}

func ParseSubscribe(data []byte) (SubscribeMessage, bool) {
	var msg SubscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SubscribeMessage{}, false
	}
	if msg.Action != "subscribe" && msg.Action != "unsubscribe" {
		return SubscribeMessage{}, false
	}
	if msg.Action == "subscribe" && msg.Date != "" {
		if _, err := time.Parse(time.DateOnly, msg.Date); err != nil {
			return SubscribeMessage{}, false
		}
	}
	return msg, true
}
