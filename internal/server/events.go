// events.go - Live feed of request outcomes over WebSocket.
package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	subscriberBuffer = 64
	eventHistorySize = 50
	eventWriteWait   = 10 * time.Second
)

// subscriber is one connected feed client. Its send channel is closed
// exactly once, by the hub, when the subscriber is removed.
type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// EventHub is the registry of feed subscribers. Subscribers join on upgrade
// and leave when their connection ends or they fall too far behind.
type EventHub struct {
	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	history     [][]byte
	upgrader    websocket.Upgrader
}

// NewEventHub returns an empty hub.
func NewEventHub() *EventHub {
	return &EventHub{
		subscribers: make(map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Publish sends an outcome to every subscriber without blocking. A
// subscriber whose buffer is full is disconnected.
func (h *EventHub) Publish(out Outcome) {
	data, err := json.Marshal(out)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.history = append(h.history, data)
	if len(h.history) > eventHistorySize {
		h.history = h.history[len(h.history)-eventHistorySize:]
	}

	for sub := range h.subscribers {
		select {
		case sub.send <- data:
		default:
			h.removeLocked(sub)
		}
	}
}

// Subscribers returns the number of connected feed clients.
func (h *EventHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// ServeHTTP upgrades the connection and streams outcomes until the client
// goes away. Recent history is replayed first.
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		Warn("event feed upgrade failed", map[string]any{"error": err.Error()})
		return
	}

	sub := &subscriber{conn: conn, send: make(chan []byte, subscriberBuffer+eventHistorySize)}

	h.mu.Lock()
	for _, data := range h.history {
		sub.send <- data
	}
	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(sub)
	h.readLoop(sub)
}

// readLoop discards client frames; its end is the disconnect signal.
func (h *EventHub) readLoop(sub *subscriber) {
	defer h.remove(sub)
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *EventHub) writeLoop(sub *subscriber) {
	defer func() { _ = sub.conn.Close() }()
	for data := range sub.send {
		_ = sub.conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
		if err := sub.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.remove(sub)
			return
		}
	}
	_ = sub.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
}

func (h *EventHub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub)
}

func (h *EventHub) removeLocked(sub *subscriber) {
	if _, ok := h.subscribers[sub]; !ok {
		return
	}
	delete(h.subscribers, sub)
	close(sub.send)
}

// Close disconnects every subscriber.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subscribers {
		h.removeLocked(sub)
	}
}
