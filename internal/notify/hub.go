package notify

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const subscriberBuffer = 16

// Hub broadcasts alerts to connected instructor dashboards over WebSocket.
// Slow subscribers are disconnected rather than allowed to block delivery.
type Hub struct {
	mu          sync.Mutex
	subscribers map[chan Alert]struct{}
}

// NewHub creates an empty alert hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[chan Alert]struct{})}
}

// Notify fans the alert out to every connected subscriber. Never blocks: a
// subscriber whose buffer is full is dropped.
func (h *Hub) Notify(_ context.Context, alert Alert) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		select {
		case ch <- alert:
		default:
			close(ch)
			delete(h.subscribers, ch)
			slog.Warn("dropping slow alert subscriber")
		}
	}
	return nil
}

// ServeHTTP upgrades the connection and streams alerts until the client
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ch := h.subscribe()
	defer h.unsubscribe(ch)

	// Reads are discarded; the socket exists to push alerts out. CloseRead
	// surfaces client disconnects through ctx.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case alert, ok := <-ch:
			if !ok {
				conn.Close(websocket.StatusPolicyViolation, "subscriber too slow")
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, alert)
			cancel()
			if err != nil {
				slog.Debug("alert write failed", "error", err)
				return
			}
		}
	}
}

func (h *Hub) subscribe() chan Alert {
	ch := make(chan Alert, subscriberBuffer)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(ch chan Alert) {
	h.mu.Lock()
	if _, ok := h.subscribers[ch]; ok {
		delete(h.subscribers, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}
