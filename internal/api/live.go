package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const liveWriteTimeout = 10 * time.Second

// LiveHub fans leaderboard snapshots out to websocket subscribers.
// Broadcasts never block mutations: a subscriber that cannot keep up
// drops frames and catches up on the next snapshot.
type LiveHub struct {
	snapshot func(ctx context.Context) (any, error)

	mu      sync.Mutex
	clients map[chan []byte]struct{}
}

// NewLiveHub creates a hub. snapshot produces the payload sent to a
// subscriber on connect.
func NewLiveHub(snapshot func(ctx context.Context) (any, error)) *LiveHub {
	return &LiveHub{
		snapshot: snapshot,
		clients:  make(map[chan []byte]struct{}),
	}
}

// Broadcast sends v to every connected subscriber.
func (h *LiveHub) Broadcast(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to marshal live broadcast", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- data:
		default:
			// Slow subscriber: skip this frame.
		}
	}
}

func (h *LiveHub) register() chan []byte {
	ch := make(chan []byte, 8)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *LiveHub) unregister(ch chan []byte) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
}

// ServeHTTP implements http.Handler for the websocket upgrade.
func (h *LiveHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	// Subscribers only listen; CloseRead cancels the context when the
	// peer disconnects.
	ctx := ws.CloseRead(r.Context())

	ch := h.register()
	defer h.unregister(ch)

	// Initial snapshot so the client renders without waiting for a mutation.
	if snap, err := h.snapshot(ctx); err == nil {
		if data, err := json.Marshal(snap); err == nil {
			if err := h.write(ctx, ws, data); err != nil {
				return
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case data := <-ch:
			if err := h.write(ctx, ws, data); err != nil {
				return
			}
		}
	}
}

func (h *LiveHub) write(ctx context.Context, ws *websocket.Conn, data []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, liveWriteTimeout)
	defer cancel()

	if err := ws.Write(writeCtx, websocket.MessageText, data); err != nil {
		if ctx.Err() == nil {
			slog.Debug("WebSocket write error", "error", err)
		}
		return err
	}
	return nil
}
