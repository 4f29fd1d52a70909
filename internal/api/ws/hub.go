// Package ws streams committed routes to websocket subscribers.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/olyamironova/swap-router/internal/api/dto"
	"github.com/olyamironova/swap-router/internal/domain"
	"github.com/olyamironova/swap-router/internal/port"
)

const (
	sendBuffer   = 64
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
	pongWait     = pingInterval + 10*time.Second
)

var _ port.RouteObserver = (*Hub)(nil)

type subscriber struct {
	send chan dto.RouteEvent
	// principal filters events when set
	principal string
}

// Hub fans committed routes out to every connected subscriber. A subscriber
// that cannot keep up loses events instead of stalling the router.
type Hub struct {
	mu       sync.RWMutex
	subs     map[*subscriber]struct{}
	upgrader websocket.Upgrader
	dropped  atomic.Uint64
	logger   *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs: make(map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger.With("component", "route-stream"),
	}
}

func (h *Hub) RouteCommitted(ctx context.Context, ev domain.RouteEvent) {
	msg := dto.FromRouteEvent(ev)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		if s.principal != "" && s.principal != msg.Principal {
			continue
		}
		select {
		case s.send <- msg:
		default:
			h.dropped.Add(1)
		}
	}
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped counts events discarded for slow subscribers.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// ServeHTTP upgrades the request and streams events until the client goes
// away. ?principal=<address> limits the stream to one principal.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	s := &subscriber{send: make(chan dto.RouteEvent, sendBuffer), principal: r.URL.Query().Get("principal")}
	h.add(s)
	defer h.remove(s)

	done := make(chan struct{})
	go h.readLoop(conn, done)
	h.writeLoop(conn, s, done)
}

func (h *Hub) add(s *subscriber) {
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}

// readLoop only drains control frames; it closes done when the peer leaves.
func (h *Hub) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(conn *websocket.Conn, s *subscriber, done chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case <-done:
			return
		case msg := <-s.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
