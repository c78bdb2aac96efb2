// Package status exposes the live system picture: a once-per-second
// renderer that assembles a full snapshot, an HTTP API serving it, and
// a websocket stream pushing it to connected dashboards.
package status

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aeolus-works/turbine-sentry/internal/infrastructure/logging"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Dashboards connect from arbitrary origins
	},
}

// Hub fans snapshots out to connected websocket clients. Slow clients
// miss frames rather than backing up the renderer.
type Hub struct {
	log *logging.Logger

	mu      sync.RWMutex
	clients map[string]chan []byte
	closed  bool
}

// NewHub creates an empty hub.
func NewHub(log *logging.Logger) *Hub {
	return &Hub{
		log:     log,
		clients: make(map[string]chan []byte),
	}
}

// HandleConnection upgrades the request and streams snapshots until
// the client disconnects.
func (h *Hub) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	id := uuid.NewString()
	send := make(chan []byte, 4)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.clients[id] = send
	h.mu.Unlock()
	h.log.Info("dashboard connected", zap.String("session_id", id))

	defer func() {
		h.mu.Lock()
		delete(h.clients, id)
		h.mu.Unlock()
		h.log.Info("dashboard disconnected", zap.String("session_id", id))
	}()

	// Reader goroutine only watches for the client going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case frame, ok := <-send:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// Broadcast pushes one encoded snapshot to every client. A client with
// a full buffer skips this frame.
func (h *Hub) Broadcast(frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, send := range h.clients {
		select {
		case send <- frame:
		default:
		}
	}
}

// Clients reports the number of connected sessions.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close stops accepting clients and releases the existing ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, send := range h.clients {
		close(send)
		delete(h.clients, id)
	}
}
