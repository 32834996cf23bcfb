// Package server exposes a local HTTP+WebSocket endpoint broadcasting
// live state-machine snapshots while one loop run is in flight, grounded on the teacher's gin HTTP server and gorilla/websocket
// connection hub.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aprbench/aprloop/internal/agentloop"
	"github.com/aprbench/aprloop/internal/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Event is one broadcast payload: a state transition plus whatever the
// Listener's metrics callback returns at that instant (omitted when it
// returns nil).
type Event struct {
	RunID     string              `json:"run_id"`
	State     agentloop.RunState  `json:"state"`
	Iteration int                 `json:"iteration"`
	ElapsedMS int64               `json:"elapsed_ms"`
	Metrics   *model.Metrics      `json:"metrics,omitempty"`
	Timestamp int64               `json:"timestamp"`
}

// Hub fans a run's telemetry events out to every connected WebSocket
// client and answers a plain GET /status with the latest event.
type Hub struct {
	runID string

	mu      sync.RWMutex
	clients map[string]chan Event
	last    Event

	logger *zap.Logger
}

// NewHub creates a hub identified by a fresh run id, stamped on every
// event (cmd/aprloop also logs it when the telemetry server starts).
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		runID:   uuid.NewString(),
		clients: make(map[string]chan Event),
		logger:  logger,
	}
}

// RunID returns the identifier this hub stamps on every event.
func (h *Hub) RunID() string { return h.runID }

// Listener returns a StateListener suitable for agentloop.RunConfig,
// broadcasting on every transition.
func (h *Hub) Listener(metrics func() *model.Metrics) func(from, to agentloop.RunState, snap agentloop.Snapshot) {
	return func(from, to agentloop.RunState, snap agentloop.Snapshot) {
		h.broadcast(Event{
			RunID:     h.runID,
			State:     snap.State,
			Iteration: snap.Iteration,
			ElapsedMS: snap.Elapsed.Milliseconds(),
			Metrics:   metrics(),
			Timestamp: time.Now().UnixMilli(),
		})
	}
}

func (h *Hub) broadcast(ev Event) {
	h.mu.Lock()
	h.last = ev
	clients := make([]chan Event, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		select {
		case c <- ev:
		default:
			h.logger.Warn("telemetry client slow, dropping event")
		}
	}
}

// Subscribe registers a local (in-process) listener, for a --tui viewer
// that wants the event stream without going over the network.
func (h *Hub) Subscribe() (string, <-chan Event) {
	return h.register()
}

// Unsubscribe removes a listener registered via Subscribe.
func (h *Hub) Unsubscribe(id string) {
	h.unregister(id)
}

func (h *Hub) register() (string, chan Event) {
	id := uuid.NewString()
	ch := make(chan Event, 16)
	h.mu.Lock()
	h.clients[id] = ch
	h.mu.Unlock()
	return id, ch
}

func (h *Hub) unregister(id string) {
	h.mu.Lock()
	if ch, ok := h.clients[id]; ok {
		delete(h.clients, id)
		close(ch)
	}
	h.mu.Unlock()
}

// Server is the gin-based HTTP+WS surface over one Hub.
type Server struct {
	httpServer *http.Server
	hub        *Hub
	logger     *zap.Logger
}

// NewServer builds a Server listening on addr, serving GET /status and
// the GET /ws upgrade.
func NewServer(addr string, hub *Hub, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/status", func(c *gin.Context) {
		hub.mu.RLock()
		ev := hub.last
		hub.mu.RUnlock()
		c.JSON(http.StatusOK, ev)
	})
	router.GET("/ws", func(c *gin.Context) {
		serveWS(hub, logger, c.Writer, c.Request)
	})

	return &Server{
		httpServer: &http.Server{Addr: addr, Handler: router},
		hub:        hub,
		logger:     logger,
	}
}

func serveWS(hub *Hub, logger *zap.Logger, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("telemetry websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	id, ch := hub.register()
	defer hub.unregister(id)

	for ev := range ch {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// Start runs the HTTP server until ctx is cancelled, then shuts down
// gracefully. Start returns at once, the server running in its own
// goroutine; errors other than a clean shutdown are sent on the returned
// channel.
func (s *Server) Start(ctx context.Context) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("telemetry server: %w", err)
			return
		}
		errCh <- nil
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()

	return errCh
}
