package controlplane

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/arxgeo/geodist/internal/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ProgressEvent is one stage-transition notification pushed to every
// driver currently watching a prepare/execute call in progress.
type ProgressEvent struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// Hub fans ProgressEvents out to every websocket client connected to
// the host's progress stream. A driver invocation is a separate OS
// process per command, so this is purely observational — nothing in
// the CLI contract blocks on it — but a long prepare (dataset load +
// index build) or execute over many queries otherwise gives an
// operator no visibility until the process exits.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	log     *logger.Logger
}

// NewHub builds an empty Hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]bool),
		log:     logger.New("hub", logger.INFO),
	}
}

// ServeWS upgrades r to a websocket connection and registers it as a
// broadcast target until the client disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("hub: upgrade failed: %v", err)
		return
	}
	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()
	go h.drain(conn)
}

// drain discards anything the client sends (driver clients are
// read-only subscribers) and deregisters the connection once it
// closes or errors.
func (h *Hub) drain(conn *websocket.Conn) {
	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast sends ev to every connected client, dropping any
// connection a write fails on.
func (h *Hub) Broadcast(ev ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteJSON(ev); err != nil {
			conn.Close()
			delete(h.clients, conn)
		}
	}
}
