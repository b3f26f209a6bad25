package handler

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/CageChen/filehub/internal/logging"
	"github.com/CageChen/filehub/internal/watcher"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// WSHandler pushes change notifications to connected browsers so open
// listings can refresh.
type WSHandler struct {
	clients map[*websocket.Conn]bool
	mu      sync.RWMutex
}

// NewWSHandler creates a new WebSocket handler
func NewWSHandler() *WSHandler {
	return &WSHandler{
		clients: make(map[*websocket.Conn]bool),
	}
}

// HandleWS handles WebSocket upgrade and connection
func (h *WSHandler) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.WithContext(c.Request.Context()).Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer func() {
		h.removeClient(conn)
		_ = conn.Close()
	}()

	h.addClient(conn)

	// Drain until the client goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Clients returns the number of connected clients.
func (h *WSHandler) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// OnFileChange is called when a file change is detected
func (h *WSHandler) OnFileChange(event watcher.Event) {
	h.broadcast(WSMessage{
		Type: "fileChange",
		Payload: map[string]string{
			"event": event.Type.String(),
			"path":  event.Path,
		},
	})
}

func (h *WSHandler) addClient(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = true
}

func (h *WSHandler) removeClient(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, conn)
}

func (h *WSHandler) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			h.removeClient(client)
		}
	}
}
