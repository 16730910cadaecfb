package web

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/spear-it/spearhead/internal/adapters/web/middleware"
	"github.com/spear-it/spearhead/internal/adapters/wire"
	"github.com/spear-it/spearhead/internal/core/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Same-origin requests carry no Origin header.
		return r.Header.Get("Origin") == ""
	},
}

type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// WSManager pushes server activity to connected admin clients.
type WSManager struct {
	Clients map[*websocket.Conn]*domain.User
	mu      sync.Mutex
}

func NewWSManager() *WSManager {
	return &WSManager{
		Clients: make(map[*websocket.Conn]*domain.User),
	}
}

func (m *WSManager) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Extract user from context (set by AuthMiddleware)
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("Upgrade error:", err)
		return
	}

	m.mu.Lock()
	m.Clients[conn] = user
	m.mu.Unlock()

	log.Printf("WebSocket connected: user=%s, role=%s", user.Username, user.Role)

	// Clean up on disconnect
	go func() {
		defer conn.Close()
		defer func() {
			m.mu.Lock()
			delete(m.Clients, conn)
			m.mu.Unlock()
			log.Printf("WebSocket disconnected: user=%s", user.Username)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

// SessionHook returns a wire event hook that mirrors agent session
// lifecycle onto the websocket stream.
func (m *WSManager) SessionHook() wire.EventHook {
	return func(event wire.ServerEvent, conn *wire.Conn, frame *wire.Frame) {
		switch event {
		case wire.MessageReceived, wire.MessageSent:
			// Per-frame traffic is too chatty for the stream.
			return
		}
		m.broadcastMessage(WSMessage{
			Type: "session",
			Payload: map[string]string{
				"event": event.String(),
				"peer":  conn.RemoteIP(),
			},
		})
	}
}

// BroadcastCampaign pushes a campaign state change to all clients.
func (m *WSManager) BroadcastCampaign(campaign *domain.Campaign) {
	m.broadcastMessage(WSMessage{
		Type:    "campaign",
		Payload: campaign,
	})
}

func (m *WSManager) broadcastMessage(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Println("JSON marshal error:", err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for conn := range m.Clients {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			conn.Close()
			delete(m.Clients, conn)
		}
	}
}
