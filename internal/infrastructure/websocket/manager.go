package websocket

import (
	"context"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// Client represents a WebSocket connection client. A user may hold several
// (one per open tab); events fan out to all of them.
type Client struct {
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte
}

// Manager manages all active WebSocket connections
type Manager struct {
	clients    map[string]map[*Client]struct{} // userID -> connections
	Register   chan *Client
	Unregister chan *Client
	mutex      sync.RWMutex
}

// NewManager creates a new WebSocket connection manager
func NewManager() *Manager {
	return &Manager{
		clients:    make(map[string]map[*Client]struct{}),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// Start runs the manager's main loop in a goroutine
func (m *Manager) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case client := <-m.Register:
				m.mutex.Lock()
				if m.clients[client.UserID] == nil {
					m.clients[client.UserID] = make(map[*Client]struct{})
				}
				m.clients[client.UserID][client] = struct{}{}
				m.mutex.Unlock()
				log.Printf("Client registered: %s", client.UserID)

			case client := <-m.Unregister:
				m.mutex.Lock()
				if conns, ok := m.clients[client.UserID]; ok {
					if _, ok := conns[client]; ok {
						delete(conns, client)
						close(client.Send)
						if len(conns) == 0 {
							delete(m.clients, client.UserID)
						}
					}
				}
				m.mutex.Unlock()
				log.Printf("Client unregistered: %s", client.UserID)

			case <-ctx.Done():
				return
			}
		}
	}()
}

// SendToUser sends a message to every connection the user holds.
func (m *Manager) SendToUser(userID string, message []byte) {
	m.mutex.RLock()
	conns := make([]*Client, 0, len(m.clients[userID]))
	for client := range m.clients[userID] {
		conns = append(conns, client)
	}
	m.mutex.RUnlock()

	for _, client := range conns {
		select {
		case client.Send <- message:
		default:
			// Slow consumer; drop rather than block the push path.
		}
	}
}

// ReadPump reads messages from the WebSocket connection
func (c *Client) ReadPump(m *Manager) {
	defer func() {
		m.Unregister <- c
		c.Conn.Close()
	}()

	for {
		_, _, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("error: %v", err)
			}
			break
		}
		// The push channel is one-way; client frames are keepalives only.
	}
}

// WritePump sends messages to the WebSocket connection
func (c *Client) WritePump() {
	defer c.Conn.Close()

	for {
		message, ok := <-c.Send
		if !ok {
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}

		err := c.Conn.WriteMessage(websocket.TextMessage, message)
		if err != nil {
			log.Printf("error: %v", err)
			return
		}
	}
}
