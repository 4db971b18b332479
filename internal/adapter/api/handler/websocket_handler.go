package handler

import (
	"net/http"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	ws "seekca/internal/infrastructure/websocket"
	"seekca/pkg/errors"
)

type WebSocketHandler struct {
	wsManager *ws.Manager
}

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Restricted by the deployment's reverse proxy
	},
}

func NewWebSocketHandler(wsManager *ws.Manager) *WebSocketHandler {
	return &WebSocketHandler{
		wsManager: wsManager,
	}
}

// HandleWebSocket upgrades the connection and registers it for change-event
// pushes. The channel is push-only: clients use the events as invalidation
// hints and refetch over HTTP.
func (h *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	userID, ok := c.Get("uid").(string)
	if !ok || userID == "" {
		return errors.Unauthorized("Authentication required", nil)
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return errors.Internal("Failed to upgrade connection", err)
	}

	client := &ws.Client{
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, 256),
	}

	h.wsManager.Register <- client

	go client.ReadPump(h.wsManager)
	go client.WritePump()

	return nil
}
