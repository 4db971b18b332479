package router

import (
	"github.com/labstack/echo/v4"

	"seekca/internal/adapter/api/handler"
	"seekca/internal/adapter/api/middleware"
)

func Setup(
	e *echo.Echo,
	messagingHandler *handler.MessagingHandler,
	wsHandler *handler.WebSocketHandler,
	healthHandler *handler.HealthHandler,
	authMiddleware *middleware.AuthMiddleware,
) {
	SetupMessagingRouter(e, messagingHandler, authMiddleware)
	SetupWebSocketRouter(e, wsHandler, authMiddleware)
	SetupHealthRouter(e, healthHandler)
}
