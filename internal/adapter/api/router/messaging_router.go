package router

import (
	"github.com/labstack/echo/v4"

	"seekca/internal/adapter/api/handler"
	"seekca/internal/adapter/api/middleware"
)

// SetupMessagingRouter sets up all conversation and message routes
func SetupMessagingRouter(e *echo.Echo, messagingHandler *handler.MessagingHandler, authMiddleware *middleware.AuthMiddleware) {
	conversationGroup := e.Group("/v1/conversations")
	conversationGroup.Use(authMiddleware.Authenticate)

	// Conversation management
	conversationGroup.POST("", messagingHandler.StartConversation) // POST /v1/conversations - Get or create direct conversation
	conversationGroup.GET("", messagingHandler.ListConversations)  // GET /v1/conversations - Get user's conversations
	conversationGroup.GET("/:id", messagingHandler.GetConversation)
	conversationGroup.PUT("/:id/read", messagingHandler.MarkRead)

	// Message management
	conversationGroup.POST("/:id/messages", messagingHandler.SendMessage)
	conversationGroup.GET("/:id/messages", messagingHandler.GetMessages)

	// Badge for the application shell
	badgeGroup := e.Group("/v1/messages")
	badgeGroup.Use(authMiddleware.Authenticate)
	badgeGroup.GET("/unread-count", messagingHandler.UnreadCount)
}
