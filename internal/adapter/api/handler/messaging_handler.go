package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"seekca/internal/usecase"
	"seekca/pkg/response"
)

type MessagingHandler struct {
	messagingUseCase *usecase.MessagingUseCase
}

func NewMessagingHandler(messagingUseCase *usecase.MessagingUseCase) *MessagingHandler {
	return &MessagingHandler{
		messagingUseCase: messagingUseCase,
	}
}

type startConversationRequest struct {
	RecipientID    string `json:"recipient_id" validate:"required"`
	InitialMessage string `json:"initial_message"`
}

type sendMessageRequest struct {
	Content string `json:"content" validate:"required"`
	Type    string `json:"type" validate:"omitempty,oneof=text image file system"`
}

// StartConversation finds or creates the direct conversation with another user
func (h *MessagingHandler) StartConversation(c echo.Context) error {
	var req startConversationRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)

	conversation, err := h.messagingUseCase.StartConversation(c.Request().Context(), userID, usecase.StartConversationInput{
		RecipientID:    req.RecipientID,
		InitialMessage: req.InitialMessage,
	})

	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, conversation)
}

// ListConversations gets all conversations for the authenticated user
func (h *MessagingHandler) ListConversations(c echo.Context) error {
	userID := c.Get("uid").(string)

	conversations, err := h.messagingUseCase.ListConversations(c.Request().Context(), userID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, conversations)
}

// GetConversation gets a specific conversation by ID
func (h *MessagingHandler) GetConversation(c echo.Context) error {
	conversationID := c.Param("id")
	userID := c.Get("uid").(string)

	conversation, err := h.messagingUseCase.GetConversation(c.Request().Context(), userID, conversationID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, conversation)
}

// SendMessage sends a message to a conversation
func (h *MessagingHandler) SendMessage(c echo.Context) error {
	conversationID := c.Param("id")
	userID := c.Get("uid").(string)

	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	message, err := h.messagingUseCase.SendMessage(c.Request().Context(), userID, usecase.SendMessageInput{
		ConversationID: conversationID,
		Content:        req.Content,
		Type:           req.Type,
	})

	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, message)
}

// GetMessages gets the message history for a conversation, oldest first
func (h *MessagingHandler) GetMessages(c echo.Context) error {
	conversationID := c.Param("id")
	userID := c.Get("uid").(string)

	messages, err := h.messagingUseCase.GetMessages(c.Request().Context(), userID, conversationID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, messages)
}

// MarkRead marks a conversation as read for the authenticated user
func (h *MessagingHandler) MarkRead(c echo.Context) error {
	conversationID := c.Param("id")
	userID := c.Get("uid").(string)

	err := h.messagingUseCase.MarkRead(c.Request().Context(), userID, conversationID)
	if err != nil {
		return response.Error(c, err)
	}

	return c.NoContent(http.StatusOK)
}

// UnreadCount returns the total unread count across all conversations, for
// the shell's notification badge
func (h *MessagingHandler) UnreadCount(c echo.Context) error {
	userID := c.Get("uid").(string)

	total, err := h.messagingUseCase.UnreadTotal(c.Request().Context(), userID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]int{"unread_count": total})
}
