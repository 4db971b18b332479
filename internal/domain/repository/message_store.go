package repository

import (
	"context"
	"time"

	"seekca/internal/domain/entity"
)

// MessageStore is the data-access surface for conversations and messages.
// Implementations must keep ListMessages ordered ascending by creation time
// and GetOrCreateConversation idempotent on the unordered participant pair.
type MessageStore interface {
	ListConversations(ctx context.Context, userID string) ([]*entity.Conversation, error)
	GetConversation(ctx context.Context, id string) (*entity.Conversation, error)
	GetOrCreateConversation(ctx context.Context, userID, otherUserID string) (*entity.Conversation, error)

	ListMessages(ctx context.Context, conversationID string) ([]*entity.Message, error)
	SendMessage(ctx context.Context, conversationID, senderID, content, messageType string) (*entity.Message, error)
	MarkMessagesRead(ctx context.Context, conversationID, readerID string) error
}

// MessageInsertedEvent is delivered when a message row is created.
type MessageInsertedEvent struct {
	ConversationID string
	MessageID      string
	SenderID       string
	CreatedAt      time.Time
}

// ConversationUpdatedEvent is delivered when a conversation row changes
// (last-message fields or read state).
type ConversationUpdatedEvent struct {
	ConversationID string
}

// UnsubscribeFunc tears down a change-feed subscription. Safe to call more
// than once.
type UnsubscribeFunc func()

// ChangeFeed is the backend's row-level change notification channel. Delivery
// is best-effort; consumers must not rely on every event arriving and should
// back it with periodic polling.
type ChangeFeed interface {
	OnMessageInserted(handler func(MessageInsertedEvent)) UnsubscribeFunc
	OnConversationUpdated(handler func(ConversationUpdatedEvent)) UnsubscribeFunc
}
