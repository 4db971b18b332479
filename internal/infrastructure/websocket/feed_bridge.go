package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"seekca/internal/domain/repository"
	"seekca/pkg/logger"
)

// FeedBridge relays backend change-feed events to the participants' open
// websocket connections. It is the single push path: writes from any origin
// (this instance, another instance, a direct backend write) reach connected
// clients through it, and clients treat the payloads purely as invalidation
// hints: they refetch rather than merge.
type FeedBridge struct {
	feed    repository.ChangeFeed
	store   repository.MessageStore
	manager *Manager

	mu     sync.Mutex
	unsubs []repository.UnsubscribeFunc
	closed bool
}

type messageInsertedPayload struct {
	Type           string    `json:"type"`
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id"`
	SenderID       string    `json:"sender_id"`
	CreatedAt      time.Time `json:"created_at"`
}

type conversationUpdatedPayload struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
}

func NewFeedBridge(feed repository.ChangeFeed, store repository.MessageStore, manager *Manager) *FeedBridge {
	return &FeedBridge{
		feed:    feed,
		store:   store,
		manager: manager,
	}
}

// Start subscribes to both feed topics.
func (b *FeedBridge) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || len(b.unsubs) > 0 {
		return
	}

	b.unsubs = append(b.unsubs, b.feed.OnMessageInserted(func(evt repository.MessageInsertedEvent) {
		payload, err := json.Marshal(messageInsertedPayload{
			Type:           "message_inserted",
			ConversationID: evt.ConversationID,
			MessageID:      evt.MessageID,
			SenderID:       evt.SenderID,
			CreatedAt:      evt.CreatedAt,
		})
		if err != nil {
			return
		}
		b.pushToParticipants(evt.ConversationID, payload)
	}))

	b.unsubs = append(b.unsubs, b.feed.OnConversationUpdated(func(evt repository.ConversationUpdatedEvent) {
		payload, err := json.Marshal(conversationUpdatedPayload{
			Type:           "conversation_updated",
			ConversationID: evt.ConversationID,
		})
		if err != nil {
			return
		}
		b.pushToParticipants(evt.ConversationID, payload)
	}))
}

// Close unsubscribes; only the first call tears down.
func (b *FeedBridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	unsubs := b.unsubs
	b.unsubs = nil
	b.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}

func (b *FeedBridge) pushToParticipants(conversationID string, payload []byte) {
	conversation, err := b.store.GetConversation(context.Background(), conversationID)
	if err != nil {
		logger.Warn("FeedBridge: failed to load conversation %s: %v", conversationID, err)
		return
	}
	b.manager.SendToUser(conversation.Participant1ID, payload)
	b.manager.SendToUser(conversation.Participant2ID, payload)
}
