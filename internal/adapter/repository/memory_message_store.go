package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"seekca/internal/domain/entity"
	"seekca/internal/domain/repository"
	"seekca/pkg/errors"
)

// MemoryMessageStore is an in-memory MessageStore and ChangeFeed for tests and
// local development. Feed handlers fire synchronously after each write, which
// makes invalidation behavior deterministic in tests.
type MemoryMessageStore struct {
	mu            sync.Mutex
	conversations map[string]*entity.Conversation
	messages      map[string][]*entity.Message
	msgSubs       map[int]func(repository.MessageInsertedEvent)
	convSubs      map[int]func(repository.ConversationUpdatedEvent)
	nextSubID     int
}

func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{
		conversations: make(map[string]*entity.Conversation),
		messages:      make(map[string][]*entity.Message),
		msgSubs:       make(map[int]func(repository.MessageInsertedEvent)),
		convSubs:      make(map[int]func(repository.ConversationUpdatedEvent)),
	}
}

var _ repository.MessageStore = (*MemoryMessageStore)(nil)
var _ repository.ChangeFeed = (*MemoryMessageStore)(nil)

func (s *MemoryMessageStore) GetOrCreateConversation(ctx context.Context, userID, otherUserID string) (*entity.Conversation, error) {
	s.mu.Lock()
	pairKey := PairKey(userID, otherUserID)
	for _, c := range s.conversations {
		if c.PairKey == pairKey {
			clone := cloneConversation(c)
			s.mu.Unlock()
			return clone, nil
		}
	}

	now := time.Now()
	conversation := &entity.Conversation{
		ID:             uuid.New().String(),
		Participant1ID: userID,
		Participant2ID: otherUserID,
		PairKey:        pairKey,
		UnreadCount:    make(map[string]int),
		LastMessageAt:  now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.conversations[conversation.ID] = conversation
	clone := cloneConversation(conversation)
	s.mu.Unlock()
	return clone, nil
}

func (s *MemoryMessageStore) GetConversation(ctx context.Context, id string) (*entity.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conversation, ok := s.conversations[id]
	if !ok {
		return nil, errors.NotFound("Conversation", nil)
	}
	return cloneConversation(conversation), nil
}

func (s *MemoryMessageStore) ListConversations(ctx context.Context, userID string) ([]*entity.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.Conversation
	for _, c := range s.conversations {
		if c.HasParticipant(userID) {
			out = append(out, cloneConversation(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	return out, nil
}

func (s *MemoryMessageStore) ListMessages(ctx context.Context, conversationID string) ([]*entity.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[conversationID]; !ok {
		return nil, errors.NotFound("Conversation", nil)
	}
	msgs := s.messages[conversationID]
	out := make([]*entity.Message, len(msgs))
	for i, m := range msgs {
		clone := *m
		out[i] = &clone
	}
	return out, nil
}

func (s *MemoryMessageStore) SendMessage(ctx context.Context, conversationID, senderID, content, messageType string) (*entity.Message, error) {
	s.mu.Lock()
	conversation, ok := s.conversations[conversationID]
	if !ok {
		s.mu.Unlock()
		return nil, errors.NotFound("Conversation", nil)
	}
	if !conversation.HasParticipant(senderID) {
		s.mu.Unlock()
		return nil, errors.Forbidden("Sender is not a participant in this conversation", nil)
	}

	message := &entity.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		Type:           messageType,
		CreatedAt:      time.Now(),
	}
	s.messages[conversationID] = append(s.messages[conversationID], message)

	conversation.LastMessage = content
	conversation.LastMessageType = messageType
	conversation.LastMessageAt = message.CreatedAt
	conversation.UpdatedAt = message.CreatedAt
	if conversation.UnreadCount == nil {
		conversation.UnreadCount = make(map[string]int)
	}
	if other, ok := conversation.OtherParticipant(senderID); ok {
		conversation.UnreadCount[other]++
	}

	clone := *message
	msgSubs, convSubs := s.snapshotSubs()
	s.mu.Unlock()

	for _, h := range msgSubs {
		h(repository.MessageInsertedEvent{
			ConversationID: message.ConversationID,
			MessageID:      message.ID,
			SenderID:       message.SenderID,
			CreatedAt:      message.CreatedAt,
		})
	}
	for _, h := range convSubs {
		h(repository.ConversationUpdatedEvent{ConversationID: conversationID})
	}

	return &clone, nil
}

func (s *MemoryMessageStore) MarkMessagesRead(ctx context.Context, conversationID, readerID string) error {
	s.mu.Lock()
	conversation, ok := s.conversations[conversationID]
	if !ok {
		s.mu.Unlock()
		return errors.NotFound("Conversation", nil)
	}
	other, isParticipant := conversation.OtherParticipant(readerID)
	if !isParticipant {
		s.mu.Unlock()
		return errors.Forbidden("Reader is not a participant in this conversation", nil)
	}

	changed := false
	for _, m := range s.messages[conversationID] {
		if m.SenderID == other && !m.Read {
			m.Read = true
			changed = true
		}
	}
	if conversation.UnreadFor(readerID) > 0 {
		conversation.UnreadCount[readerID] = 0
		conversation.UpdatedAt = time.Now()
		changed = true
	}

	var convSubs []func(repository.ConversationUpdatedEvent)
	if changed {
		_, convSubs = s.snapshotSubs()
	}
	s.mu.Unlock()

	for _, h := range convSubs {
		h(repository.ConversationUpdatedEvent{ConversationID: conversationID})
	}
	return nil
}

func (s *MemoryMessageStore) OnMessageInserted(handler func(repository.MessageInsertedEvent)) repository.UnsubscribeFunc {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.msgSubs[id] = handler
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.msgSubs, id)
		s.mu.Unlock()
	}
}

func (s *MemoryMessageStore) OnConversationUpdated(handler func(repository.ConversationUpdatedEvent)) repository.UnsubscribeFunc {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.convSubs[id] = handler
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.convSubs, id)
		s.mu.Unlock()
	}
}

// snapshotSubs copies handler sets so they can be invoked outside the lock.
func (s *MemoryMessageStore) snapshotSubs() ([]func(repository.MessageInsertedEvent), []func(repository.ConversationUpdatedEvent)) {
	msgSubs := make([]func(repository.MessageInsertedEvent), 0, len(s.msgSubs))
	for _, h := range s.msgSubs {
		msgSubs = append(msgSubs, h)
	}
	convSubs := make([]func(repository.ConversationUpdatedEvent), 0, len(s.convSubs))
	for _, h := range s.convSubs {
		convSubs = append(convSubs, h)
	}
	return msgSubs, convSubs
}

func cloneConversation(c *entity.Conversation) *entity.Conversation {
	clone := *c
	clone.UnreadCount = make(map[string]int, len(c.UnreadCount))
	for k, v := range c.UnreadCount {
		clone.UnreadCount[k] = v
	}
	return &clone
}
