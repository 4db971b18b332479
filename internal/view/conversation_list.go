package view

import (
	"context"
	"sync"
	"time"

	"seekca/internal/cache"
	"seekca/internal/domain/entity"
	"seekca/internal/domain/repository"
	"seekca/pkg/logger"
)

// ConversationRow is one rendered row of the conversation list.
type ConversationRow struct {
	ID                 string
	OtherParticipantID string
	LastMessage        string
	LastMessageType    string
	LastMessageLabel   string
	UnreadCount        int
	Selected           bool
}

// ConversationList presents the signed-in user's conversations ordered by
// recency, annotated with the counterpart participant and unread badge. The
// current user id is injected at construction; the model never looks it up
// from ambient state.
type ConversationList struct {
	cache     *cache.Cache
	store     repository.MessageStore
	userID    string
	staleTime time.Duration

	mu         sync.Mutex
	selectedID string
	onSelect   func(conversationID string)
}

func NewConversationList(c *cache.Cache, store repository.MessageStore, userID string, staleTime time.Duration, onSelect func(conversationID string)) *ConversationList {
	return &ConversationList{
		cache:     c,
		store:     store,
		userID:    userID,
		staleTime: staleTime,
		onSelect:  onSelect,
	}
}

// Rows loads the conversation list through the cache and shapes it for
// display. A conversation where neither participant slot matches the current
// user is a data integrity fault: the row is skipped and logged, never a
// crash. On load failure any previously rendered rows remain available
// alongside the error.
func (l *ConversationList) Rows(ctx context.Context) ([]ConversationRow, error) {
	value, err := l.cache.Get(ctx, cache.ConversationsKey(l.userID), l.staleTime, func(ctx context.Context) (interface{}, error) {
		return l.store.ListConversations(ctx, l.userID)
	})

	conversations, _ := value.([]*entity.Conversation)

	l.mu.Lock()
	selectedID := l.selectedID
	l.mu.Unlock()

	now := time.Now()
	rows := make([]ConversationRow, 0, len(conversations))
	for _, c := range conversations {
		other, ok := c.OtherParticipant(l.userID)
		if !ok {
			logger.Warn("Conversation %s does not include user %s; skipping row", c.ID, l.userID)
			continue
		}
		rows = append(rows, ConversationRow{
			ID:                 c.ID,
			OtherParticipantID: other,
			LastMessage:        c.LastMessage,
			LastMessageType:    c.LastMessageType,
			LastMessageLabel:   RelativeTime(c.LastMessageAt, now),
			UnreadCount:        c.UnreadFor(l.userID),
			Selected:           c.ID == selectedID,
		})
	}

	return rows, err
}

// Select highlights a conversation and reports the selection upward.
func (l *ConversationList) Select(conversationID string) {
	l.mu.Lock()
	l.selectedID = conversationID
	onSelect := l.onSelect
	l.mu.Unlock()

	if onSelect != nil {
		onSelect(conversationID)
	}
}

// SelectedID returns the currently highlighted conversation, if any.
func (l *ConversationList) SelectedID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.selectedID
}

// UnreadTotal sums unread counts across all rows, for the shell's
// notification badge.
func (l *ConversationList) UnreadTotal(ctx context.Context) (int, error) {
	rows, err := l.Rows(ctx)
	total := 0
	for _, row := range rows {
		total += row.UnreadCount
	}
	return total, err
}

// StartPolling refetches the list on a fixed interval until ctx is done.
// This is the correctness backstop for change-feed events that never arrive.
func (l *ConversationList) StartPolling(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				l.cache.Invalidate(cache.ConversationsKey(l.userID))
				if _, err := l.Rows(ctx); err != nil {
					logger.Debug("Conversation list poll failed: %v", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
