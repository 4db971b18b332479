package view

import (
	"context"
	"time"

	"seekca/internal/cache"
	"seekca/internal/domain/repository"
)

// SessionConfig carries the sync tuning for one authenticated session.
type SessionConfig struct {
	ConversationStaleTime    time.Duration
	MessageStaleTime         time.Duration
	ConversationPollInterval time.Duration
	MessagePollInterval      time.Duration
}

// DefaultSessionConfig matches the production tuning: the conversation list
// tolerates 30s of staleness, the active thread 10s, with polling at the same
// cadence as the backstop for missed change-feed events.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		ConversationStaleTime:    30 * time.Second,
		MessageStaleTime:         10 * time.Second,
		ConversationPollInterval: 30 * time.Second,
		MessagePollInterval:      10 * time.Second,
	}
}

// Session bundles the sync core for one signed-in user: a query cache, the
// realtime invalidation listener, the conversation list, and the message
// thread. Selecting a row in the list drives the thread. Close tears the
// realtime subscription down exactly once; a Session must never outlive its
// user's sign-in.
type Session struct {
	UserID string
	Cache  *cache.Cache
	List   *ConversationList
	Thread *Thread

	cfg        SessionConfig
	listener   *cache.Listener
	pollCancel context.CancelFunc
}

func NewSession(store repository.MessageStore, feed repository.ChangeFeed, userID string, cfg SessionConfig) *Session {
	c := cache.New()

	thread := NewThread(c, store, userID, cfg.MessageStaleTime)
	list := NewConversationList(c, store, userID, cfg.ConversationStaleTime, func(conversationID string) {
		// Selection flows from the list into the thread; a late load result
		// for the previous selection is discarded by the thread itself.
		go thread.Select(context.Background(), conversationID)
	})

	return &Session{
		UserID:   userID,
		Cache:    c,
		List:     list,
		Thread:   thread,
		cfg:      cfg,
		listener: cache.NewListener(c, feed, userID),
	}
}

// Start activates the realtime listener and the poll tickers.
func (s *Session) Start(ctx context.Context) {
	s.listener.Start()

	pollCtx, cancel := context.WithCancel(ctx)
	s.pollCancel = cancel

	s.List.StartPolling(pollCtx, s.cfg.ConversationPollInterval)
	s.Thread.StartPolling(pollCtx, s.cfg.MessagePollInterval)
}

// Close stops polling and unsubscribes from the change feed. Safe to call
// more than once.
func (s *Session) Close() {
	if s.pollCancel != nil {
		s.pollCancel()
	}
	s.listener.Close()
}
