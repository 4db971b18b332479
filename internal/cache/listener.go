package cache

import (
	"sync"

	"seekca/internal/domain/repository"
	"seekca/pkg/logger"
)

// Listener binds the backend change feed to cache invalidation for one
// authenticated session. A message insert invalidates that conversation's
// messages plus the session user's conversation list; a conversation update
// invalidates the list. It is a latency optimization only; missed events are
// covered by the view-models' periodic polling.
//
// Exactly one Listener may be active per session. Close tears the
// subscriptions down once and silences any event that races with it, so a
// listener from a signed-out session can never invalidate on behalf of the
// next user.
type Listener struct {
	cache  *Cache
	feed   repository.ChangeFeed
	userID string

	mu      sync.Mutex
	started bool
	closed  bool
	unsubs  []repository.UnsubscribeFunc
}

func NewListener(c *Cache, feed repository.ChangeFeed, userID string) *Listener {
	return &Listener{
		cache:  c,
		feed:   feed,
		userID: userID,
	}
}

// Start subscribes to both change-feed topics. Calling Start on a started or
// closed listener is a no-op.
func (l *Listener) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started || l.closed {
		return
	}
	l.started = true

	l.unsubs = append(l.unsubs, l.feed.OnMessageInserted(func(evt repository.MessageInsertedEvent) {
		if !l.active() {
			return
		}
		l.cache.Invalidate(MessagesKey(evt.ConversationID))
		l.cache.Invalidate(ConversationsKey(l.userID))
	}))
	l.unsubs = append(l.unsubs, l.feed.OnConversationUpdated(func(evt repository.ConversationUpdatedEvent) {
		if !l.active() {
			return
		}
		l.cache.Invalidate(ConversationsKey(l.userID))
	}))

	logger.Debug("Realtime listener started for user %s", l.userID)
}

// Close unsubscribes from the feed. Safe to call multiple times; only the
// first call does the teardown.
func (l *Listener) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	unsubs := l.unsubs
	l.unsubs = nil
	l.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	logger.Debug("Realtime listener closed for user %s", l.userID)
}

func (l *Listener) active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.started && !l.closed
}
