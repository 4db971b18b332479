package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"seekca/internal/domain/repository"
)

// fakeFeed records subscriptions and lets tests fire events by hand.
type fakeFeed struct {
	msgHandlers  []func(repository.MessageInsertedEvent)
	convHandlers []func(repository.ConversationUpdatedEvent)
	unsubCount   int
}

func (f *fakeFeed) OnMessageInserted(handler func(repository.MessageInsertedEvent)) repository.UnsubscribeFunc {
	f.msgHandlers = append(f.msgHandlers, handler)
	return func() { f.unsubCount++ }
}

func (f *fakeFeed) OnConversationUpdated(handler func(repository.ConversationUpdatedEvent)) repository.UnsubscribeFunc {
	f.convHandlers = append(f.convHandlers, handler)
	return func() { f.unsubCount++ }
}

func (f *fakeFeed) fireMessageInserted(conversationID string) {
	for _, h := range f.msgHandlers {
		h(repository.MessageInsertedEvent{
			ConversationID: conversationID,
			MessageID:      "m1",
			SenderID:       "other",
			CreatedAt:      time.Now(),
		})
	}
}

func (f *fakeFeed) fireConversationUpdated(conversationID string) {
	for _, h := range f.convHandlers {
		h(repository.ConversationUpdatedEvent{ConversationID: conversationID})
	}
}

// loadKey primes a cache key and returns a probe that reports whether the
// key has been refetched since.
func loadKey(t *testing.T, c *Cache, key string) func() bool {
	t.Helper()
	calls := 0
	loader := func(ctx context.Context) (interface{}, error) {
		calls++
		return calls, nil
	}
	_, err := c.Get(context.Background(), key, time.Minute, loader)
	assert.NoError(t, err)

	primed := calls
	return func() bool {
		_, err := c.Get(context.Background(), key, time.Minute, loader)
		assert.NoError(t, err)
		return calls > primed
	}
}

func TestListenerInvalidatesOnMessageInserted(t *testing.T) {
	c := New()
	feed := &fakeFeed{}
	l := NewListener(c, feed, "user-a")
	l.Start()
	defer l.Close()

	messagesRefetched := loadKey(t, c, MessagesKey("conv-1"))
	listRefetched := loadKey(t, c, ConversationsKey("user-a"))

	feed.fireMessageInserted("conv-1")

	assert.True(t, messagesRefetched())
	assert.True(t, listRefetched())
}

func TestListenerInvalidatesListOnConversationUpdated(t *testing.T) {
	c := New()
	feed := &fakeFeed{}
	l := NewListener(c, feed, "user-a")
	l.Start()
	defer l.Close()

	messagesRefetched := loadKey(t, c, MessagesKey("conv-1"))
	listRefetched := loadKey(t, c, ConversationsKey("user-a"))

	feed.fireConversationUpdated("conv-1")

	assert.False(t, messagesRefetched(), "conversation metadata changes do not touch message history")
	assert.True(t, listRefetched())
}

func TestListenerStartIsIdempotent(t *testing.T) {
	c := New()
	feed := &fakeFeed{}
	l := NewListener(c, feed, "user-a")
	l.Start()
	l.Start()
	defer l.Close()

	assert.Len(t, feed.msgHandlers, 1)
	assert.Len(t, feed.convHandlers, 1)
}

func TestListenerCloseUnsubscribesOnce(t *testing.T) {
	c := New()
	feed := &fakeFeed{}
	l := NewListener(c, feed, "user-a")
	l.Start()

	l.Close()
	l.Close()

	assert.Equal(t, 2, feed.unsubCount, "one unsubscribe per topic, first Close only")
}

func TestListenerIgnoresEventsAfterClose(t *testing.T) {
	c := New()
	feed := &fakeFeed{}
	l := NewListener(c, feed, "user-a")
	l.Start()

	listRefetched := loadKey(t, c, ConversationsKey("user-a"))

	// An event delivered after Close (a race in a real feed) must not
	// invalidate on behalf of a signed-out session.
	l.Close()
	feed.fireMessageInserted("conv-1")
	feed.fireConversationUpdated("conv-1")

	assert.False(t, listRefetched())
}

func TestListenerStartAfterCloseIsNoop(t *testing.T) {
	c := New()
	feed := &fakeFeed{}
	l := NewListener(c, feed, "user-a")
	l.Start()
	l.Close()
	l.Start()

	assert.Len(t, feed.msgHandlers, 1, "a closed listener never resubscribes")
}
