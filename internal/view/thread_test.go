package view

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"seekca/internal/adapter/repository"
	"seekca/internal/cache"
	"seekca/internal/domain/entity"
	"seekca/pkg/errors"
)

func newThreadFixture(t *testing.T) (*repository.MemoryMessageStore, *Thread) {
	t.Helper()
	store := repository.NewMemoryMessageStore()
	thread := NewThread(cache.New(), store, "alice", time.Minute)
	return store, thread
}

func TestThreadStartsIdle(t *testing.T) {
	_, thread := newThreadFixture(t)
	assert.Equal(t, ThreadIdle, thread.State())
	assert.Empty(t, thread.Messages())
}

func TestSelectLoadsHistory(t *testing.T) {
	store, thread := newThreadFixture(t)
	ctx := context.Background()

	conv, _ := store.GetOrCreateConversation(ctx, "alice", "bob")
	_, _ = store.SendMessage(ctx, conv.ID, "bob", "hello", "text")
	_, _ = store.SendMessage(ctx, conv.ID, "alice", "hi back", "text")

	assert.NoError(t, thread.Select(ctx, conv.ID))
	assert.Equal(t, ThreadLoaded, thread.State())

	messages := thread.Messages()
	assert.Len(t, messages, 2)
	assert.Equal(t, "hello", messages[0].Content)
	assert.Equal(t, "hi back", messages[1].Content)
}

func TestSelectEmptyConversation(t *testing.T) {
	store, thread := newThreadFixture(t)
	ctx := context.Background()

	conv, _ := store.GetOrCreateConversation(ctx, "alice", "bob")

	assert.NoError(t, thread.Select(ctx, conv.ID))
	assert.Equal(t, ThreadLoadedEmpty, thread.State())
	assert.Empty(t, thread.Messages())
}

func TestDeselectReturnsToIdle(t *testing.T) {
	store, thread := newThreadFixture(t)
	ctx := context.Background()

	conv, _ := store.GetOrCreateConversation(ctx, "alice", "bob")
	assert.NoError(t, thread.Select(ctx, conv.ID))

	assert.NoError(t, thread.Select(ctx, ""))
	assert.Equal(t, ThreadIdle, thread.State())
	assert.Empty(t, thread.Messages())
}

func TestSelectUnknownConversationFails(t *testing.T) {
	_, thread := newThreadFixture(t)

	err := thread.Select(context.Background(), "missing")
	assert.Error(t, err)
	assert.Equal(t, ThreadFailed, thread.State())
	assert.Error(t, thread.LoadErr())
}

func TestSelectMarksConversationRead(t *testing.T) {
	store, thread := newThreadFixture(t)
	ctx := context.Background()

	conv, _ := store.GetOrCreateConversation(ctx, "alice", "bob")
	_, _ = store.SendMessage(ctx, conv.ID, "bob", "unread", "text")

	assert.NoError(t, thread.Select(ctx, conv.ID))

	// Mark-read is fire-and-forget; wait for the goroutine.
	assert.Eventually(t, func() bool {
		c, err := store.GetConversation(ctx, conv.ID)
		return err == nil && c.UnreadFor("alice") == 0
	}, time.Second, 10*time.Millisecond)
}

func TestSendAppendsExactlyOnce(t *testing.T) {
	store, thread := newThreadFixture(t)
	ctx := context.Background()

	conv, _ := store.GetOrCreateConversation(ctx, "alice", "bob")
	assert.NoError(t, thread.Select(ctx, conv.ID))

	thread.SetCompose("my message")
	assert.NoError(t, thread.Send(ctx, "my message", ""))

	assert.Equal(t, "", thread.Compose(), "compose clears on success")
	assert.Equal(t, ThreadLoaded, thread.State())

	count := 0
	for _, m := range thread.Messages() {
		if m.Content == "my message" {
			count++
			assert.Equal(t, "alice", m.SenderID)
			assert.NotEmpty(t, m.ID, "rendered with its server-assigned id")
		}
	}
	assert.Equal(t, 1, count)
}

func TestSendFailureRetainsCompose(t *testing.T) {
	store := &failingSendStore{MemoryMessageStore: repository.NewMemoryMessageStore()}
	thread := NewThread(cache.New(), store, "alice", time.Minute)
	ctx := context.Background()

	conv, _ := store.GetOrCreateConversation(ctx, "alice", "bob")
	assert.NoError(t, thread.Select(ctx, conv.ID))

	store.fail = true
	thread.SetCompose("keep me")
	err := thread.Send(ctx, "keep me", "")
	assert.Error(t, err)

	assert.Equal(t, "keep me", thread.Compose(), "draft survives a failed send")
	assert.Equal(t, ThreadLoadedEmpty, thread.State())
	assert.Empty(t, thread.Messages(), "no optimistic insert")

	// Retry after the backend recovers.
	store.fail = false
	assert.NoError(t, thread.Send(ctx, "keep me", ""))
	assert.Len(t, thread.Messages(), 1)
}

func TestSendRejectsDoubleSubmit(t *testing.T) {
	store := &blockingSendStore{
		MemoryMessageStore: repository.NewMemoryMessageStore(),
		release:            make(chan struct{}),
	}
	thread := NewThread(cache.New(), store, "alice", time.Minute)
	ctx := context.Background()

	conv, _ := store.GetOrCreateConversation(ctx, "alice", "bob")
	assert.NoError(t, thread.Select(ctx, conv.ID))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, thread.Send(ctx, "first", ""))
	}()

	assert.Eventually(t, func() bool {
		return thread.State() == ThreadSending
	}, time.Second, 5*time.Millisecond)

	err := thread.Send(ctx, "second", "")
	assert.True(t, errors.Is(err, "CONFLICT"))

	close(store.release)
	wg.Wait()

	messages := thread.Messages()
	assert.Len(t, messages, 1)
	assert.Equal(t, "first", messages[0].Content)
}

func TestSendWithoutSelection(t *testing.T) {
	_, thread := newThreadFixture(t)

	err := thread.Send(context.Background(), "orphan", "")
	assert.True(t, errors.Is(err, "BAD_REQUEST"))
}

func TestLateLoadForPreviousSelectionIsDiscarded(t *testing.T) {
	store := &slowListStore{
		MemoryMessageStore: repository.NewMemoryMessageStore(),
		release:            make(chan struct{}),
	}
	thread := NewThread(cache.New(), store, "alice", time.Minute)
	ctx := context.Background()

	convA, _ := store.GetOrCreateConversation(ctx, "alice", "bob")
	convB, _ := store.GetOrCreateConversation(ctx, "alice", "carol")
	_, _ = store.SendMessage(ctx, convA.ID, "bob", "from A", "text")
	_, _ = store.SendMessage(ctx, convB.ID, "carol", "from B", "text")

	store.slowFor = convA.ID

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = thread.Select(ctx, convA.ID)
	}()

	assert.Eventually(t, func() bool {
		return thread.ConversationID() == convA.ID
	}, time.Second, 5*time.Millisecond)

	// Switch selection while A's load hangs, then let A's result arrive late.
	assert.NoError(t, thread.Select(ctx, convB.ID))
	close(store.release)
	wg.Wait()

	assert.Equal(t, convB.ID, thread.ConversationID())
	messages := thread.Messages()
	assert.Len(t, messages, 1)
	assert.Equal(t, "from B", messages[0].Content, "stale result never overwrites the new selection")
}

func TestInterleavedArrivalRendersInServerOrder(t *testing.T) {
	base := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	out := orderMessages([]*entity.Message{
		{ID: "m3", Content: "third", CreatedAt: base.Add(2 * time.Second)},
		{ID: "m1", Content: "first", CreatedAt: base},
		{ID: "m2", Content: "second", CreatedAt: base.Add(time.Second)},
		{ID: "m2", Content: "second again", CreatedAt: base.Add(time.Second)},
	})

	assert.Len(t, out, 3)
	assert.Equal(t, "first", out[0].Content)
	assert.Equal(t, "second", out[1].Content)
	assert.Equal(t, "third", out[2].Content)
}

func TestScrollRequestedOnNewMessages(t *testing.T) {
	store, thread := newThreadFixture(t)
	ctx := context.Background()

	conv, _ := store.GetOrCreateConversation(ctx, "alice", "bob")
	_, _ = store.SendMessage(ctx, conv.ID, "bob", "hello", "text")

	assert.NoError(t, thread.Select(ctx, conv.ID))
	assert.True(t, thread.ConsumeScrollRequest())
	assert.False(t, thread.ConsumeScrollRequest(), "flag clears on consume")

	// Refresh with nothing new requests no scroll.
	thread.cache.Invalidate(cache.MessagesKey(conv.ID))
	assert.NoError(t, thread.Refresh(ctx))
	assert.False(t, thread.ConsumeScrollRequest())

	// A new arrival requests one.
	_, _ = store.SendMessage(ctx, conv.ID, "bob", "more", "text")
	thread.cache.Invalidate(cache.MessagesKey(conv.ID))
	assert.NoError(t, thread.Refresh(ctx))
	assert.True(t, thread.ConsumeScrollRequest())
}

func TestViewingHistorySuppressesScroll(t *testing.T) {
	store, thread := newThreadFixture(t)
	ctx := context.Background()

	conv, _ := store.GetOrCreateConversation(ctx, "alice", "bob")
	_, _ = store.SendMessage(ctx, conv.ID, "bob", "hello", "text")

	assert.NoError(t, thread.Select(ctx, conv.ID))
	thread.ConsumeScrollRequest()

	thread.SetViewingHistory(true)
	_, _ = store.SendMessage(ctx, conv.ID, "bob", "more", "text")
	thread.cache.Invalidate(cache.MessagesKey(conv.ID))
	assert.NoError(t, thread.Refresh(ctx))
	assert.False(t, thread.ConsumeScrollRequest(), "no auto-scroll while reading history")
}

func TestRefreshKeepsHistoryOnFailure(t *testing.T) {
	store := &flakyStore{MemoryMessageStore: repository.NewMemoryMessageStore()}
	thread := NewThread(cache.New(), store, "alice", time.Minute)
	ctx := context.Background()

	conv, _ := store.GetOrCreateConversation(ctx, "alice", "bob")
	_, _ = store.SendMessage(ctx, conv.ID, "bob", "hello", "text")

	assert.NoError(t, thread.Select(ctx, conv.ID))
	assert.Len(t, thread.Messages(), 1)

	store.failMessages = true
	thread.cache.Invalidate(cache.MessagesKey(conv.ID))
	assert.Error(t, thread.Refresh(ctx))

	assert.Equal(t, ThreadLoaded, thread.State(), "stale history is still shown")
	assert.Len(t, thread.Messages(), 1)
	assert.Error(t, thread.LoadErr())
}

// failingSendStore fails SendMessage on demand.
type failingSendStore struct {
	*repository.MemoryMessageStore
	fail bool
}

func (s *failingSendStore) SendMessage(ctx context.Context, conversationID, senderID, content, messageType string) (*entity.Message, error) {
	if s.fail {
		return nil, errors.Internal("send failed", nil)
	}
	return s.MemoryMessageStore.SendMessage(ctx, conversationID, senderID, content, messageType)
}

// blockingSendStore holds SendMessage until release is closed.
type blockingSendStore struct {
	*repository.MemoryMessageStore
	release chan struct{}
}

func (s *blockingSendStore) SendMessage(ctx context.Context, conversationID, senderID, content, messageType string) (*entity.Message, error) {
	<-s.release
	return s.MemoryMessageStore.SendMessage(ctx, conversationID, senderID, content, messageType)
}

// slowListStore holds ListMessages for one conversation until release is
// closed.
type slowListStore struct {
	*repository.MemoryMessageStore
	release chan struct{}
	slowFor string
}

func (s *slowListStore) ListMessages(ctx context.Context, conversationID string) ([]*entity.Message, error) {
	if conversationID == s.slowFor {
		<-s.release
	}
	return s.MemoryMessageStore.ListMessages(ctx, conversationID)
}
