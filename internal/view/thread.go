package view

import (
	"context"
	"sort"
	"sync"
	"time"

	"seekca/internal/cache"
	"seekca/internal/domain/entity"
	"seekca/internal/domain/repository"
	"seekca/pkg/errors"
	"seekca/pkg/logger"
)

// ThreadState is the thread view-model's render state for the current
// conversation selection.
type ThreadState int

const (
	// ThreadIdle: no conversation selected; render the empty-state prompt.
	ThreadIdle ThreadState = iota
	// ThreadLoading: message fetch in flight; render skeletons.
	ThreadLoading
	// ThreadFailed: fetch failed with nothing cached; render a retry prompt.
	ThreadFailed
	// ThreadLoadedEmpty: zero messages; render "start the conversation".
	ThreadLoadedEmpty
	// ThreadLoaded: messages available in ascending chronological order.
	ThreadLoaded
	// ThreadSending: a send is in flight; compose input is locked.
	ThreadSending
)

func (s ThreadState) String() string {
	switch s {
	case ThreadIdle:
		return "idle"
	case ThreadLoading:
		return "loading"
	case ThreadFailed:
		return "failed"
	case ThreadLoadedEmpty:
		return "loaded-empty"
	case ThreadLoaded:
		return "loaded"
	case ThreadSending:
		return "sending"
	default:
		return "unknown"
	}
}

// Thread is the message thread view-model: it loads one conversation's
// history through the cache, sends messages, marks the thread read, and
// tracks scroll intent. Selecting a new conversation supersedes any in-flight
// load via a generation counter, so a late response for the previous
// conversation can never overwrite the current one.
type Thread struct {
	cache     *cache.Cache
	store     repository.MessageStore
	userID    string
	staleTime time.Duration

	mu             sync.Mutex
	state          ThreadState
	conversationID string
	generation     int
	messages       []*entity.Message
	compose        string
	loadErr        error
	viewingHistory bool
	scrollPending  bool
}

func NewThread(c *cache.Cache, store repository.MessageStore, userID string, staleTime time.Duration) *Thread {
	return &Thread{
		cache:     c,
		store:     store,
		userID:    userID,
		staleTime: staleTime,
		state:     ThreadIdle,
	}
}

// Select switches the thread to conversationID and loads its history. An
// empty id returns the thread to idle. Marking the conversation read is fired
// off best-effort: its failure is logged, never surfaced, and never blocks
// rendering.
func (t *Thread) Select(ctx context.Context, conversationID string) error {
	t.mu.Lock()
	t.generation++
	generation := t.generation
	t.conversationID = conversationID
	t.messages = nil
	t.loadErr = nil
	t.scrollPending = false
	t.viewingHistory = false
	if conversationID == "" {
		t.state = ThreadIdle
		t.mu.Unlock()
		return nil
	}
	t.state = ThreadLoading
	t.mu.Unlock()

	go t.markRead(conversationID)

	return t.load(ctx, generation, conversationID)
}

// Refresh reloads the current conversation through the cache. Used by the
// poll ticker and after realtime invalidations.
func (t *Thread) Refresh(ctx context.Context) error {
	t.mu.Lock()
	generation := t.generation
	conversationID := t.conversationID
	t.mu.Unlock()

	if conversationID == "" {
		return nil
	}
	return t.load(ctx, generation, conversationID)
}

func (t *Thread) load(ctx context.Context, generation int, conversationID string) error {
	value, err := t.cache.Get(ctx, cache.MessagesKey(conversationID), t.staleTime, func(ctx context.Context) (interface{}, error) {
		return t.store.ListMessages(ctx, conversationID)
	})
	messages, _ := value.([]*entity.Message)
	return t.apply(generation, messages, err)
}

// apply commits a load result unless the selection has moved on since the
// load started.
func (t *Thread) apply(generation int, messages []*entity.Message, err error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if generation != t.generation {
		// Late result for a conversation that is no longer selected.
		return nil
	}
	if t.state == ThreadSending {
		// A send owns the state; its completion path re-applies.
		return nil
	}

	if err != nil && messages == nil {
		t.loadErr = err
		t.state = ThreadFailed
		return err
	}

	ordered := orderMessages(messages)
	appended := len(ordered) > len(t.messages)
	t.messages = ordered
	t.loadErr = err

	if len(ordered) == 0 {
		t.state = ThreadLoadedEmpty
	} else {
		t.state = ThreadLoaded
		if appended && !t.viewingHistory {
			t.scrollPending = true
		}
	}
	return err
}

// Send posts the compose content to the current conversation. While a send is
// in flight further sends are rejected (double-submit guard). On failure the
// compose text is retained for retry; on success it is cleared, both cache
// keys are invalidated, and the thread reloads so the new message appears
// exactly once with its server-assigned id.
func (t *Thread) Send(ctx context.Context, content, messageType string) error {
	if messageType == "" {
		messageType = entity.MessageTypeText
	}

	t.mu.Lock()
	if t.conversationID == "" {
		t.mu.Unlock()
		return errors.BadRequest("No conversation selected", nil)
	}
	if t.state == ThreadSending {
		t.mu.Unlock()
		return errors.Conflict("A send is already in flight")
	}
	generation := t.generation
	conversationID := t.conversationID
	priorState := t.state
	t.compose = content
	t.state = ThreadSending
	t.mu.Unlock()

	_, err := t.store.SendMessage(ctx, conversationID, t.userID, content, messageType)

	t.mu.Lock()
	if generation != t.generation {
		// Selection changed mid-send. Leave the new selection's state alone
		// but still invalidate so the sent message shows up over there too.
		t.mu.Unlock()
		if err == nil {
			t.cache.Invalidate(cache.MessagesKey(conversationID))
			t.cache.Invalidate(cache.ConversationsKey(t.userID))
		}
		return err
	}

	if err != nil {
		// Compose stays as typed; the user retries.
		t.state = priorState
		t.mu.Unlock()
		return err
	}

	t.compose = ""
	t.state = priorState
	t.mu.Unlock()

	t.cache.Invalidate(cache.MessagesKey(conversationID))
	t.cache.Invalidate(cache.ConversationsKey(t.userID))
	return t.load(ctx, generation, conversationID)
}

func (t *Thread) markRead(conversationID string) {
	if err := t.store.MarkMessagesRead(context.Background(), conversationID, t.userID); err != nil {
		logger.Warn("Failed to mark conversation %s read for user %s: %v", conversationID, t.userID, err)
		return
	}
	// Unread badges live on the conversation list.
	t.cache.Invalidate(cache.ConversationsKey(t.userID))
}

// Messages returns the current history, ascending by creation time. Own-sent
// rows are the ones whose SenderID equals the injected user id.
func (t *Thread) Messages() []*entity.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*entity.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

func (t *Thread) State() ThreadState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Thread) ConversationID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conversationID
}

// LoadErr reports the last load failure, if any. A non-nil error alongside
// ThreadLoaded means the shown history is stale-but-available.
func (t *Thread) LoadErr() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loadErr
}

// SetCompose stores the draft text. Compose returns it; it survives a failed
// send.
func (t *Thread) SetCompose(text string) {
	t.mu.Lock()
	t.compose = text
	t.mu.Unlock()
}

func (t *Thread) Compose() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.compose
}

// SetViewingHistory suppresses auto-scroll while the user reads earlier
// messages.
func (t *Thread) SetViewingHistory(viewing bool) {
	t.mu.Lock()
	t.viewingHistory = viewing
	t.mu.Unlock()
}

// ConsumeScrollRequest reports whether the renderer should scroll to the
// newest message, clearing the flag.
func (t *Thread) ConsumeScrollRequest() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	pending := t.scrollPending
	t.scrollPending = false
	return pending
}

// StartPolling refetches the active thread on a fixed interval until ctx is
// done. This is the backstop for missed change-feed events.
func (t *Thread) StartPolling(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				t.mu.Lock()
				conversationID := t.conversationID
				t.mu.Unlock()
				if conversationID == "" {
					continue
				}
				t.cache.Invalidate(cache.MessagesKey(conversationID))
				if err := t.Refresh(ctx); err != nil {
					logger.Debug("Thread poll failed: %v", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// orderMessages sorts ascending by creation time (server-assigned order is
// authoritative, not arrival order) and drops duplicate ids so a message can
// never render twice.
func orderMessages(messages []*entity.Message) []*entity.Message {
	out := make([]*entity.Message, len(messages))
	copy(out, messages)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	seen := make(map[string]struct{}, len(out))
	deduped := out[:0]
	for _, m := range out {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		deduped = append(deduped, m)
	}
	return deduped
}
