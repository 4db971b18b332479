package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"seekca/internal/adapter/repository"
	"seekca/internal/domain/entity"
	"seekca/pkg/errors"
)

// fakeUserRepo serves a fixed user set.
type fakeUserRepo struct {
	users map[string]*entity.User
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, errors.NotFound("User", nil)
	}
	return u, nil
}

func newFixture(t *testing.T) (*repository.MemoryMessageStore, *MessagingUseCase) {
	t.Helper()
	store := repository.NewMemoryMessageStore()
	userRepo := &fakeUserRepo{users: map[string]*entity.User{
		"alice": {ID: "alice", Username: "alice", DisplayName: "Alice", Role: entity.RoleBusiness},
		"bob":   {ID: "bob", Username: "bob", DisplayName: "Bob", Role: entity.RoleProfessional},
		"carol": {ID: "carol", Username: "carol", DisplayName: "Carol", Role: entity.RoleProfessional},
	}}
	return store, NewMessagingUseCase(store, userRepo)
}

func TestStartConversationCreatesAndAnnotates(t *testing.T) {
	_, uc := newFixture(t)
	ctx := context.Background()

	resp, err := uc.StartConversation(ctx, "alice", StartConversationInput{RecipientID: "bob"})
	assert.NoError(t, err)
	assert.NotEmpty(t, resp.ID)
	assert.True(t, resp.HasParticipant("alice"))
	assert.True(t, resp.HasParticipant("bob"))
	assert.Equal(t, "Bob", resp.OtherUser.DisplayName)
}

func TestStartConversationIsIdempotentAcrossArgumentOrder(t *testing.T) {
	_, uc := newFixture(t)
	ctx := context.Background()

	first, err := uc.StartConversation(ctx, "alice", StartConversationInput{RecipientID: "bob"})
	assert.NoError(t, err)
	second, err := uc.StartConversation(ctx, "bob", StartConversationInput{RecipientID: "alice"})
	assert.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "one conversation per unordered pair")
}

func TestStartConversationRejectsSelf(t *testing.T) {
	_, uc := newFixture(t)

	_, err := uc.StartConversation(context.Background(), "alice", StartConversationInput{RecipientID: "alice"})
	assert.True(t, errors.Is(err, "BAD_REQUEST"))
}

func TestStartConversationUnknownRecipient(t *testing.T) {
	_, uc := newFixture(t)

	_, err := uc.StartConversation(context.Background(), "alice", StartConversationInput{RecipientID: "ghost"})
	assert.True(t, errors.Is(err, "NOT_FOUND"))
}

func TestStartConversationWithInitialMessage(t *testing.T) {
	store, uc := newFixture(t)
	ctx := context.Background()

	resp, err := uc.StartConversation(ctx, "alice", StartConversationInput{
		RecipientID:    "bob",
		InitialMessage: "hi, are you available next week?",
	})
	assert.NoError(t, err)
	assert.Equal(t, "hi, are you available next week?", resp.LastMessage)

	messages, err := store.ListMessages(ctx, resp.ID)
	assert.NoError(t, err)
	assert.Len(t, messages, 1)
	assert.Equal(t, "alice", messages[0].SenderID)
}

func TestSendMessageIncrementsRecipientUnreadOnly(t *testing.T) {
	store, uc := newFixture(t)
	ctx := context.Background()

	conv, err := uc.StartConversation(ctx, "alice", StartConversationInput{RecipientID: "bob"})
	assert.NoError(t, err)

	_, err = uc.SendMessage(ctx, "alice", SendMessageInput{ConversationID: conv.ID, Content: "hello"})
	assert.NoError(t, err)
	_, err = uc.SendMessage(ctx, "alice", SendMessageInput{ConversationID: conv.ID, Content: "anyone there?"})
	assert.NoError(t, err)

	refreshed, err := store.GetConversation(ctx, conv.ID)
	assert.NoError(t, err)
	assert.Equal(t, 2, refreshed.UnreadFor("bob"))
	assert.Equal(t, 0, refreshed.UnreadFor("alice"))
	assert.Equal(t, "anyone there?", refreshed.LastMessage)
}

func TestSendMessageDefaultsToText(t *testing.T) {
	_, uc := newFixture(t)
	ctx := context.Background()

	conv, _ := uc.StartConversation(ctx, "alice", StartConversationInput{RecipientID: "bob"})

	resp, err := uc.SendMessage(ctx, "alice", SendMessageInput{ConversationID: conv.ID, Content: "plain"})
	assert.NoError(t, err)
	assert.Equal(t, entity.MessageTypeText, resp.Type)
	assert.Equal(t, "Alice", resp.Sender.DisplayName)
}

func TestSendMessageRejectsUnknownType(t *testing.T) {
	_, uc := newFixture(t)
	ctx := context.Background()

	conv, _ := uc.StartConversation(ctx, "alice", StartConversationInput{RecipientID: "bob"})

	_, err := uc.SendMessage(ctx, "alice", SendMessageInput{
		ConversationID: conv.ID,
		Content:        "x",
		Type:           "carrier-pigeon",
	})
	assert.True(t, errors.Is(err, "BAD_REQUEST"))
}

func TestSendMessageForbiddenForNonParticipant(t *testing.T) {
	_, uc := newFixture(t)
	ctx := context.Background()

	conv, _ := uc.StartConversation(ctx, "alice", StartConversationInput{RecipientID: "bob"})

	_, err := uc.SendMessage(ctx, "carol", SendMessageInput{ConversationID: conv.ID, Content: "let me in"})
	assert.True(t, errors.Is(err, "FORBIDDEN"))
}

func TestListConversationsAnnotatesCounterpart(t *testing.T) {
	_, uc := newFixture(t)
	ctx := context.Background()

	convBob, _ := uc.StartConversation(ctx, "alice", StartConversationInput{RecipientID: "bob"})
	_, err := uc.SendMessage(ctx, "alice", SendMessageInput{ConversationID: convBob.ID, Content: "newest"})
	assert.NoError(t, err)
	_, err = uc.StartConversation(ctx, "carol", StartConversationInput{RecipientID: "alice"})
	assert.NoError(t, err)

	conversations, err := uc.ListConversations(ctx, "alice")
	assert.NoError(t, err)
	assert.Len(t, conversations, 2)
	for _, c := range conversations {
		assert.NotNil(t, c.OtherUser)
		assert.NotEqual(t, "alice", c.OtherUser.ID)
	}
}

func TestGetConversationEnforcesParticipation(t *testing.T) {
	_, uc := newFixture(t)
	ctx := context.Background()

	conv, _ := uc.StartConversation(ctx, "alice", StartConversationInput{RecipientID: "bob"})

	got, err := uc.GetConversation(ctx, "bob", conv.ID)
	assert.NoError(t, err)
	assert.Equal(t, "Alice", got.OtherUser.DisplayName)

	_, err = uc.GetConversation(ctx, "carol", conv.ID)
	assert.True(t, errors.Is(err, "FORBIDDEN"))
}

func TestGetMessagesEnforcesParticipation(t *testing.T) {
	_, uc := newFixture(t)
	ctx := context.Background()

	conv, _ := uc.StartConversation(ctx, "alice", StartConversationInput{
		RecipientID:    "bob",
		InitialMessage: "hello",
	})

	messages, err := uc.GetMessages(ctx, "bob", conv.ID)
	assert.NoError(t, err)
	assert.Len(t, messages, 1)

	_, err = uc.GetMessages(ctx, "carol", conv.ID)
	assert.True(t, errors.Is(err, "FORBIDDEN"))
}

func TestMarkReadClearsUnread(t *testing.T) {
	store, uc := newFixture(t)
	ctx := context.Background()

	conv, _ := uc.StartConversation(ctx, "alice", StartConversationInput{RecipientID: "bob"})
	_, _ = uc.SendMessage(ctx, "alice", SendMessageInput{ConversationID: conv.ID, Content: "one"})
	_, _ = uc.SendMessage(ctx, "alice", SendMessageInput{ConversationID: conv.ID, Content: "two"})

	assert.NoError(t, uc.MarkRead(ctx, "bob", conv.ID))

	refreshed, err := store.GetConversation(ctx, conv.ID)
	assert.NoError(t, err)
	assert.Equal(t, 0, refreshed.UnreadFor("bob"))

	messages, err := store.ListMessages(ctx, conv.ID)
	assert.NoError(t, err)
	for _, m := range messages {
		assert.True(t, m.Read)
	}
}

func TestUnreadTotal(t *testing.T) {
	_, uc := newFixture(t)
	ctx := context.Background()

	convBob, _ := uc.StartConversation(ctx, "bob", StartConversationInput{RecipientID: "alice"})
	convCarol, _ := uc.StartConversation(ctx, "carol", StartConversationInput{RecipientID: "alice"})

	_, _ = uc.SendMessage(ctx, "bob", SendMessageInput{ConversationID: convBob.ID, Content: "one"})
	_, _ = uc.SendMessage(ctx, "bob", SendMessageInput{ConversationID: convBob.ID, Content: "two"})
	_, _ = uc.SendMessage(ctx, "carol", SendMessageInput{ConversationID: convCarol.ID, Content: "three"})

	total, err := uc.UnreadTotal(ctx, "alice")
	assert.NoError(t, err)
	assert.Equal(t, 3, total)

	assert.NoError(t, uc.MarkRead(ctx, "alice", convBob.ID))

	total, err = uc.UnreadTotal(ctx, "alice")
	assert.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestSendMessageRateLimited(t *testing.T) {
	_, uc := newFixture(t)
	ctx := context.Background()

	conv, _ := uc.StartConversation(ctx, "alice", StartConversationInput{RecipientID: "bob"})

	var limited bool
	for i := 0; i < 25; i++ {
		_, err := uc.SendMessage(ctx, "alice", SendMessageInput{ConversationID: conv.ID, Content: "spam"})
		if errors.Is(err, "TOO_MANY_REQUESTS") {
			limited = true
			break
		}
		assert.NoError(t, err)
	}
	assert.True(t, limited, "burst past the bucket capacity must be rejected")
}
