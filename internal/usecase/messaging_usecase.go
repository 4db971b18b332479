package usecase

import (
	"context"
	"log"

	"seekca/internal/domain/entity"
	"seekca/internal/domain/repository"
	"seekca/internal/infrastructure/ratelimit"
	"seekca/pkg/errors"
)

type MessagingUseCase struct {
	store       repository.MessageStore
	userRepo    repository.UserRepository
	rateLimiter *ratelimit.RateLimiter
}

func NewMessagingUseCase(
	store repository.MessageStore,
	userRepo repository.UserRepository,
) *MessagingUseCase {
	rateLimiter := ratelimit.NewRateLimiter()
	rateLimiter.StartCleanupRoutine()

	return &MessagingUseCase{
		store:       store,
		userRepo:    userRepo,
		rateLimiter: rateLimiter,
	}
}

type StartConversationInput struct {
	RecipientID    string
	InitialMessage string
}

type SendMessageInput struct {
	ConversationID string
	Content        string
	Type           string // "text", "image", "file", "system"
}

type ConversationResponse struct {
	*entity.Conversation
	OtherUser *entity.User `json:"other_user,omitempty"`
}

type MessageResponse struct {
	*entity.Message
	Sender *entity.User `json:"sender,omitempty"`
}

// StartConversation finds or creates the direct conversation between the
// caller and the recipient ("message this professional"). Get-or-create is
// idempotent on the unordered pair; the failure here is blocking for the
// caller since a send cannot proceed without a conversation id.
func (uc *MessagingUseCase) StartConversation(ctx context.Context, userID string, input StartConversationInput) (*ConversationResponse, error) {
	allowed, waitTime := uc.rateLimiter.Allow(userID, "start_conversation")
	if !allowed {
		log.Printf("StartConversation Rate Limited: User %s must wait %v", userID, waitTime)
		return nil, errors.TooManyRequests("Rate limit exceeded. Please wait before starting another conversation", waitTime)
	}

	if userID == input.RecipientID {
		log.Printf("StartConversation Error: User %s attempted to message themselves", userID)
		return nil, errors.BadRequest("You cannot start a conversation with yourself", nil)
	}

	recipient, err := uc.userRepo.GetByID(ctx, input.RecipientID)
	if err != nil {
		log.Printf("StartConversation Error: Recipient %s not found: %v", input.RecipientID, err)
		return nil, errors.NotFound("Recipient", err)
	}

	conversation, err := uc.store.GetOrCreateConversation(ctx, userID, input.RecipientID)
	if err != nil {
		log.Printf("StartConversation Error: Failed to get or create conversation for %s -> %s: %v", userID, input.RecipientID, err)
		return nil, err
	}

	if input.InitialMessage != "" {
		if _, err := uc.store.SendMessage(ctx, conversation.ID, userID, input.InitialMessage, entity.MessageTypeText); err != nil {
			log.Printf("StartConversation Error: Failed to send initial message for conversation %s: %v", conversation.ID, err)
			return nil, err
		}
		// Re-read so the response carries the denormalized last-message fields.
		if refreshed, err := uc.store.GetConversation(ctx, conversation.ID); err == nil {
			conversation = refreshed
		}
	}

	return &ConversationResponse{
		Conversation: conversation,
		OtherUser:    recipient,
	}, nil
}

// ListConversations returns the caller's conversations in recency order, each
// annotated with the counterpart's user record. Rows whose participant slots
// don't include the caller are integrity faults and are skipped, not fatal.
func (uc *MessagingUseCase) ListConversations(ctx context.Context, userID string) ([]*ConversationResponse, error) {
	conversations, err := uc.store.ListConversations(ctx, userID)
	if err != nil {
		return nil, err
	}

	responses := make([]*ConversationResponse, 0, len(conversations))
	for _, conversation := range conversations {
		otherID, ok := conversation.OtherParticipant(userID)
		if !ok {
			log.Printf("ListConversations: conversation %s does not include user %s; skipping", conversation.ID, userID)
			continue
		}

		otherUser, err := uc.userRepo.GetByID(ctx, otherID)
		if err != nil {
			// Display identity is best-effort; the row still renders.
			log.Printf("ListConversations: failed to load user %s: %v", otherID, err)
		}

		responses = append(responses, &ConversationResponse{
			Conversation: conversation,
			OtherUser:    otherUser,
		})
	}

	return responses, nil
}

func (uc *MessagingUseCase) GetConversation(ctx context.Context, userID, conversationID string) (*ConversationResponse, error) {
	conversation, err := uc.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conversation.HasParticipant(userID) {
		return nil, errors.Forbidden("User is not a participant in this conversation", nil)
	}

	var otherUser *entity.User
	if otherID, ok := conversation.OtherParticipant(userID); ok {
		otherUser, _ = uc.userRepo.GetByID(ctx, otherID)
	}

	return &ConversationResponse{
		Conversation: conversation,
		OtherUser:    otherUser,
	}, nil
}

func (uc *MessagingUseCase) SendMessage(ctx context.Context, userID string, input SendMessageInput) (*MessageResponse, error) {
	allowed, waitTime := uc.rateLimiter.Allow(userID, "send_message")
	if !allowed {
		log.Printf("SendMessage Rate Limited: User %s must wait %v", userID, waitTime)
		return nil, errors.TooManyRequests("Rate limit exceeded. Please wait before sending another message", waitTime)
	}

	if input.Type == "" {
		input.Type = entity.MessageTypeText
	}
	if !entity.ValidMessageType(input.Type) {
		return nil, errors.BadRequest("Unknown message type", nil)
	}

	message, err := uc.store.SendMessage(ctx, input.ConversationID, userID, input.Content, input.Type)
	if err != nil {
		log.Printf("SendMessage Error: Failed to send message to conversation %s: %v", input.ConversationID, err)
		return nil, err
	}

	sender, err := uc.userRepo.GetByID(ctx, userID)
	if err != nil {
		log.Printf("SendMessage: failed to load sender %s: %v", userID, err)
	}

	return &MessageResponse{
		Message: message,
		Sender:  sender,
	}, nil
}

// GetMessages returns the conversation's history ascending by creation time.
func (uc *MessagingUseCase) GetMessages(ctx context.Context, userID, conversationID string) ([]*entity.Message, error) {
	conversation, err := uc.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conversation.HasParticipant(userID) {
		return nil, errors.Forbidden("User is not a participant in this conversation", nil)
	}

	return uc.store.ListMessages(ctx, conversationID)
}

// MarkRead flips the caller's unread state for the conversation. Callers
// treat failures as non-fatal; read-state is best-effort.
func (uc *MessagingUseCase) MarkRead(ctx context.Context, userID, conversationID string) error {
	return uc.store.MarkMessagesRead(ctx, conversationID, userID)
}

// UnreadTotal sums the caller's unread counts across all conversations, for
// the shell's notification indicator.
func (uc *MessagingUseCase) UnreadTotal(ctx context.Context, userID string) (int, error) {
	conversations, err := uc.store.ListConversations(ctx, userID)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, conversation := range conversations {
		total += conversation.UnreadFor(userID)
	}
	return total, nil
}
