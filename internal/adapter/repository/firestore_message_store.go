package repository

import (
	"context"
	"log"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"seekca/internal/domain/entity"
	"seekca/internal/domain/repository"
	"seekca/pkg/errors"
)

type firestoreMessageStore struct {
	client *firestore.Client
}

func NewFirestoreMessageStore(client *firestore.Client) repository.MessageStore {
	return &firestoreMessageStore{
		client: client,
	}
}

// PairKey builds the canonical key for an unordered participant pair.
func PairKey(userID, otherUserID string) string {
	if strings.Compare(userID, otherUserID) < 0 {
		return userID + "|" + otherUserID
	}
	return otherUserID + "|" + userID
}

// conversationID derives a deterministic document ID from the pair key, so two
// racing get-or-create calls target the same document and one of the Creates
// fails with AlreadyExists instead of producing a duplicate row.
func conversationID(pairKey string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(pairKey)).String()
}

func (r *firestoreMessageStore) GetOrCreateConversation(ctx context.Context, userID, otherUserID string) (*entity.Conversation, error) {
	pairKey := PairKey(userID, otherUserID)
	docRef := r.client.Collection("conversations").Doc(conversationID(pairKey))

	doc, err := docRef.Get(ctx)
	if err == nil {
		var conversation entity.Conversation
		if err := doc.DataTo(&conversation); err != nil {
			return nil, errors.Internal("Failed to parse conversation data", err)
		}
		return &conversation, nil
	}
	if status.Code(err) != codes.NotFound {
		return nil, errors.Internal("Failed to look up conversation", err)
	}

	now := time.Now()
	conversation := &entity.Conversation{
		ID:             docRef.ID,
		Participant1ID: userID,
		Participant2ID: otherUserID,
		PairKey:        pairKey,
		UnreadCount:    make(map[string]int),
		LastMessageAt:  now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if _, err := docRef.Create(ctx, conversation); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			// Lost the race; the winner's row is the conversation.
			doc, err := docRef.Get(ctx)
			if err != nil {
				return nil, errors.Internal("Failed to get conversation after create race", err)
			}
			var existing entity.Conversation
			if err := doc.DataTo(&existing); err != nil {
				return nil, errors.Internal("Failed to parse conversation data", err)
			}
			return &existing, nil
		}
		return nil, errors.Internal("Failed to create conversation", err)
	}

	return conversation, nil
}

func (r *firestoreMessageStore) GetConversation(ctx context.Context, id string) (*entity.Conversation, error) {
	doc, err := r.client.Collection("conversations").Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Conversation", err)
		}
		return nil, errors.Internal("Failed to get conversation", err)
	}

	var conversation entity.Conversation
	if err := doc.DataTo(&conversation); err != nil {
		return nil, errors.Internal("Failed to parse conversation data", err)
	}

	return &conversation, nil
}

func (r *firestoreMessageStore) ListConversations(ctx context.Context, userID string) ([]*entity.Conversation, error) {
	// Two single-slot queries instead of an OR filter; merged in recency order.
	var conversations []*entity.Conversation
	for _, field := range []string{"participant1Id", "participant2Id"} {
		query := r.client.Collection("conversations").Where(field, "==", userID)
		iter := query.Documents(ctx)
		for {
			doc, err := iter.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				log.Printf("Firestore error while fetching conversations for user %s: %v", userID, err)
				return nil, errors.Internal("Failed to fetch conversations", err)
			}

			var conversation entity.Conversation
			if err := doc.DataTo(&conversation); err != nil {
				log.Printf("Error parsing conversation data for user %s: %v", userID, err)
				continue // Skip bad data instead of failing
			}
			conversations = append(conversations, &conversation)
		}
	}

	sort.Slice(conversations, func(i, j int) bool {
		return conversations[i].LastMessageAt.After(conversations[j].LastMessageAt)
	})
	return conversations, nil
}

func (r *firestoreMessageStore) ListMessages(ctx context.Context, conversationID string) ([]*entity.Message, error) {
	query := r.client.Collection("conversations").Doc(conversationID).Collection("messages").OrderBy("createdAt", firestore.Asc)

	iter := query.Documents(ctx)
	var messages []*entity.Message
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			log.Printf("Firestore error while iterating messages for conversation %s: %v", conversationID, err)
			return nil, errors.Internal("Failed to iterate messages", err)
		}

		var message entity.Message
		if err := doc.DataTo(&message); err != nil {
			log.Printf("Error parsing message data for conversation %s: %v", conversationID, err)
			continue
		}
		messages = append(messages, &message)
	}

	return messages, nil
}

func (r *firestoreMessageStore) SendMessage(ctx context.Context, conversationID, senderID, content, messageType string) (*entity.Message, error) {
	conversation, err := r.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conversation.HasParticipant(senderID) {
		return nil, errors.Forbidden("Sender is not a participant in this conversation", nil)
	}

	message := &entity.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		Type:           messageType,
		Read:           false,
		CreatedAt:      time.Now(),
	}

	msgRef := r.client.Collection("conversations").Doc(conversationID).Collection("messages").Doc(message.ID)
	if _, err := msgRef.Set(ctx, message); err != nil {
		return nil, errors.Internal("Failed to create message", err)
	}

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

	if _, err := r.client.Collection("conversations").Doc(conversationID).Set(ctx, conversation); err != nil {
		return nil, errors.Internal("Failed to update conversation with last message", err)
	}

	return message, nil
}

func (r *firestoreMessageStore) MarkMessagesRead(ctx context.Context, conversationID, readerID string) error {
	conversation, err := r.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	other, ok := conversation.OtherParticipant(readerID)
	if !ok {
		return errors.Forbidden("Reader is not a participant in this conversation", nil)
	}

	query := r.client.Collection("conversations").Doc(conversationID).Collection("messages").
		Where("senderId", "==", other).
		Where("read", "==", false)

	iter := query.Documents(ctx)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return errors.Internal("Failed to iterate unread messages", err)
		}
		if _, err := doc.Ref.Update(ctx, []firestore.Update{{Path: "read", Value: true}}); err != nil {
			return errors.Internal("Failed to update message read status", err)
		}
	}

	if conversation.UnreadFor(readerID) > 0 {
		conversation.UnreadCount[readerID] = 0
		conversation.UpdatedAt = time.Now()
		if _, err := r.client.Collection("conversations").Doc(conversationID).Set(ctx, conversation); err != nil {
			return errors.Internal("Failed to reset unread count", err)
		}
	}

	return nil
}
