package repository

import (
	"context"
	"log"

	"cloud.google.com/go/firestore"

	"seekca/internal/domain/entity"
	"seekca/internal/domain/repository"
)

type firestoreChangeFeed struct {
	client *firestore.Client
}

// NewFirestoreChangeFeed exposes Firestore snapshot listeners as the
// ChangeFeed interface. Each subscription runs its own listener goroutine and
// lives until its unsubscribe func cancels it. The initial snapshot (the
// current table contents) is not replayed as events.
func NewFirestoreChangeFeed(client *firestore.Client) repository.ChangeFeed {
	return &firestoreChangeFeed{
		client: client,
	}
}

func (f *firestoreChangeFeed) OnMessageInserted(handler func(repository.MessageInsertedEvent)) repository.UnsubscribeFunc {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		iter := f.client.CollectionGroup("messages").Snapshots(ctx)
		defer iter.Stop()

		first := true
		for {
			snap, err := iter.Next()
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("Message snapshot listener stopped: %v", err)
				}
				return
			}
			if first {
				first = false
				continue
			}
			for _, change := range snap.Changes {
				if change.Kind != firestore.DocumentAdded {
					continue
				}
				var message entity.Message
				if err := change.Doc.DataTo(&message); err != nil {
					log.Printf("Error parsing message change event: %v", err)
					continue
				}
				handler(repository.MessageInsertedEvent{
					ConversationID: message.ConversationID,
					MessageID:      message.ID,
					SenderID:       message.SenderID,
					CreatedAt:      message.CreatedAt,
				})
			}
		}
	}()

	return func() { cancel() }
}

func (f *firestoreChangeFeed) OnConversationUpdated(handler func(repository.ConversationUpdatedEvent)) repository.UnsubscribeFunc {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		iter := f.client.Collection("conversations").Snapshots(ctx)
		defer iter.Stop()

		first := true
		for {
			snap, err := iter.Next()
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("Conversation snapshot listener stopped: %v", err)
				}
				return
			}
			if first {
				first = false
				continue
			}
			for _, change := range snap.Changes {
				if change.Kind != firestore.DocumentModified {
					continue
				}
				var conversation entity.Conversation
				if err := change.Doc.DataTo(&conversation); err != nil {
					log.Printf("Error parsing conversation change event: %v", err)
					continue
				}
				handler(repository.ConversationUpdatedEvent{
					ConversationID: conversation.ID,
				})
			}
		}
	}()

	return func() { cancel() }
}
