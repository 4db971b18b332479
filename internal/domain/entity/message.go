package entity

import "time"

const (
	MessageTypeText   = "text"
	MessageTypeImage  = "image"
	MessageTypeFile   = "file"
	MessageTypeSystem = "system"
)

type Message struct {
	ID             string    `json:"id" firestore:"id"`
	ConversationID string    `json:"conversation_id" firestore:"conversationId"`
	SenderID       string    `json:"sender_id" firestore:"senderId"`
	Content        string    `json:"content" firestore:"content"`
	Type           string    `json:"type" firestore:"type"` // "text", "image", "file", "system"
	Read           bool      `json:"read" firestore:"read"`
	CreatedAt      time.Time `json:"created_at" firestore:"createdAt"`
}

// ValidMessageType reports whether t is one of the supported message types.
func ValidMessageType(t string) bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile, MessageTypeSystem:
		return true
	}
	return false
}
