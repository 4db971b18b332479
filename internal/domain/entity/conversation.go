package entity

import "time"

type Conversation struct {
	ID              string         `json:"id" firestore:"id"`
	Participant1ID  string         `json:"participant1_id" firestore:"participant1Id"`
	Participant2ID  string         `json:"participant2_id" firestore:"participant2Id"`
	PairKey         string         `json:"-" firestore:"pairKey"` // sorted "a|b", unique per participant pair
	LastMessage     string         `json:"last_message,omitempty" firestore:"lastMessage,omitempty"`
	LastMessageType string         `json:"last_message_type,omitempty" firestore:"lastMessageType,omitempty"`
	LastMessageAt   time.Time      `json:"last_message_at" firestore:"lastMessageAt"`
	UnreadCount     map[string]int `json:"unread_count" firestore:"unreadCount"` // Map of userID to unread count
	CreatedAt       time.Time      `json:"created_at" firestore:"createdAt"`
	UpdatedAt       time.Time      `json:"updated_at" firestore:"updatedAt"`
}

// OtherParticipant resolves the counterpart of viewerID. The second return is
// false when viewerID occupies neither slot, which indicates a data integrity
// fault the caller must handle by skipping the conversation.
func (c *Conversation) OtherParticipant(viewerID string) (string, bool) {
	switch viewerID {
	case c.Participant1ID:
		return c.Participant2ID, true
	case c.Participant2ID:
		return c.Participant1ID, true
	default:
		return "", false
	}
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	return userID == c.Participant1ID || userID == c.Participant2ID
}

// UnreadFor returns the viewer's unread count, treating a nil map as zero.
func (c *Conversation) UnreadFor(viewerID string) int {
	if c.UnreadCount == nil {
		return 0
	}
	return c.UnreadCount[viewerID]
}
