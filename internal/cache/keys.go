package cache

// ConversationsKey is the cache key for a user's conversation list.
func ConversationsKey(userID string) string {
	return "conversations:" + userID
}

// MessagesKey is the cache key for one conversation's message history.
func MessagesKey(conversationID string) string {
	return "messages:" + conversationID
}
