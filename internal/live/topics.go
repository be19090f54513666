package live

// Topic builders shared by publishers and subscribers.

func MessagesTopic(conversationID string) string {
	return "conv." + conversationID + ".messages"
}

func SummaryTopic(conversationID string) string {
	return "conv." + conversationID + ".summary"
}

func UserConversationsTopic(userID string) string {
	return "user." + userID + ".conversations"
}
