package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mhodzic/parley/internal/domain"
	"github.com/mhodzic/parley/internal/live"
)

// publishMessage pushes an appended message to the conversation's message
// topic. Publish failures are logged, not surfaced: the message is already
// durable and subscribers recover on their next snapshot load.
func publishMessage(ctx context.Context, b *live.Broker, log *slog.Logger, msg *domain.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error("marshal message event", "error", err)
		return
	}
	if err := b.Publish(ctx, live.MessagesTopic(msg.ConversationID), data); err != nil {
		log.Warn("publish message event", "conversation", msg.ConversationID, "error", err)
	}
}

// publishConversation pushes the current conversation record to its summary
// topic and to both participants' chat-list topics.
func publishConversation(ctx context.Context, b *live.Broker, log *slog.Logger, conv *domain.Conversation) {
	data, err := json.Marshal(conv)
	if err != nil {
		log.Error("marshal conversation event", "error", err)
		return
	}
	topics := []string{
		live.SummaryTopic(conv.ID),
		live.UserConversationsTopic(conv.User1ID),
		live.UserConversationsTopic(conv.User2ID),
	}
	for _, topic := range topics {
		if err := b.Publish(ctx, topic, data); err != nil {
			log.Warn("publish conversation event", "topic", topic, "error", err)
		}
	}
}
