package ws

import (
	"encoding/json"
	"time"
)

// Event types - Client → Server
const (
	EventTypeConversationSubscribe   = "conversation.subscribe"
	EventTypeConversationUnsubscribe = "conversation.unsubscribe"
	EventTypeInboxSubscribe          = "inbox.subscribe"
	EventTypeInboxUnsubscribe        = "inbox.unsubscribe"
	EventTypePing                    = "ping"
)

// Event types - Server → Client
const (
	EventTypeMessagesSnapshot     = "messages.snapshot"
	EventTypeConversationSnapshot = "conversation.snapshot"
	EventTypeInboxSnapshot        = "inbox.snapshot"
	EventTypePresence             = "presence"
	EventTypePong                 = "pong"
	EventTypeError                = "error"
)

// Event is the base envelope for all WebSocket messages.
type Event struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Timestamp      int64           `json:"ts,omitempty"`
}

// --- Client → Server payloads ---

type ConversationPayload struct {
	ConversationID string `json:"conversation_id"`
}

// --- Server → Client payloads ---

type PresencePayload struct {
	UserID string `json:"user_id"`
	Status string `json:"status"` // "online" | "offline"
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewEvent creates a server→client event with the current timestamp.
func NewEvent(eventType, conversationID string, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		Type:           eventType,
		ConversationID: conversationID,
		Payload:        data,
		Timestamp:      time.Now().Unix(),
	}, nil
}
