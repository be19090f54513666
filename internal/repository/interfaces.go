package repository

import (
	"context"
	"time"

	"github.com/mhodzic/parley/internal/domain"
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByPhone(ctx context.Context, phone string) (*domain.User, error)
	UpdateDeviceToken(ctx context.Context, id, token string) error
}

type ContactRepository interface {
	Upsert(ctx context.Context, contact *domain.Contact) error
	Get(ctx context.Context, ownerID, userID string) (*domain.Contact, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Contact, error)
	Delete(ctx context.Context, ownerID, userID string) error
}

type ConversationRepository interface {
	// CreateIfAbsent inserts the conversation only if no record exists at its
	// ID. Reports whether this call created the record.
	CreateIfAbsent(ctx context.Context, conv *domain.Conversation) (bool, error)
	GetByID(ctx context.Context, id string) (*domain.Conversation, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Conversation, error)
	// RecordMessage overwrites the summary fields and increments the
	// recipient's unread counter in a single atomic statement.
	RecordMessage(ctx context.Context, id, preview, senderID, recipientID string, at time.Time) error
	ResetUnread(ctx context.Context, id, readerID string) error
}

type MessageRepository interface {
	// Append inserts the message, assigning its ID, server timestamp and
	// insertion-order sequence. The stored values are written back to msg.
	Append(ctx context.Context, msg *domain.Message) error
	ListByConversation(ctx context.Context, conversationID string) ([]domain.Message, error)
}
