package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mhodzic/parley/internal/domain"
)

type ConversationRepo struct {
	pool *pgxpool.Pool
}

func NewConversationRepo(pool *pgxpool.Pool) *ConversationRepo {
	return &ConversationRepo{pool: pool}
}

const conversationColumns = `
	id, user1_id, user2_id, user1_name, user2_name, user1_photo, user2_photo,
	last_message_preview, last_message_at, last_message_sender,
	unread1, unread2, created_at, updated_at`

func (r *ConversationRepo) CreateIfAbsent(ctx context.Context, conv *domain.Conversation) (bool, error) {
	query := `
		INSERT INTO conversations (
			id, user1_id, user2_id, user1_name, user2_name, user1_photo, user2_photo,
			last_message_preview, last_message_sender, unread1, unread2, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, '', '', 0, 0, $8, $8)
		ON CONFLICT (id) DO NOTHING`

	tag, err := r.pool.Exec(ctx, query,
		conv.ID, conv.User1ID, conv.User2ID, conv.User1Name, conv.User2Name,
		conv.User1Photo, conv.User2Photo, conv.CreatedAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ConversationRepo) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`

	var conv domain.Conversation
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&conv.ID, &conv.User1ID, &conv.User2ID, &conv.User1Name, &conv.User2Name,
		&conv.User1Photo, &conv.User2Photo,
		&conv.LastMessagePreview, &conv.LastMessageAt, &conv.LastMessageSender,
		&conv.Unread1, &conv.Unread2, &conv.CreatedAt, &conv.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return &conv, err
}

func (r *ConversationRepo) ListByUser(ctx context.Context, userID string) ([]domain.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE user1_id = $1 OR user2_id = $1
		ORDER BY last_message_at DESC NULLS LAST, created_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []domain.Conversation
	for rows.Next() {
		var conv domain.Conversation
		if err := rows.Scan(
			&conv.ID, &conv.User1ID, &conv.User2ID, &conv.User1Name, &conv.User2Name,
			&conv.User1Photo, &conv.User2Photo,
			&conv.LastMessagePreview, &conv.LastMessageAt, &conv.LastMessageSender,
			&conv.Unread1, &conv.Unread2, &conv.CreatedAt, &conv.UpdatedAt,
		); err != nil {
			return nil, err
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// RecordMessage is the summary projection of an append: latest-wins overwrite
// of the preview fields plus an in-place increment of the recipient's unread
// counter. One statement, so concurrent appends from both sides commute.
func (r *ConversationRepo) RecordMessage(ctx context.Context, id, preview, senderID, recipientID string, at time.Time) error {
	query := `
		UPDATE conversations SET
			last_message_preview = $2,
			last_message_sender = $3,
			last_message_at = $4,
			updated_at = $4,
			unread1 = unread1 + CASE WHEN user1_id = $5 THEN 1 ELSE 0 END,
			unread2 = unread2 + CASE WHEN user2_id = $5 THEN 1 ELSE 0 END
		WHERE id = $1`

	_, err := r.pool.Exec(ctx, query, id, preview, senderID, at, recipientID)
	return err
}

func (r *ConversationRepo) ResetUnread(ctx context.Context, id, readerID string) error {
	query := `
		UPDATE conversations SET
			unread1 = CASE WHEN user1_id = $2 THEN 0 ELSE unread1 END,
			unread2 = CASE WHEN user2_id = $2 THEN 0 ELSE unread2 END
		WHERE id = $1`

	_, err := r.pool.Exec(ctx, query, id, readerID)
	return err
}
