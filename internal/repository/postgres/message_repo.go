package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mhodzic/parley/internal/domain"
)

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

// Append inserts the message with a server-assigned timestamp (now()) and a
// bigserial sequence. The sequence breaks ties between messages sharing the
// same timestamp in insertion order.
func (r *MessageRepo) Append(ctx context.Context, msg *domain.Message) error {
	msg.ID = uuid.NewString()

	var lat, lng *float64
	if msg.Location != nil {
		lat, lng = &msg.Location.Latitude, &msg.Location.Longitude
	}

	query := `
		INSERT INTO messages (
			id, conversation_id, sender_id, receiver_id, kind,
			text, file_url, file_name, latitude, longitude, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		RETURNING seq, created_at`

	return r.pool.QueryRow(ctx, query,
		msg.ID, msg.ConversationID, msg.SenderID, msg.ReceiverID, msg.Kind,
		msg.Text, msg.FileURL, msg.FileName, lat, lng,
	).Scan(&msg.Seq, &msg.CreatedAt)
}

func (r *MessageRepo) ListByConversation(ctx context.Context, conversationID string) ([]domain.Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, receiver_id, kind,
			text, file_url, file_name, latitude, longitude, seq, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, seq ASC`

	rows, err := r.pool.Query(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		var lat, lng *float64
		if err := rows.Scan(
			&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.ReceiverID, &msg.Kind,
			&msg.Text, &msg.FileURL, &msg.FileName, &lat, &lng, &msg.Seq, &msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		if lat != nil && lng != nil {
			msg.Location = &domain.Location{Latitude: *lat, Longitude: *lng}
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
