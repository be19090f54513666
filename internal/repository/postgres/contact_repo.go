package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mhodzic/parley/internal/domain"
)

type ContactRepo struct {
	pool *pgxpool.Pool
}

func NewContactRepo(pool *pgxpool.Pool) *ContactRepo {
	return &ContactRepo{pool: pool}
}

func (r *ContactRepo) Upsert(ctx context.Context, contact *domain.Contact) error {
	query := `
		INSERT INTO contacts (owner_id, user_id, first_name, last_name, phone, email, photo_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (owner_id, user_id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			phone = EXCLUDED.phone,
			email = EXCLUDED.email,
			photo_url = EXCLUDED.photo_url`

	_, err := r.pool.Exec(ctx, query,
		contact.OwnerID, contact.UserID, contact.FirstName, contact.LastName,
		contact.Phone, contact.Email, contact.PhotoURL, contact.CreatedAt,
	)
	return err
}

func (r *ContactRepo) Get(ctx context.Context, ownerID, userID string) (*domain.Contact, error) {
	query := `
		SELECT owner_id, user_id, first_name, last_name, phone, email, photo_url, created_at
		FROM contacts
		WHERE owner_id = $1 AND user_id = $2`

	var c domain.Contact
	err := r.pool.QueryRow(ctx, query, ownerID, userID).Scan(
		&c.OwnerID, &c.UserID, &c.FirstName, &c.LastName,
		&c.Phone, &c.Email, &c.PhotoURL, &c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return &c, err
}

func (r *ContactRepo) ListByOwner(ctx context.Context, ownerID string) ([]domain.Contact, error) {
	query := `
		SELECT owner_id, user_id, first_name, last_name, phone, email, photo_url, created_at
		FROM contacts
		WHERE owner_id = $1
		ORDER BY first_name, last_name`

	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []domain.Contact
	for rows.Next() {
		var c domain.Contact
		if err := rows.Scan(
			&c.OwnerID, &c.UserID, &c.FirstName, &c.LastName,
			&c.Phone, &c.Email, &c.PhotoURL, &c.CreatedAt,
		); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

func (r *ContactRepo) Delete(ctx context.Context, ownerID, userID string) error {
	_, err := r.pool.Exec(ctx,
		"DELETE FROM contacts WHERE owner_id = $1 AND user_id = $2",
		ownerID, userID,
	)
	return err
}
