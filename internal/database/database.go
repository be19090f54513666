package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mhodzic/parley/internal/config"
	"github.com/redis/go-redis/v9"
)

func Connect(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return pool, nil
}

func ConnectRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("unable to ping redis: %w", err)
	}
	return client, nil
}

// Migrate creates the schema when it does not exist yet. The conversations
// table enforces the canonical participant order (user1_id < user2_id); the
// messages table carries the server-assigned ordering key (created_at, seq).
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT UNIQUE NOT NULL,
			phone TEXT UNIQUE NOT NULL,
			first_name TEXT NOT NULL,
			last_name TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			photo_url TEXT,
			device_token TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS contacts (
			owner_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			photo_url TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (owner_id, user_id)
		)`,

		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			user1_id TEXT NOT NULL,
			user2_id TEXT NOT NULL,
			user1_name TEXT NOT NULL DEFAULT '',
			user2_name TEXT NOT NULL DEFAULT '',
			user1_photo TEXT,
			user2_photo TEXT,
			last_message_preview TEXT NOT NULL DEFAULT '',
			last_message_at TIMESTAMPTZ,
			last_message_sender TEXT NOT NULL DEFAULT '',
			unread1 INT NOT NULL DEFAULT 0 CHECK (unread1 >= 0),
			unread2 INT NOT NULL DEFAULT 0 CHECK (unread2 >= 0),
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			CHECK (user1_id < user2_id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_conversations_user1 ON conversations (user1_id)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_user2 ON conversations (user2_id)`,

		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			sender_id TEXT NOT NULL,
			receiver_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			text TEXT NOT NULL DEFAULT '',
			file_url TEXT NOT NULL DEFAULT '',
			file_name TEXT NOT NULL DEFAULT '',
			latitude DOUBLE PRECISION,
			longitude DOUBLE PRECISION,
			seq BIGSERIAL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,

		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, created_at, seq)`,
	}

	for _, query := range queries {
		if _, err := pool.Exec(ctx, query); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
