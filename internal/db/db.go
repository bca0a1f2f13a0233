package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Database struct {
	Conn *sql.DB
}

func NewDatabase(dsn string) (*Database, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxLifetime(5 * time.Minute)
	return &Database{Conn: conn}, nil
}

func (d *Database) AutoMigrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id SERIAL PRIMARY KEY,
            username VARCHAR(50) UNIQUE NOT NULL,
            password VARCHAR(255) NOT NULL,
            require_approval BOOLEAN NOT NULL DEFAULT TRUE,
            online BOOLEAN NOT NULL DEFAULT FALSE,
            last_seen BIGINT NOT NULL DEFAULT 0,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS friends (
            user_id INT REFERENCES users(id) ON DELETE CASCADE,
            friend_id INT REFERENCES users(id) ON DELETE CASCADE,
            PRIMARY KEY (user_id, friend_id)
        )`,

		`CREATE TABLE IF NOT EXISTS friend_requests (
            id SERIAL PRIMARY KEY,
            sender_id INT REFERENCES users(id) ON DELETE CASCADE,
            recipient_id INT REFERENCES users(id) ON DELETE CASCADE,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            UNIQUE (sender_id, recipient_id)
        )`,

		`CREATE TABLE IF NOT EXISTS conversations (
            pair_key VARCHAR(128) PRIMARY KEY,
            user_a INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            user_b INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            last_message_id VARCHAR(64),
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )`,

		// pair_key is the primary key here on purpose: the key manager's
		// INSERT ... ON CONFLICT DO NOTHING relies on it so that two
		// concurrent first sends cannot create two keys.
		`CREATE TABLE IF NOT EXISTS conversation_keys (
            pair_key VARCHAR(128) PRIMARY KEY,
            key_material VARCHAR(64) NOT NULL,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS messages (
            id VARCHAR(64) PRIMARY KEY,
            pair_key VARCHAR(128) NOT NULL,
            sender_id INT REFERENCES users(id) ON DELETE CASCADE,
            recipient_id INT REFERENCES users(id) ON DELETE CASCADE,
            sent_at BIGINT NOT NULL,
            content TEXT NOT NULL,
            msg_type VARCHAR(10) NOT NULL DEFAULT 'text',
            media_ref TEXT,
            is_ghost BOOLEAN NOT NULL DEFAULT FALSE,
            ghost_duration BIGINT,
            deletion_time BIGINT,
            is_delivered BOOLEAN NOT NULL DEFAULT FALSE,
            is_read BOOLEAN NOT NULL DEFAULT FALSE,
            pending_approval BOOLEAN NOT NULL DEFAULT FALSE
        )`,

		`CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages (pair_key, sent_at)`,

		`CREATE TABLE IF NOT EXISTS calls (
            id VARCHAR(64) PRIMARY KEY,
            caller_id INT REFERENCES users(id) ON DELETE CASCADE,
            recipient_id INT REFERENCES users(id) ON DELETE CASCADE,
            call_type VARCHAR(10) NOT NULL DEFAULT 'audio',
            status VARCHAR(12) NOT NULL DEFAULT 'initiating',
            start_time BIGINT NOT NULL,
            end_time BIGINT,
            duration BIGINT
        )`,
	}

	for _, query := range queries {
		_, err := d.Conn.Exec(query)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}
