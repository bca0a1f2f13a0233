package chat

import (
	"context"
	"database/sql"
	"errors"

	"ghosttalk/internal/crypto"
)

// Repository is the postgres-backed conversation store adapter. Everything
// the lifecycle engine needs from persistence lives behind the Store
// interface in service.go; this is the real implementation.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) SaveMessage(ctx context.Context, msg *Message) error {
	query := `
		INSERT INTO messages
			(id, pair_key, sender_id, recipient_id, sent_at, content, msg_type, media_ref,
			 is_ghost, ghost_duration, deletion_time, is_delivered, is_read, pending_approval)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := r.db.ExecContext(ctx, query,
		msg.ID, PairKey(msg.SenderID, msg.RecipientID), msg.SenderID, msg.RecipientID,
		msg.Timestamp, msg.Content, msg.Type, nullStr(msg.MediaRef),
		msg.IsGhost, nullInt(msg.GhostDuration), nullInt(msg.DeletionTime),
		msg.IsDelivered, msg.IsRead, msg.PendingApproval)
	return err
}

// TouchConversation creates the conversation row on first contact and moves
// its last-message pointer.
func (r *Repository) TouchConversation(ctx context.Context, userA, userB int, lastMessageID string) error {
	if userB < userA {
		userA, userB = userB, userA
	}
	query := `
		INSERT INTO conversations (pair_key, user_a, user_b, last_message_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (pair_key) DO UPDATE SET last_message_id = EXCLUDED.last_message_id
	`
	_, err := r.db.ExecContext(ctx, query, PairKey(userA, userB), userA, userB, lastMessageID)
	return err
}

// MessagesBetween returns every live message of the conversation, both
// directions, oldest first. Expired ghost messages are filtered here so
// visibility never depends on the reaper having run.
func (r *Repository) MessagesBetween(ctx context.Context, userA, userB int, now int64) ([]*Message, error) {
	query := `
		SELECT id, sender_id, recipient_id, sent_at, content, msg_type,
		       COALESCE(media_ref, ''), is_ghost, COALESCE(ghost_duration, 0),
		       COALESCE(deletion_time, 0), is_delivered, is_read, pending_approval
		FROM messages
		WHERE pair_key = $1 AND (deletion_time IS NULL OR deletion_time > $2)
		ORDER BY sent_at ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, PairKey(userA, userB), now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg := &Message{}
		if err := rows.Scan(&msg.ID, &msg.SenderID, &msg.RecipientID, &msg.Timestamp,
			&msg.Content, &msg.Type, &msg.MediaRef, &msg.IsGhost, &msg.GhostDuration,
			&msg.DeletionTime, &msg.IsDelivered, &msg.IsRead, &msg.PendingApproval); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (r *Repository) GetMessage(ctx context.Context, id string) (*Message, error) {
	query := `
		SELECT id, sender_id, recipient_id, sent_at, content, msg_type,
		       COALESCE(media_ref, ''), is_ghost, COALESCE(ghost_duration, 0),
		       COALESCE(deletion_time, 0), is_delivered, is_read, pending_approval
		FROM messages WHERE id = $1
	`
	msg := &Message{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&msg.ID, &msg.SenderID,
		&msg.RecipientID, &msg.Timestamp, &msg.Content, &msg.Type, &msg.MediaRef,
		&msg.IsGhost, &msg.GhostDuration, &msg.DeletionTime, &msg.IsDelivered,
		&msg.IsRead, &msg.PendingApproval)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// MarkDelivered is idempotent and never downgrades a read message.
func (r *Repository) MarkDelivered(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := `UPDATE messages SET is_delivered = TRUE WHERE id = ANY($1)`
	_, err := r.db.ExecContext(ctx, query, ids)
	return err
}

// MarkRead sets both flags: read implies delivered.
func (r *Repository) MarkRead(ctx context.Context, id string) error {
	query := `UPDATE messages SET is_read = TRUE, is_delivered = TRUE WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// DeleteExpired removes ghost messages past their deadline and returns how
// many rows went away.
func (r *Repository) DeleteExpired(ctx context.Context, now int64) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM messages WHERE deletion_time IS NOT NULL AND deletion_time <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListConversations returns the user's conversations with their last
// message rows, newest conversation activity first.
func (r *Repository) ListConversations(ctx context.Context, userID int) ([]*Summary, error) {
	query := `
		SELECT c.pair_key, c.user_a, c.user_b,
		       m.id, m.sender_id, m.recipient_id, m.sent_at, m.content, m.msg_type,
		       COALESCE(m.media_ref, ''), m.is_ghost, COALESCE(m.ghost_duration, 0),
		       COALESCE(m.deletion_time, 0), m.is_delivered, m.is_read, m.pending_approval
		FROM conversations c
		LEFT JOIN messages m ON m.id = c.last_message_id
		WHERE c.user_a = $1 OR c.user_b = $1
		ORDER BY COALESCE(m.sent_at, 0) DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []*Summary
	for rows.Next() {
		var (
			userA, userB int
			s            Summary
			msg          Message
			msgID        sql.NullString
			senderID     sql.NullInt64
			recipientID  sql.NullInt64
			sentAt       sql.NullInt64
			content      sql.NullString
			msgType      sql.NullString
			mediaRef     sql.NullString
			isGhost      sql.NullBool
			ghostDur     sql.NullInt64
			deletion     sql.NullInt64
			delivered    sql.NullBool
			read         sql.NullBool
			pending      sql.NullBool
		)
		if err := rows.Scan(&s.PairKey, &userA, &userB, &msgID, &senderID,
			&recipientID, &sentAt, &content, &msgType, &mediaRef, &isGhost,
			&ghostDur, &deletion, &delivered, &read, &pending); err != nil {
			return nil, err
		}
		s.PeerID = userA
		if userA == userID {
			s.PeerID = userB
		}
		if msgID.Valid {
			msg = Message{
				ID: msgID.String, SenderID: int(senderID.Int64),
				RecipientID: int(recipientID.Int64), Timestamp: sentAt.Int64,
				Content: content.String, Type: msgType.String,
				MediaRef: mediaRef.String, IsGhost: isGhost.Bool,
				GhostDuration: ghostDur.Int64, DeletionTime: deletion.Int64,
				IsDelivered: delivered.Bool, IsRead: read.Bool,
				PendingApproval: pending.Bool,
			}
			s.LastMessage = &msg
		}
		summaries = append(summaries, &s)
	}
	return summaries, rows.Err()
}

// GetKey and CreateIfAbsent implement crypto.KeyStore.

func (r *Repository) GetKey(ctx context.Context, pairKey string) ([]byte, error) {
	var encoded string
	err := r.db.QueryRowContext(ctx,
		`SELECT key_material FROM conversation_keys WHERE pair_key = $1`, pairKey).Scan(&encoded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return crypto.DecodeKey(encoded)
}

// CreateIfAbsent relies on the pair_key primary key: the conditional insert
// makes concurrent first sends converge on a single persisted key.
func (r *Repository) CreateIfAbsent(ctx context.Context, pairKey string, key []byte) ([]byte, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO conversation_keys (pair_key, key_material) VALUES ($1, $2)
		 ON CONFLICT (pair_key) DO NOTHING`, pairKey, crypto.EncodeKey(key))
	if err != nil {
		return nil, err
	}
	// Re-read: if we lost the race, this returns the winner's key.
	return r.GetKey(ctx, pairKey)
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n != 0}
}
