package user

import (
	"context"
	"database/sql"
	"errors"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateUser(ctx context.Context, user *User) (*User, error) {
	var id int
	query := "INSERT INTO users (username, password) VALUES ($1, $2) RETURNING id"

	err := r.db.QueryRowContext(ctx, query, user.Username, user.Password).Scan(&id)
	if err != nil {
		return nil, err
	}

	user.ID = id
	return user, nil
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	u := &User{}
	query := "SELECT id, username, password FROM users WHERE username = $1"

	err := r.db.QueryRowContext(ctx, query, username).Scan(&u.ID, &u.Username, &u.Password)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.New("user not found")
		}
		return nil, err
	}

	return u, nil
}

// GetUserByID returns nil when the user does not exist.
func (r *Repository) GetUserByID(ctx context.Context, id int) (*User, error) {
	u := &User{}
	query := `SELECT id, username, require_approval, online, last_seen FROM users WHERE id = $1`

	err := r.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Username,
		&u.RequireApproval, &u.Online, &u.LastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *Repository) SearchUsers(ctx context.Context, query string) ([]User, error) {
	// We limit to 10 to keep it fast
	q := `SELECT id, username, online, last_seen FROM users WHERE username ILIKE $1 LIMIT 10`
	rows, err := r.db.QueryContext(ctx, q, "%"+query+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Online, &u.LastSeen); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

func (r *Repository) SetRequireApproval(ctx context.Context, userID int, required bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET require_approval = $2 WHERE id = $1`, userID, required)
	return err
}

// SetOnline writes the presence flag and last-seen timestamp. Called by the
// hub on first connect and last disconnect.
func (r *Repository) SetOnline(ctx context.Context, userID int, online bool, lastSeen int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET online = $2, last_seen = $3 WHERE id = $1`, userID, online, lastSeen)
	return err
}

// AreFriends checks the adjacency table. Rows are written in both
// directions on accept, so one lookup suffices.
func (r *Repository) AreFriends(ctx context.Context, userA, userB int) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM friends WHERE user_id = $1 AND friend_id = $2)`,
		userA, userB).Scan(&exists)
	return exists, err
}

func (r *Repository) CreateFriendRequest(ctx context.Context, senderID, recipientID int) (int, error) {
	var id int
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO friend_requests (sender_id, recipient_id) VALUES ($1, $2)
		ON CONFLICT (sender_id, recipient_id) DO UPDATE SET sender_id = EXCLUDED.sender_id
		RETURNING id
	`, senderID, recipientID).Scan(&id)
	return id, err
}

func (r *Repository) GetFriendRequest(ctx context.Context, id int) (*FriendRequest, error) {
	req := &FriendRequest{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, sender_id, recipient_id FROM friend_requests WHERE id = $1`, id).
		Scan(&req.ID, &req.SenderID, &req.RecipientID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (r *Repository) ListPendingRequests(ctx context.Context, recipientID int) ([]FriendRequest, error) {
	query := `
		SELECT fr.id, fr.sender_id, u.username, fr.recipient_id
		FROM friend_requests fr
		JOIN users u ON u.id = fr.sender_id
		WHERE fr.recipient_id = $1
		ORDER BY fr.created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, recipientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []FriendRequest
	for rows.Next() {
		var req FriendRequest
		if err := rows.Scan(&req.ID, &req.SenderID, &req.Sender, &req.RecipientID); err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// AcceptFriendRequest removes the request and writes both adjacency rows in
// one transaction.
func (r *Repository) AcceptFriendRequest(ctx context.Context, requestID int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var senderID, recipientID int
	err = tx.QueryRowContext(ctx,
		`DELETE FROM friend_requests WHERE id = $1 RETURNING sender_id, recipient_id`,
		requestID).Scan(&senderID, &recipientID)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO friends (user_id, friend_id)
		VALUES ($1, $2), ($2, $1)
		ON CONFLICT DO NOTHING
	`, senderID, recipientID)
	if err != nil {
		return err
	}
	return tx.Commit()
}
