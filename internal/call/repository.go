package call

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

func (r *Repository) Create(ctx context.Context, c *Call) error {
	query := `
		INSERT INTO calls (id, caller_id, recipient_id, call_type, status, start_time)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.CallerID, c.RecipientID, c.Type, c.Status, c.StartTime)
	return err
}

func (r *Repository) Get(ctx context.Context, id string) (*Call, error) {
	query := `
		SELECT id, caller_id, recipient_id, call_type, status, start_time,
		       COALESCE(end_time, 0), COALESCE(duration, 0)
		FROM calls WHERE id = $1
	`
	c := &Call{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.CallerID,
		&c.RecipientID, &c.Type, &c.Status, &c.StartTime, &c.EndTime, &c.Duration)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *Repository) End(ctx context.Context, id string, endTime, duration int64) error {
	query := `UPDATE calls SET status = $2, end_time = $3, duration = $4 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, StatusEnded, endTime, duration)
	return err
}

// ListForUser returns calls where the user was on either side, newest first.
func (r *Repository) ListForUser(ctx context.Context, userID int) ([]*Call, error) {
	query := `
		SELECT id, caller_id, recipient_id, call_type, status, start_time,
		       COALESCE(end_time, 0), COALESCE(duration, 0)
		FROM calls
		WHERE caller_id = $1 OR recipient_id = $1
		ORDER BY start_time DESC
		LIMIT 100
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var calls []*Call
	for rows.Next() {
		c := &Call{}
		if err := rows.Scan(&c.ID, &c.CallerID, &c.RecipientID, &c.Type,
			&c.Status, &c.StartTime, &c.EndTime, &c.Duration); err != nil {
			return nil, err
		}
		calls = append(calls, c)
	}
	return calls, rows.Err()
}
