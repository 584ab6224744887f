package reminder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Store owns reminder persistence. All operations are single statements, so
// callers need no locking; Delete is idempotent to tolerate the timed/message
// paths racing on the same row.
type Store struct {
	DB *sql.DB
}

// Save inserts a new reminder row. Returns ErrDuplicateID when the id is taken.
func (s *Store) Save(ctx context.Context, r *Reminder) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO reminders (id, creator_id, creator_name, target_id, target_name, channel, message, due_at, is_private, fires_on_message, active, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		r.ID, r.Creator.ID, r.Creator.Name, r.Target.ID, r.Target.Name, r.Channel,
		r.Message, r.DueAt, r.IsPrivate, r.FiresOnMessage, r.Active, r.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return fmt.Errorf("save reminder %s: %w", r.ID, ErrDuplicateID)
		}
		return fmt.Errorf("save reminder %s: %w", r.ID, err)
	}
	return nil
}

// ActiveTimed returns all active reminders with a due time, in no particular order.
func (s *Store) ActiveTimed(ctx context.Context) ([]Reminder, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, creator_id, creator_name, target_id, target_name, channel, message, due_at, is_private, fires_on_message, active, created_at
		 FROM reminders WHERE active AND due_at IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("load timed reminders: %w", err)
	}
	return scanReminders(rows)
}

// ActiveForTarget returns all active message-triggered reminders for a target user.
func (s *Store) ActiveForTarget(ctx context.Context, targetID string) ([]Reminder, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, creator_id, creator_name, target_id, target_name, channel, message, due_at, is_private, fires_on_message, active, created_at
		 FROM reminders WHERE active AND fires_on_message AND target_id = $1`, targetID)
	if err != nil {
		return nil, fmt.Errorf("load reminders for target %s: %w", targetID, err)
	}
	return scanReminders(rows)
}

// Delete removes a reminder. Deleting an id that does not exist is a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM reminders WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete reminder %s: %w", id, err)
	}
	return nil
}

// CountActive returns the number of active reminders, for /status and metrics.
func (s *Store) CountActive(ctx context.Context) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(1) FROM reminders WHERE active`).Scan(&n)
	return n, err
}

// Heartbeat records the last sweep time in the kv table for /status.
func (s *Store) Heartbeat(ctx context.Context, key string, at time.Time) {
	_, _ = s.DB.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES ($1, $2, NOW())
		 ON CONFLICT(key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		key, at.UTC().Format(time.RFC3339))
}

func scanReminders(rows *sql.Rows) ([]Reminder, error) {
	defer rows.Close()
	var out []Reminder
	for rows.Next() {
		var r Reminder
		var due sql.NullTime
		if err := rows.Scan(&r.ID, &r.Creator.ID, &r.Creator.Name, &r.Target.ID, &r.Target.Name,
			&r.Channel, &r.Message, &due, &r.IsPrivate, &r.FiresOnMessage, &r.Active, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		if due.Valid {
			t := due.Time.UTC()
			r.DueAt = &t
		}
		r.CreatedAt = r.CreatedAt.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
