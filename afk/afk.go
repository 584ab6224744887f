// Package afk tracks away-from-keyboard status: a user marks themselves AFK
// with an optional reason, and their next chat message clears the status and
// announces how long they were gone.
package afk

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Status is one user's AFK row.
type Status struct {
	UserID   string
	Username string
	Channel  string
	Reason   string
	Since    time.Time
}

type Store struct {
	DB *sql.DB
}

// Set marks a user AFK, replacing any previous status.
func (s *Store) Set(ctx context.Context, st Status) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO afk_status (user_id, username, channel, reason, since) VALUES ($1,$2,$3,$4,$5)
		 ON CONFLICT(user_id) DO UPDATE SET username=EXCLUDED.username, channel=EXCLUDED.channel, reason=EXCLUDED.reason, since=EXCLUDED.since`,
		st.UserID, st.Username, st.Channel, st.Reason, st.Since)
	if err != nil {
		return fmt.Errorf("set afk for %s: %w", st.UserID, err)
	}
	return nil
}

// ClearIfSet removes a user's AFK status and returns it. The second return is
// false when the user was not AFK. Clearing is a single DELETE ... RETURNING,
// so two racing messages cannot both announce the return.
func (s *Store) ClearIfSet(ctx context.Context, userID string) (Status, bool, error) {
	var st Status
	err := s.DB.QueryRowContext(ctx,
		`DELETE FROM afk_status WHERE user_id = $1 RETURNING user_id, username, channel, reason, since`,
		userID).Scan(&st.UserID, &st.Username, &st.Channel, &st.Reason, &st.Since)
	if err == sql.ErrNoRows {
		return Status{}, false, nil
	}
	if err != nil {
		return Status{}, false, fmt.Errorf("clear afk for %s: %w", userID, err)
	}
	st.Since = st.Since.UTC()
	return st, true, nil
}
