// Package chatlog persists every chat line the bot sees and answers
// "when did X last speak" lookups.
package chatlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/onnwee/chat-tender/telemetry"
)

// ErrNoMessages means the user has no logged chat lines.
var ErrNoMessages = errors.New("no messages logged for user")

// Entry is one logged chat line.
type Entry struct {
	Channel  string
	UserID   string
	Username string
	Message  string
	SentAt   time.Time
}

type Store struct {
	DB *sql.DB
}

// Insert logs one chat line.
func (s *Store) Insert(ctx context.Context, e Entry) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO chat_messages (channel, user_id, username, message, sent_at) VALUES ($1,$2,$3,$4,$5)`,
		e.Channel, e.UserID, e.Username, e.Message, e.SentAt)
	if err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	telemetry.Inc(telemetry.MessagesLogged)
	return nil
}

// LastMessage returns the most recent logged line for a username.
func (s *Store) LastMessage(ctx context.Context, username string) (Entry, error) {
	var e Entry
	err := s.DB.QueryRowContext(ctx,
		`SELECT channel, user_id, username, message, sent_at FROM chat_messages
		 WHERE LOWER(username) = $1 ORDER BY sent_at DESC LIMIT 1`,
		strings.ToLower(username)).
		Scan(&e.Channel, &e.UserID, &e.Username, &e.Message, &e.SentAt)
	if err == sql.ErrNoRows {
		return Entry{}, ErrNoMessages
	}
	if err != nil {
		return Entry{}, fmt.Errorf("last message for %s: %w", username, err)
	}
	e.SentAt = e.SentAt.UTC()
	return e, nil
}

// ChatterCount is a per-user message tally used by the stats export.
type ChatterCount struct {
	Username string
	Messages int
}

// TopChatters aggregates message counts per user, most talkative first.
func (s *Store) TopChatters(ctx context.Context, limit int) ([]ChatterCount, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT LOWER(username) AS u, COUNT(1) FROM chat_messages
		 WHERE username IS NOT NULL AND username <> ''
		 GROUP BY u ORDER BY COUNT(1) DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("aggregate chatters: %w", err)
	}
	defer rows.Close()
	var out []ChatterCount
	for rows.Next() {
		var c ChatterCount
		if err := rows.Scan(&c.Username, &c.Messages); err != nil {
			return nil, fmt.Errorf("scan chatter count: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
