// Package reminder implements the bot's reminder service: persisted reminders
// that fire either at an absolute time or on the target's next chat message.
package reminder

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors surfaced to command handlers.
var (
	// ErrDuplicateID means a reminder with the same id already exists.
	ErrDuplicateID = errors.New("reminder id already exists")
	// ErrTimeParse means a time keyword was present but no prefix parsed as a time.
	ErrTimeParse = errors.New("could not parse time expression")
	// ErrNoMessage means the command carried no reminder text.
	ErrNoMessage = errors.New("reminder message is empty")
	// ErrUserNotFound means the target could not be resolved to a Twitch user.
	ErrUserNotFound = errors.New("target user not found")
	// ErrNotConnected means no chat connection exists yet, so nothing was sent.
	ErrNotConnected = errors.New("chat connection not established")
)

// Identity is the (numeric id, display name) pair Twitch uses for users.
type Identity struct {
	ID   string
	Name string
}

// Reminder is the persisted entity. Exactly one of DueAt (timed) or
// FiresOnMessage (message-triggered) is meaningful; the two never overlap.
type Reminder struct {
	ID             string
	Creator        Identity
	Target         Identity
	Channel        string
	Message        string
	DueAt          *time.Time
	IsPrivate      bool
	FiresOnMessage bool
	Active         bool
	CreatedAt      time.Time
}

// NewID returns a short opaque reminder id. Collisions are practically
// unreachable but Save still reports them as ErrDuplicateID.
func NewID() string {
	return uuid.NewString()[:8]
}
