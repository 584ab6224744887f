package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/onnwee/chat-tender/reminder"
	"github.com/onnwee/chat-tender/twitchapi"
)

// IRCSender delivers reminders through the live chat connection. Channel
// messages go over IRC; whispers go through Helix because the IRC whisper
// path is long dead. The client is installed with SetClient once the
// connection exists; the sweeper may already be calling Say by then.
type IRCSender struct {
	Helix *twitchapi.HelixClient
	BotID string

	mu     sync.Mutex
	client speaker
}

// SetClient installs the live chat connection.
func (s *IRCSender) SetClient(c speaker) {
	s.mu.Lock()
	s.client = c
	s.mu.Unlock()
}

func (s *IRCSender) Say(ctx context.Context, channel, text string) error {
	s.mu.Lock()
	c := s.client
	s.mu.Unlock()
	if c == nil {
		return reminder.ErrNotConnected
	}
	c.Say(channel, text)
	return nil
}

func (s *IRCSender) Whisper(ctx context.Context, toID, text string) error {
	if s.Helix == nil {
		return errors.New("helix client not configured")
	}
	return s.Helix.SendWhisper(ctx, s.BotID, toID, text)
}

// HelixResolver resolves reminder targets via the Helix users endpoint.
type HelixResolver struct {
	Helix *twitchapi.HelixClient
}

func (r *HelixResolver) Resolve(ctx context.Context, login string) (reminder.Identity, error) {
	u, err := r.Helix.GetUser(ctx, login)
	if errors.Is(err, twitchapi.ErrUserNotFound) {
		return reminder.Identity{}, reminder.ErrUserNotFound
	}
	if err != nil {
		return reminder.Identity{}, fmt.Errorf("helix user lookup: %w", err)
	}
	name := u.DisplayName
	if name == "" {
		name = u.Login
	}
	return reminder.Identity{ID: u.ID, Name: name}, nil
}
