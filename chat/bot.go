// Package chat runs the Twitch IRC bot: it connects to the configured
// channels, dispatches prefixed commands to handlers, and feeds every other
// chat line to the message hooks (chat log, AFK returns, message-triggered
// reminders).
package chat

import (
	"context"
	"log/slog"
	"strings"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/chat-tender/afk"
	"github.com/onnwee/chat-tender/chatlog"
	"github.com/onnwee/chat-tender/config"
	"github.com/onnwee/chat-tender/reminder"
	"github.com/onnwee/chat-tender/telemetry"
	"github.com/onnwee/chat-tender/twitchapi"
)

// speaker is the outbound chat surface; *twitch.Client satisfies it.
type speaker interface {
	Say(channel, text string)
}

// streamFinder is the Helix surface the uptime command needs;
// *twitchapi.HelixClient satisfies it.
type streamFinder interface {
	GetStream(ctx context.Context, login string) (*twitchapi.Stream, error)
}

// messageLog is the chat log surface the bot writes to and queries;
// *chatlog.Store satisfies it.
type messageLog interface {
	Insert(ctx context.Context, e chatlog.Entry) error
	LastMessage(ctx context.Context, username string) (chatlog.Entry, error)
}

// afkTracker is the AFK store surface; *afk.Store satisfies it.
type afkTracker interface {
	Set(ctx context.Context, st afk.Status) error
	ClearIfSet(ctx context.Context, userID string) (afk.Status, bool, error)
}

// Bot owns all per-process chat state. Construct one at startup and keep
// session state here rather than in package globals.
type Bot struct {
	cfg       *config.Config
	client    speaker
	helix     streamFinder
	reminders *reminder.Service
	afkStore  afkTracker
	log       messageLog
	handlers  map[string]handlerFunc
	botID     string
	now       func() time.Time
	// spawn runs a hook off the IRC read loop. Overridden in tests to run
	// synchronously.
	spawn func(func())
}

type handlerFunc func(ctx context.Context, cmd Command)

// Command is one parsed chat command invocation.
type Command struct {
	Author  reminder.Identity
	Channel string
	Args    []string
}

// NewBot wires the bot together. botID may be empty when Helix resolution of
// the bot's own account failed; self-filtering then falls back to the login.
func NewBot(cfg *config.Config, client speaker, helix streamFinder, reminders *reminder.Service, afkStore afkTracker, log messageLog, botID string) *Bot {
	b := &Bot{
		cfg:       cfg,
		client:    client,
		helix:     helix,
		reminders: reminders,
		afkStore:  afkStore,
		log:       log,
		botID:     botID,
		now:       func() time.Time { return time.Now().UTC() },
		spawn:     func(f func()) { go f() },
	}
	b.handlers = map[string]handlerFunc{
		"remind":      b.cmdRemind,
		"afk":         b.cmdAFK,
		"lastmessage": b.cmdLastMessage,
		"uptime":      b.cmdUptime,
	}
	return b
}

// Start connects to Twitch chat and blocks until ctx is cancelled or the
// connection fails permanently. The live client is wired into both the bot
// and the sender so reminder deliveries share the connection.
func Start(ctx context.Context, cfg *config.Config, bot *Bot, sender *IRCSender) {
	if err := cfg.ValidateChatReady(); err != nil {
		slog.Info("twitch creds not set; skipping chat connection", slog.Any("err", err))
		return
	}
	client := twitch.NewClient(cfg.TwitchBotUsername, cfg.TwitchOAuthToken)
	bot.client = client
	if sender != nil {
		sender.SetClient(client)
	}

	client.OnConnect(func() {
		slog.Info("connected to twitch chat", slog.Any("channels", cfg.TwitchChannels))
	})
	client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		bot.HandleMessage(ctx, msg)
	})

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		if err := client.Disconnect(); err != nil {
			slog.Warn("twitch chat disconnect", slog.Any("err", err))
		}
		close(done)
	}()

	client.Join(cfg.TwitchChannels...)
	if err := client.Connect(); err != nil && ctx.Err() == nil {
		slog.Error("twitch chat connect error", slog.Any("err", err))
	}
	<-done
}

// HandleMessage routes one incoming chat line. Commands go to their handler;
// everything else feeds the chat log, the AFK return check, and the
// message-triggered reminder path. Hooks run on their own goroutine so a slow
// database or Helix call does not stall the IRC read loop.
func (b *Bot) HandleMessage(ctx context.Context, msg twitch.PrivateMessage) {
	if b.isSelf(msg.User) {
		return
	}
	sentAt := msg.Time.UTC()
	if msg.Time.IsZero() {
		sentAt = b.now()
	}
	author := reminder.Identity{ID: msg.User.ID, Name: displayName(msg.User)}

	if name, args, ok := ParseCommand(b.cfg.CommandPrefix, msg.Message); ok {
		handler, known := b.handlers[name]
		if !known {
			return
		}
		telemetry.Inc(telemetry.CommandsDispatched)
		b.spawn(func() {
			cctx, cancel := context.WithTimeout(ctx, 15*time.Second)
			defer cancel()
			handler(cctx, Command{Author: author, Channel: msg.Channel, Args: args})
		})
		return
	}

	b.spawn(func() {
		hctx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		if err := b.log.Insert(hctx, chatlog.Entry{
			Channel:  msg.Channel,
			UserID:   msg.User.ID,
			Username: msg.User.Name,
			Message:  msg.Message,
			SentAt:   sentAt,
		}); err != nil {
			slog.Error("chat log insert failed", slog.Any("err", err), slog.String("component", "chat"))
		}
		b.announceReturn(hctx, author, msg.Channel)
		b.reminders.OnChatMessage(hctx, author, msg.Channel, sentAt)
	})
}

func (b *Bot) isSelf(u twitch.User) bool {
	if b.botID != "" && u.ID == b.botID {
		return true
	}
	return strings.EqualFold(u.Name, b.cfg.TwitchBotUsername)
}

func (b *Bot) announceReturn(ctx context.Context, author reminder.Identity, channel string) {
	st, wasAFK, err := b.afkStore.ClearIfSet(ctx, author.ID)
	if err != nil {
		slog.Error("afk clear failed", slog.Any("err", err), slog.String("component", "chat"))
		return
	}
	if !wasAFK {
		return
	}
	away := reminder.FormatDelta(b.now().Sub(st.Since))
	if st.Reason != "" {
		b.client.Say(channel, "@"+author.Name+" is back (gone "+away+"): "+st.Reason)
	} else {
		b.client.Say(channel, "@"+author.Name+" is back (gone "+away+")")
	}
}

func displayName(u twitch.User) string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Name
}

// ParseCommand splits a chat line into command name and arguments when it
// starts with the command prefix. The name is lowercased; a bare prefix is
// not a command.
func ParseCommand(prefix, text string) (string, []string, bool) {
	text = strings.TrimSpace(text)
	if prefix == "" || !strings.HasPrefix(text, prefix) {
		return "", nil, false
	}
	fields := strings.Fields(text[len(prefix):])
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}
