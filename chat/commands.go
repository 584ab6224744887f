package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/onnwee/chat-tender/afk"
	"github.com/onnwee/chat-tender/chatlog"
	"github.com/onnwee/chat-tender/reminder"
	"github.com/onnwee/chat-tender/twitchapi"
)

// cmdRemind handles "!remind <target> [in|on|after <expr>] <message>".
func (b *Bot) cmdRemind(ctx context.Context, cmd Command) {
	if len(cmd.Args) < 1 {
		b.reply(cmd, "usage: "+b.cfg.CommandPrefix+"remind <user> [in <time>] <message>")
		return
	}
	target := cmd.Args[0]
	r, err := b.reminders.Create(ctx, cmd.Author, cmd.Channel, target, cmd.Args[1:])
	if err != nil {
		b.reply(cmd, reminder.DescribeCreateError(target, err))
		return
	}
	b.reply(cmd, fmt.Sprintf("reminder set for @%s: %s - ID: %s", r.Target.Name, r.Message, r.ID))
}

// cmdAFK handles "!afk [reason]".
func (b *Bot) cmdAFK(ctx context.Context, cmd Command) {
	reason := strings.Join(cmd.Args, " ")
	err := b.afkStore.Set(ctx, afk.Status{
		UserID:   cmd.Author.ID,
		Username: cmd.Author.Name,
		Channel:  cmd.Channel,
		Reason:   reason,
		Since:    b.now(),
	})
	if err != nil {
		slog.Error("afk set failed", slog.Any("err", err), slog.String("component", "chat"))
		b.reply(cmd, "could not mark you AFK, try again later.")
		return
	}
	if reason != "" {
		b.reply(cmd, "you are now AFK: "+reason)
	} else {
		b.reply(cmd, "you are now AFK.")
	}
}

// cmdLastMessage handles "!lastmessage <user>".
func (b *Bot) cmdLastMessage(ctx context.Context, cmd Command) {
	if len(cmd.Args) < 1 {
		b.reply(cmd, "usage: "+b.cfg.CommandPrefix+"lastmessage <user>")
		return
	}
	who := strings.TrimPrefix(cmd.Args[0], "@")
	e, err := b.log.LastMessage(ctx, who)
	if err == chatlog.ErrNoMessages {
		b.reply(cmd, fmt.Sprintf("no messages logged for '%s'.", who))
		return
	}
	if err != nil {
		slog.Error("last message lookup failed", slog.Any("err", err), slog.String("component", "chat"))
		b.reply(cmd, "could not look that up, try again later.")
		return
	}
	ago := reminder.FormatDelta(b.now().Sub(e.SentAt))
	b.reply(cmd, fmt.Sprintf("@%s last said \"%s\" %s ago in #%s", e.Username, e.Message, ago, e.Channel))
}

// cmdUptime handles "!uptime" for the channel the command was issued in.
func (b *Bot) cmdUptime(ctx context.Context, cmd Command) {
	stream, err := b.helix.GetStream(ctx, cmd.Channel)
	if err != nil {
		slog.Error("uptime lookup failed", slog.Any("err", err), slog.String("component", "chat"))
		b.reply(cmd, "could not reach the Twitch API, try again later.")
		return
	}
	if stream == nil {
		b.reply(cmd, fmt.Sprintf("%s is offline.", cmd.Channel))
		return
	}
	up, err := twitchapi.StreamUptime(stream, b.now())
	if err != nil {
		slog.Error("uptime parse failed", slog.Any("err", err), slog.String("component", "chat"))
		b.reply(cmd, "could not work out the uptime, try again later.")
		return
	}
	b.reply(cmd, fmt.Sprintf("%s has been live for %s", cmd.Channel, reminder.FormatDelta(up)))
}

// reply addresses the command's author in the channel it was issued in.
func (b *Bot) reply(cmd Command, text string) {
	b.client.Say(cmd.Channel, "@"+cmd.Author.Name+", "+text)
}
