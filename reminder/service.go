package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/onnwee/chat-tender/telemetry"
)

// Storage abstracts reminder persistence (for tests/mocks). *Store is the
// Postgres implementation.
type Storage interface {
	Save(ctx context.Context, r *Reminder) error
	ActiveTimed(ctx context.Context) ([]Reminder, error)
	ActiveForTarget(ctx context.Context, targetID string) ([]Reminder, error)
	Delete(ctx context.Context, id string) error
	CountActive(ctx context.Context) (int, error)
	Heartbeat(ctx context.Context, key string, at time.Time)
}

// Resolver resolves a login name (bare or @-prefixed) to a user identity.
type Resolver interface {
	Resolve(ctx context.Context, login string) (Identity, error)
}

// Sender delivers text to a channel or privately to a user.
type Sender interface {
	Say(ctx context.Context, channel, text string) error
	Whisper(ctx context.Context, toID, text string) error
}

// Service wires the store, user resolution, and delivery together. Construct
// one at startup and pass it to the chat handlers and the sweeper; it holds no
// ambient globals.
type Service struct {
	store           Storage
	resolver        Resolver
	sender          Sender
	botUserID       string
	deliveryTimeout time.Duration
	now             func() time.Time
}

// NewService builds a Service. botUserID is used to ignore the bot's own
// messages on the message-triggered path.
func NewService(store Storage, resolver Resolver, sender Sender, botUserID string, deliveryTimeout time.Duration) *Service {
	if deliveryTimeout <= 0 {
		deliveryTimeout = 10 * time.Second
	}
	return &Service{
		store:           store,
		resolver:        resolver,
		sender:          sender,
		botUserID:       botUserID,
		deliveryTimeout: deliveryTimeout,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Store exposes the underlying store for status reporting.
func (s *Service) Store() Storage { return s.store }

// Create resolves the target, parses the optional time expression, and
// persists a new reminder. args is everything after the target argument.
func (s *Service) Create(ctx context.Context, creator Identity, channel, targetLogin string, args []string) (*Reminder, error) {
	target, err := s.resolver.Resolve(ctx, targetLogin)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", targetLogin, err)
	}

	createdAt := s.now()
	sched, err := ParseSchedule(createdAt, args)
	if err != nil {
		return nil, err
	}

	r := &Reminder{
		ID:             NewID(),
		Creator:        creator,
		Target:         target,
		Channel:        channel,
		Message:        sched.Message,
		DueAt:          sched.DueAt,
		FiresOnMessage: sched.DueAt == nil,
		Active:         true,
		CreatedAt:      createdAt,
	}
	if err := s.store.Save(ctx, r); err != nil {
		return nil, err
	}
	telemetry.Inc(telemetry.RemindersCreated)
	slog.Info("reminder created",
		slog.String("reminder_id", r.ID),
		slog.String("target", target.Name),
		slog.Bool("timed", r.DueAt != nil),
		slog.String("component", "reminder"))
	return r, nil
}

// OnChatMessage runs the message-triggered path for one incoming chat line.
// Messages from the bot itself never fire reminders, and neither do messages
// timestamped before a reminder's creation (out-of-order delivery guard).
// Every matching reminder fires, not just the first.
func (s *Service) OnChatMessage(ctx context.Context, author Identity, channel string, sentAt time.Time) {
	if author.ID == "" || author.ID == s.botUserID {
		return
	}
	reminders, err := s.store.ActiveForTarget(ctx, author.ID)
	if err != nil {
		slog.Error("load message-triggered reminders", slog.Any("err", err), slog.String("component", "reminder"))
		return
	}
	for _, r := range reminders {
		if sentAt.Before(r.CreatedAt) {
			continue
		}
		// Deliver where the target just spoke rather than where the reminder
		// was set; the point of a message-triggered reminder is catching the
		// target wherever they show up.
		r.Channel = channel
		s.fire(ctx, &r)
	}
}

// SweepOnce evaluates all timed reminders and fires the due ones. Reminders
// are processed independently so one failing delivery cannot abort the sweep.
func (s *Service) SweepOnce(ctx context.Context) error {
	reminders, err := s.store.ActiveTimed(ctx)
	if err != nil {
		return err
	}
	now := s.now()
	for i := range reminders {
		r := &reminders[i]
		if r.DueAt == nil || now.Before(*r.DueAt) {
			continue
		}
		s.fire(ctx, r)
	}
	if n, err := s.store.CountActive(ctx); err == nil {
		telemetry.SetActiveReminders(n)
	}
	return nil
}

// fire delivers a reminder and removes it. Delivery is attempted at most
// once: the row is deleted even when the send fails, and the failure is only
// logged (the requester is not around at fire time to hear about it). The one
// exception is ErrNotConnected, where nothing was sent at all; the reminder
// stays for a later sweep.
func (s *Service) fire(ctx context.Context, r *Reminder) {
	telemetry.Inc(telemetry.RemindersFired)
	start := time.Now()
	err := s.deliver(ctx, r)
	telemetry.Observe(telemetry.DeliveryDuration, time.Since(start).Seconds())
	if err != nil {
		telemetry.Inc(telemetry.DeliveriesFailed)
		slog.Error("reminder delivery failed",
			slog.String("reminder_id", r.ID),
			slog.String("target", r.Target.Name),
			slog.String("channel", r.Channel),
			slog.Any("err", err),
			slog.String("component", "reminder"))
		if errors.Is(err, ErrNotConnected) {
			return
		}
	}
	if err := s.store.Delete(ctx, r.ID); err != nil {
		slog.Error("delete fired reminder", slog.String("reminder_id", r.ID), slog.Any("err", err), slog.String("component", "reminder"))
	}
}

func (s *Service) deliver(ctx context.Context, r *Reminder) error {
	text := s.composeNotice(r)
	ctx, cancel := context.WithTimeout(ctx, s.deliveryTimeout)
	defer cancel()
	if r.IsPrivate {
		return s.sender.Whisper(ctx, r.Target.ID, text)
	}
	return s.sender.Say(ctx, r.Channel, text)
}

// composeNotice builds the single delivery line, e.g.
// "@alice, reminder from @bob set 11s ago - hello".
func (s *Service) composeNotice(r *Reminder) string {
	since := FormatDelta(s.now().Sub(r.CreatedAt))
	if r.Creator.Name == "" {
		return fmt.Sprintf("@%s, reminder set %s ago - %s", r.Target.Name, since, r.Message)
	}
	return fmt.Sprintf("@%s, reminder from @%s set %s ago - %s", r.Target.Name, r.Creator.Name, since, r.Message)
}

// DescribeCreateError maps a Create failure to the chat reply for the invoker.
func DescribeCreateError(targetLogin string, err error) string {
	switch {
	case errors.Is(err, ErrUserNotFound):
		return fmt.Sprintf("user '%s' not found.", targetLogin)
	case errors.Is(err, ErrTimeParse):
		return "could not parse that time expression."
	case errors.Is(err, ErrNoMessage):
		return "please provide a message for the reminder."
	default:
		return "could not create the reminder, try again later."
	}
}
