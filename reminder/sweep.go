package reminder

import (
	"context"
	"log/slog"
	"time"

	"github.com/onnwee/chat-tender/telemetry"
)

// StartSweeper runs the polling loop evaluating timed reminders until ctx is
// cancelled. A transient store failure logs and backs off for errBackoff
// instead of terminating the loop.
func StartSweeper(ctx context.Context, svc *Service, interval, errBackoff time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	if errBackoff <= 0 {
		errBackoff = 10 * time.Second
	}
	slog.Info("reminder sweeper starting", slog.Duration("interval", interval), slog.String("component", "reminder_sweep"))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("reminder sweeper stopped", slog.String("component", "reminder_sweep"))
			return
		case <-ticker.C:
			telemetry.Inc(telemetry.SweepCycles)
			start := time.Now()
			svc.Store().Heartbeat(ctx, "job_reminder_sweep_last", start.UTC())
			err := svc.SweepOnce(ctx)
			telemetry.Observe(telemetry.SweepDuration, time.Since(start).Seconds())
			if err != nil {
				telemetry.Inc(telemetry.SweepStoreErrors)
				slog.Warn("reminder sweep failed, backing off",
					slog.Any("err", err),
					slog.Duration("backoff", errBackoff),
					slog.String("component", "reminder_sweep"))
				select {
				case <-ctx.Done():
					slog.Info("reminder sweeper stopped", slog.String("component", "reminder_sweep"))
					return
				case <-time.After(errBackoff):
				}
			}
		}
	}
}
