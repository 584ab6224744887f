// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	RemindersCreated   prometheus.Counter
	RemindersFired     prometheus.Counter
	DeliveriesFailed   prometheus.Counter
	SweepCycles        prometheus.Counter
	SweepStoreErrors   prometheus.Counter
	MessagesLogged     prometheus.Counter
	CommandsDispatched prometheus.Counter

	// Histograms (seconds)
	SweepDuration    prometheus.Observer
	DeliveryDuration prometheus.Observer

	// Gauges
	ActiveRemindersGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		RemindersCreated = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_reminders_created_total", Help: "Number of reminders created"})
		RemindersFired = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_reminders_fired_total", Help: "Number of reminders fired (delivery attempted)"})
		DeliveriesFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_reminder_deliveries_failed_total", Help: "Number of reminder deliveries that failed"})
		SweepCycles = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_reminder_sweeps_total", Help: "Number of reminder sweep cycles"})
		SweepStoreErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_reminder_sweep_store_errors_total", Help: "Number of sweeps aborted by store errors"})
		MessagesLogged = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_chat_messages_logged_total", Help: "Number of chat messages written to the log"})
		CommandsDispatched = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_commands_dispatched_total", Help: "Number of chat commands dispatched to handlers"})
		SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "bot_reminder_sweep_duration_seconds", Help: "Sweep duration seconds", Buckets: prometheus.DefBuckets})
		DeliveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "bot_reminder_delivery_duration_seconds", Help: "Delivery duration seconds", Buckets: prometheus.DefBuckets})
		ActiveRemindersGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "bot_active_reminders", Help: "Current number of active reminders"})
	})
}

// Inc increments a counter if metrics are initialized.
func Inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// Observe records a value if metrics are initialized.
func Observe(o prometheus.Observer, v float64) {
	if o != nil {
		o.Observe(v)
	}
}

// SetActiveReminders records the current active reminder count.
func SetActiveReminders(n int) {
	if ActiveRemindersGauge != nil {
		ActiveRemindersGauge.Set(float64(n))
	}
}

// Correlation ID helpers ----------------------------------------------------

type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with a corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
