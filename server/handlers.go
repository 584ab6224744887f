package server

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/onnwee/chat-tender/reminder"
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	db        *sql.DB
	reminders *reminder.Store
}

// NewHandlers creates handlers bound to a database.
func NewHandlers(db *sql.DB) *Handlers {
	return &Handlers{db: db, reminders: &reminder.Store{DB: db}}
}

// HandleHealthz responds to liveness probe requests by checking database connectivity.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probe requests. The process is ready when
// the database answers and the reminder sweeper has reported a heartbeat
// recently (or has not started yet, right after boot).
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"database", func() error { return h.db.PingContext(r.Context()) }},
		{"sweeper", func() error {
			hb, err := h.heartbeat(r, "job_reminder_sweep_last")
			if err != nil || hb.IsZero() {
				// No heartbeat row yet: the sweeper hasn't completed a cycle.
				// Treat as ready so boot ordering doesn't flap the probe.
				return nil
			}
			if time.Since(hb) > 5*time.Minute {
				return fmt.Errorf("sweeper heartbeat stale (last %s)", hb.Format(time.RFC3339))
			}
			return nil
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

// HandleStatus returns a JSON snapshot: active reminder counts and background
// job heartbeats.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	type status struct {
		ActiveReminders  int        `json:"active_reminders"`
		LastSweep        *time.Time `json:"last_sweep,omitempty"`
		LastSheetsExport *time.Time `json:"last_sheets_export,omitempty"`
	}
	var st status

	if n, err := h.reminders.CountActive(ctx); err == nil {
		st.ActiveReminders = n
	}
	if hb, err := h.heartbeat(r, "job_reminder_sweep_last"); err == nil && !hb.IsZero() {
		st.LastSweep = &hb
	}
	if hb, err := h.heartbeat(r, "job_sheets_export_last"); err == nil && !hb.IsZero() {
		st.LastSheetsExport = &hb
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(st)
}

// heartbeat reads a kv timestamp written by a background job.
func (h *Handlers) heartbeat(r *http.Request, key string) (time.Time, error) {
	var raw string
	err := h.db.QueryRowContext(r.Context(), `SELECT value FROM kv WHERE key=$1`, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
