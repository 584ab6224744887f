package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/onnwee/chat-tender/reminder"
	"github.com/onnwee/chat-tender/testutil"
)

func TestHealthz(t *testing.T) {
	db := testutil.SetupTestDB(t)
	srv := httptest.NewServer(NewMux(db))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get("X-Correlation-ID") == "" {
		t.Error("missing X-Correlation-ID header")
	}
}

func TestCorrelationIDReused(t *testing.T) {
	db := testutil.SetupTestDB(t)
	srv := httptest.NewServer(NewMux(db))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	req.Header.Set("X-Correlation-ID", "corr-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("healthz request: %v", err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get("X-Correlation-ID"); got != "corr-123" {
		t.Errorf("X-Correlation-ID = %q, want corr-123", got)
	}
}

func TestReadyzFreshHeartbeat(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := &reminder.Store{DB: db}
	store.Heartbeat(context.Background(), "job_reminder_sweep_last", time.Now().UTC())

	srv := httptest.NewServer(NewMux(db))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("readyz request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("readyz status = %d, want 200", resp.StatusCode)
	}
}

func TestReadyzStaleHeartbeat(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := &reminder.Store{DB: db}
	store.Heartbeat(context.Background(), "job_reminder_sweep_last", time.Now().UTC().Add(-time.Hour))

	srv := httptest.NewServer(NewMux(db))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("readyz request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("readyz status = %d, want 503", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode readyz body: %v", err)
	}
	if body["failed_check"] != "sweeper" {
		t.Errorf("failed_check = %q, want sweeper", body["failed_check"])
	}
}

func TestStatusSnapshot(t *testing.T) {
	db := testutil.SetupTestDB(t)
	if _, err := db.Exec(`DELETE FROM reminders`); err != nil {
		t.Fatalf("clean reminders: %v", err)
	}
	store := &reminder.Store{DB: db}
	due := time.Now().UTC().Add(time.Hour)
	err := store.Save(context.Background(), &reminder.Reminder{
		ID:        "status01",
		Creator:   reminder.Identity{ID: "1", Name: "a"},
		Target:    reminder.Identity{ID: "2", Name: "b"},
		Channel:   "chan",
		Message:   "hi",
		DueAt:     &due,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed reminder: %v", err)
	}
	t.Cleanup(func() { _ = store.Delete(context.Background(), "status01") })
	store.Heartbeat(context.Background(), "job_reminder_sweep_last", time.Now().UTC())

	srv := httptest.NewServer(NewMux(db))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("status request: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		ActiveReminders int        `json:"active_reminders"`
		LastSweep       *time.Time `json:"last_sweep"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode status body: %v", err)
	}
	if body.ActiveReminders != 1 {
		t.Errorf("active_reminders = %d, want 1", body.ActiveReminders)
	}
	if body.LastSweep == nil {
		t.Error("last_sweep missing")
	}
}
