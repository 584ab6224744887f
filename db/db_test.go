package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/onnwee/chat-tender/db"
	"github.com/onnwee/chat-tender/testutil"
)

func TestConnectRejectsEmptyDSN(t *testing.T) {
	if _, err := db.Connect(""); err == nil {
		t.Error("expected error for empty dsn")
	}
}

func TestMigrateIdempotent(t *testing.T) {
	dbx := testutil.SetupTestDB(t)

	// SetupTestDB already migrated once; a second run must be a no-op.
	if err := db.Migrate(context.Background(), dbx); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	for _, table := range []string{"reminders", "chat_messages", "afk_status", "oauth_tokens", "kv"} {
		if _, err := dbx.Exec(`SELECT COUNT(1) FROM ` + table); err != nil {
			t.Errorf("table %s missing after migrate: %v", table, err)
		}
	}
}

func TestOAuthTokenRoundTrip(t *testing.T) {
	dbx := testutil.SetupTestDB(t)

	exp := time.Now().UTC().Add(time.Hour).Truncate(time.Microsecond)
	if err := db.UpsertOAuthToken(context.Background(), dbx, "test-roundtrip", "access-1", "refresh-1", exp, "chat:read"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	t.Cleanup(func() {
		_, _ = dbx.Exec(`DELETE FROM oauth_tokens WHERE provider='test-roundtrip'`)
	})

	access, refresh, gotExp, scope, err := db.GetOAuthToken(context.Background(), dbx, "test-roundtrip")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if access != "access-1" || refresh != "refresh-1" || scope != "chat:read" {
		t.Errorf("got access=%q refresh=%q scope=%q", access, refresh, scope)
	}
	if !gotExp.UTC().Equal(exp) {
		t.Errorf("expiry = %v, want %v", gotExp, exp)
	}

	// Upsert replaces the existing row.
	if err := db.UpsertOAuthToken(context.Background(), dbx, "test-roundtrip", "access-2", "refresh-2", exp, "chat:read chat:edit"); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	access, refresh, _, _, err = db.GetOAuthToken(context.Background(), dbx, "test-roundtrip")
	if err != nil {
		t.Fatalf("get after upsert: %v", err)
	}
	if access != "access-2" || refresh != "refresh-2" {
		t.Errorf("got access=%q refresh=%q after upsert", access, refresh)
	}
}

func TestGetOAuthTokenMissingProvider(t *testing.T) {
	dbx := testutil.SetupTestDB(t)

	access, refresh, exp, scope, err := db.GetOAuthToken(context.Background(), dbx, "never-stored")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if access != "" || refresh != "" || scope != "" || !exp.IsZero() {
		t.Errorf("expected zero values, got access=%q refresh=%q exp=%v scope=%q", access, refresh, exp, scope)
	}
}
