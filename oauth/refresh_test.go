package oauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/onnwee/chat-tender/db"
	"github.com/onnwee/chat-tender/testutil"
)

func TestRefreshOnceOutsideWindow(t *testing.T) {
	dbx := testutil.SetupTestDB(t)

	exp := time.Now().Add(1 * time.Hour)
	if err := db.UpsertOAuthToken(context.Background(), dbx, "test-provider", "access123", "refresh456", exp, "scope1"); err != nil {
		t.Fatalf("seed token: %v", err)
	}

	called := false
	refreshOnce(context.Background(), dbx, "test-provider", 30*time.Minute, func(ctx context.Context, rt string) (string, string, time.Time, string, error) {
		called = true
		return "new-access", "new-refresh", time.Now().Add(2 * time.Hour), "scope1", nil
	})

	if called {
		t.Error("refresh ran for a token that expires in 1 hour with a 30 minute window")
	}
}

func TestRefreshOnceWithinWindow(t *testing.T) {
	dbx := testutil.SetupTestDB(t)

	exp := time.Now().Add(5 * time.Minute)
	if err := db.UpsertOAuthToken(context.Background(), dbx, "test-provider", "old-access", "old-refresh", exp, "scope1"); err != nil {
		t.Fatalf("seed token: %v", err)
	}

	newExp := time.Now().Add(2 * time.Hour)
	refreshOnce(context.Background(), dbx, "test-provider", 15*time.Minute, func(ctx context.Context, rt string) (string, string, time.Time, string, error) {
		if rt != "old-refresh" {
			t.Errorf("refresh called with token %q, want old-refresh", rt)
		}
		return "new-access", "new-refresh", newExp, "scope2", nil
	})

	access, refresh, _, scope, err := db.GetOAuthToken(context.Background(), dbx, "test-provider")
	if err != nil {
		t.Fatalf("read back token: %v", err)
	}
	if access != "new-access" || refresh != "new-refresh" || scope != "scope2" {
		t.Errorf("token not updated: access=%q refresh=%q scope=%q", access, refresh, scope)
	}
}

func TestRefreshOnceErrorKeepsOldToken(t *testing.T) {
	dbx := testutil.SetupTestDB(t)

	exp := time.Now().Add(5 * time.Minute)
	if err := db.UpsertOAuthToken(context.Background(), dbx, "test-provider", "old-access", "old-refresh", exp, "scope1"); err != nil {
		t.Fatalf("seed token: %v", err)
	}

	refreshOnce(context.Background(), dbx, "test-provider", 15*time.Minute, func(ctx context.Context, rt string) (string, string, time.Time, string, error) {
		return "", "", time.Time{}, "", errors.New("refresh failed")
	})

	access, _, _, _, err := db.GetOAuthToken(context.Background(), dbx, "test-provider")
	if err != nil {
		t.Fatalf("read back token: %v", err)
	}
	if access != "old-access" {
		t.Errorf("token should be unchanged after a failed refresh, got %q", access)
	}
}

func TestRefreshOnceSkipsWithoutRefreshToken(t *testing.T) {
	dbx := testutil.SetupTestDB(t)

	exp := time.Now().Add(5 * time.Minute)
	if err := db.UpsertOAuthToken(context.Background(), dbx, "test-provider", "access123", "", exp, "scope1"); err != nil {
		t.Fatalf("seed token: %v", err)
	}

	called := false
	refreshOnce(context.Background(), dbx, "test-provider", 15*time.Minute, func(ctx context.Context, rt string) (string, string, time.Time, string, error) {
		called = true
		return "new-access", "new-refresh", time.Now().Add(2 * time.Hour), "scope1", nil
	})

	if called {
		t.Error("refresh ran without a refresh token")
	}
}

func TestRefreshOncePreservesRefreshTokenAndScope(t *testing.T) {
	dbx := testutil.SetupTestDB(t)

	exp := time.Now().Add(5 * time.Minute)
	if err := db.UpsertOAuthToken(context.Background(), dbx, "test-provider", "old-access", "original-refresh", exp, "scope1"); err != nil {
		t.Fatalf("seed token: %v", err)
	}

	refreshOnce(context.Background(), dbx, "test-provider", 15*time.Minute, func(ctx context.Context, rt string) (string, string, time.Time, string, error) {
		return "new-access", "", time.Now().Add(2 * time.Hour), "", nil
	})

	_, refresh, _, scope, err := db.GetOAuthToken(context.Background(), dbx, "test-provider")
	if err != nil {
		t.Fatalf("read back token: %v", err)
	}
	if refresh != "original-refresh" {
		t.Errorf("refresh token = %q, want original-refresh", refresh)
	}
	if scope != "scope1" {
		t.Errorf("scope = %q, want scope1", scope)
	}
}

func TestStartRefresherCancellation(t *testing.T) {
	dbx := testutil.SetupTestDB(t)

	ctx, cancel := context.WithCancel(context.Background())
	StartRefresher(ctx, dbx, "test-provider", time.Second, 15*time.Minute, func(ctx context.Context, rt string) (string, string, time.Time, string, error) {
		return "access", "refresh", time.Now().Add(time.Hour), "scope", nil
	})
	cancel()
	time.Sleep(50 * time.Millisecond)
}
