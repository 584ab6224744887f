// Package oauth schedules token refresh for providers whose tokens live in
// the oauth_tokens table (twitch for whispers, google for the sheets export).
// Checks are jittered and a token is refreshed once its remaining lifetime
// falls inside the configured window.
package oauth

import (
	"context"
	"database/sql"
	"log/slog"
	"math/rand"
	"time"

	"github.com/onnwee/chat-tender/db"
)

// RefreshFunc performs the provider-specific refresh and returns
// (access, refresh, expiry, scope).
type RefreshFunc func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error)

// StartRefresher launches a goroutine that periodically checks the provider's
// token row and refreshes it when expiry falls within window. Reads and writes
// go through the db helpers so tokens stay encrypted at rest.
func StartRefresher(ctx context.Context, dbx *sql.DB, provider string, interval, window time.Duration, fn RefreshFunc) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	// Spread instances out so they do not all wake at once.
	//nolint:gosec // G404: scheduling jitter, not security
	initialJitter := time.Duration(rand.Int63n(int64(interval/2) + 1))
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(initialJitter):
		}
		for {
			//nolint:gosec // G404: scheduling jitter, not security
			jitterRange := int64(interval / 5)
			sleep := interval
			if jitterRange > 0 {
				sleep += time.Duration(rand.Int63n(jitterRange*2) - jitterRange)
			}
			if sleep < interval/2 {
				sleep = interval / 2
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(sleep):
			}
			refreshOnce(ctx, dbx, provider, window, fn)
		}
	}()
}

func refreshOnce(ctx context.Context, dbx *sql.DB, provider string, window time.Duration, fn RefreshFunc) {
	_, rt, exp, scope, err := db.GetOAuthToken(ctx, dbx, provider)
	if err != nil {
		slog.Warn("token lookup failed", slog.String("provider", provider), slog.Any("err", err))
		return
	}
	if rt == "" {
		return
	}
	if time.Until(exp) > window {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	newAT, newRT, newExp, newScope, err := fn(rctx, rt)
	cancel()
	if err != nil {
		slog.Warn("token refresh failed", slog.String("provider", provider), slog.Any("err", err))
		return
	}
	if newRT == "" {
		newRT = rt
	}
	if newScope == "" {
		newScope = scope
	}
	if err := db.UpsertOAuthToken(ctx, dbx, provider, newAT, newRT, newExp, newScope); err != nil {
		slog.Warn("token persist failed", slog.String("provider", provider), slog.Any("err", err))
		return
	}
	slog.Info("token refreshed", slog.String("provider", provider))
}
