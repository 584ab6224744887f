// Package sheets exports chat statistics to a Google Sheets spreadsheet on an
// interval. The Google OAuth token is read from the oauth_tokens table and
// refreshed through the oauth2 client config when close to expiry.
package sheets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gsheets "google.golang.org/api/sheets/v4"
	"google.golang.org/api/option"

	"github.com/onnwee/chat-tender/chatlog"
	"github.com/onnwee/chat-tender/config"
	"github.com/onnwee/chat-tender/db"
)

const provider = "google"

// Exporter writes per-user message counts to a configured spreadsheet.
type Exporter struct {
	cfg   *config.Config
	dbx   *sql.DB
	log   *chatlog.Store
	oauth *oauth2.Config
}

// NewExporter builds an Exporter from config. Returns nil when the export is
// not configured (no spreadsheet id).
func NewExporter(cfg *config.Config, dbx *sql.DB, log *chatlog.Store) *Exporter {
	if cfg.SheetsSpreadsheetID == "" {
		return nil
	}
	return &Exporter{
		cfg: cfg,
		dbx: dbx,
		log: log,
		oauth: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{gsheets.SpreadsheetsScope},
		},
	}
}

// StartExportJob runs ExportOnce on the configured interval until ctx is
// cancelled. A failed export is logged and retried on the next tick.
func StartExportJob(ctx context.Context, e *Exporter, interval time.Duration) {
	if e == nil {
		slog.Info("sheets export not configured; skipping job")
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	slog.Info("sheets export job started", slog.Duration("interval", interval), slog.String("component", "sheets"))
	for {
		select {
		case <-ctx.Done():
			slog.Info("sheets export job stopping", slog.String("component", "sheets"))
			return
		case <-ticker.C:
			if err := e.ExportOnce(ctx); err != nil {
				slog.Error("sheets export failed", slog.Any("err", err), slog.String("component", "sheets"))
				continue
			}
			e.heartbeat(ctx)
		}
	}
}

// ExportOnce aggregates message counts and overwrites the configured range.
func (e *Exporter) ExportOnce(ctx context.Context) error {
	counts, err := e.log.TopChatters(ctx, 500)
	if err != nil {
		return fmt.Errorf("aggregate chatters: %w", err)
	}
	svc, err := e.client(ctx)
	if err != nil {
		return err
	}
	values := BuildRows(counts, time.Now().UTC())
	_, err = svc.Spreadsheets.Values.
		Update(e.cfg.SheetsSpreadsheetID, e.cfg.SheetsRange, &gsheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("sheets update: %w", err)
	}
	slog.Info("sheets export complete", slog.Int("rows", len(values)), slog.String("component", "sheets"))
	return nil
}

// BuildRows assembles the sheet contents: a header row with the export
// timestamp, then one row per chatter.
func BuildRows(counts []chatlog.ChatterCount, at time.Time) [][]interface{} {
	rows := make([][]interface{}, 0, len(counts)+1)
	rows = append(rows, []interface{}{"username", "messages", "exported_at " + at.Format(time.RFC3339)})
	for _, c := range counts {
		rows = append(rows, []interface{}{c.Username, c.Messages})
	}
	return rows
}

// heartbeat records the last successful export time for /status.
func (e *Exporter) heartbeat(ctx context.Context) {
	_, _ = e.dbx.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES ($1, $2, NOW())
		 ON CONFLICT(key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		"job_sheets_export_last", time.Now().UTC().Format(time.RFC3339))
}

func (e *Exporter) client(ctx context.Context) (*gsheets.Service, error) {
	tok, err := e.token(ctx)
	if err != nil {
		return nil, err
	}
	httpClient := e.oauth.Client(ctx, tok)
	return gsheets.NewService(ctx, option.WithHTTPClient(httpClient))
}

// token loads the stored Google token, refreshing and persisting it when it
// is within two minutes of expiry.
func (e *Exporter) token(ctx context.Context) (*oauth2.Token, error) {
	access, refresh, expiry, scope, err := db.GetOAuthToken(ctx, e.dbx, provider)
	if err != nil {
		return nil, fmt.Errorf("load google token: %w", err)
	}
	if access == "" && refresh == "" {
		return nil, errors.New("no google token stored")
	}
	tok := &oauth2.Token{AccessToken: access, RefreshToken: refresh, Expiry: expiry}
	if time.Until(tok.Expiry) > 2*time.Minute {
		return tok, nil
	}
	newTok, err := e.oauth.TokenSource(ctx, tok).Token()
	if err != nil {
		return tok, fmt.Errorf("refresh google token: %w", err)
	}
	if err := db.UpsertOAuthToken(ctx, e.dbx, provider, newTok.AccessToken, newTok.RefreshToken, newTok.Expiry, scope); err != nil {
		slog.Warn("persist refreshed google token failed", slog.Any("err", err), slog.String("component", "sheets"))
	}
	return newTok, nil
}
