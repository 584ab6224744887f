// Command chat-tender is the main entrypoint for the Twitch chat bot.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Connects to Twitch chat and dispatches commands (remind, afk,
//     lastmessage, uptime).
//   - Starts background jobs: the reminder sweeper, OAuth token refreshers
//     for Twitch/Google, and the Sheets stats export.
//   - Exposes a minimal HTTP server with /healthz, /readyz, /status, /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/joho/godotenv"

	"github.com/onnwee/chat-tender/afk"
	"github.com/onnwee/chat-tender/chat"
	"github.com/onnwee/chat-tender/chatlog"
	"github.com/onnwee/chat-tender/config"
	"github.com/onnwee/chat-tender/db"
	"github.com/onnwee/chat-tender/oauth"
	"github.com/onnwee/chat-tender/reminder"
	"github.com/onnwee/chat-tender/server"
	"github.com/onnwee/chat-tender/sheets"
	"github.com/onnwee/chat-tender/telemetry"
	"github.com/onnwee/chat-tender/twitchapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing("chat-tender", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	database, err := db.Connect(cfg.DBDsn)
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	// Versioned migrations first; embedded SQL is the fallback for deployments
	// without the migrations directory.
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, falling back to embedded SQL",
			slog.Any("err", err), slog.String("component", "db_migrate"))
		if err := db.Migrate(context.Background(), database); err != nil {
			slog.Error("failed to migrate db", slog.Any("err", err))
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Helix client: app token for lookups, stored user token for whispers.
	// The token is read from the database per whisper so rotations by the
	// refresher below take effect without a restart.
	helix := &twitchapi.HelixClient{
		AppTokenSource: &twitchapi.TokenSource{ClientID: cfg.TwitchClientID, ClientSecret: cfg.TwitchClientSecret},
		ClientID:       cfg.TwitchClientID,
	}
	helix.UserTokenSource = func(tctx context.Context) (string, error) {
		access, _, _, _, err := db.GetOAuthToken(tctx, database, "twitch")
		return access, err
	}

	// Resolve the bot's own account for self-filtering; not fatal when Helix
	// creds are missing.
	botID := ""
	if cfg.TwitchBotUsername != "" && cfg.TwitchClientID != "" {
		rctx, cancel := context.WithTimeout(ctx, 8*time.Second)
		if u, err := helix.GetUser(rctx, cfg.TwitchBotUsername); err != nil {
			slog.Warn("bot user lookup failed", slog.Any("err", err))
		} else {
			botID = u.ID
		}
		cancel()
	}

	store := &reminder.Store{DB: database}
	logStore := &chatlog.Store{DB: database}
	afkStore := &afk.Store{DB: database}

	sender := &chat.IRCSender{Helix: helix, BotID: botID}
	svc := reminder.NewService(store, &chat.HelixResolver{Helix: helix}, sender, botID, cfg.DeliveryTimeout)
	bot := chat.NewBot(cfg, nil, helix, svc, afkStore, logStore, botID)

	go chat.Start(ctx, cfg, bot, sender)

	go reminder.StartSweeper(ctx, svc, cfg.RemindPollInterval, cfg.RemindErrorBackoff)

	oauth.StartRefresher(ctx, database, "twitch", 5*time.Minute, 15*time.Minute, func(rctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
		res, err := twitchapi.RefreshToken(rctx, cfg.TwitchClientID, cfg.TwitchClientSecret, refreshToken)
		if err != nil {
			return "", "", time.Time{}, "", err
		}
		return res.AccessToken, res.RefreshToken, twitchapi.ComputeExpiry(res.ExpiresIn), strings.Join(res.Scope, " "), nil
	})
	if cfg.GoogleClientID != "" {
		oauth.StartRefresher(ctx, database, "google", 10*time.Minute, 20*time.Minute, func(rctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
			oc := &oauth2.Config{ClientID: cfg.GoogleClientID, ClientSecret: cfg.GoogleClientSecret, Endpoint: google.Endpoint}
			newTok, err := oc.TokenSource(rctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
			if err != nil {
				return "", "", time.Time{}, "", err
			}
			return newTok.AccessToken, newTok.RefreshToken, newTok.Expiry, "", nil
		})
	}

	go sheets.StartExportJob(ctx, sheets.NewExporter(cfg, database, logStore), cfg.SheetsInterval)

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	go func() {
		if err := server.Start(ctx, database, addr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
}

// setupLogging configures slog from LOG_LEVEL and LOG_FORMAT (text | json).
func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	var handler slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()))
}
