// Command melatonin-bot runs the Telegram bot that reminds subscribers about upcoming
// Nijisanji EN streams. It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres, runs migrations and seeds the creator roster.
//   - Serves the subscription menu over Telegram long polling.
//   - Polls Holodex every cycle and sends one notification per stream per subscriber.
//   - Exposes a minimal HTTP server with /healthz, /readyz, /status, and /metrics.
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

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/DanArmor/melatonin-bot/alert"
	"github.com/DanArmor/melatonin-bot/config"
	"github.com/DanArmor/melatonin-bot/db"
	"github.com/DanArmor/melatonin-bot/holodex"
	"github.com/DanArmor/melatonin-bot/menu"
	"github.com/DanArmor/melatonin-bot/notify"
	"github.com/DanArmor/melatonin-bot/roster"
	"github.com/DanArmor/melatonin-bot/server"
	"github.com/DanArmor/melatonin-bot/telegram"
	"github.com/DanArmor/melatonin-bot/telemetry"
	"github.com/DanArmor/melatonin-bot/youtubeapi"
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
	if err := cfg.ValidateBotReady(); err != nil {
		slog.Error("bot not configured", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()

	// Tracing is optional; disabled when OTEL_EXPORTER_OTLP_ENDPOINT is unset
	shutdown, err := telemetry.InitTracing("melatonin-bot", "1.0.0", cfg.OTLPEndpoint)
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Connect(ctx, cfg.DBDsn, cfg.DBMaxConns)
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, falling back to embedded schema",
			slog.Any("err", err),
			slog.String("component", "db_migrate"))
		if err := db.Migrate(ctx, database); err != nil {
			slog.Error("failed to migrate db", slog.Any("err", err))
			os.Exit(1)
		}
	}

	store := db.NewStore(database)

	waves, err := roster.Load(cfg.RosterPath)
	if err != nil {
		slog.Error("roster load failed", slog.String("path", cfg.RosterPath), slog.Any("err", err))
		os.Exit(1)
	}
	var resolver roster.ChannelResolver
	if cfg.YTAPIKey != "" {
		yt, err := youtubeapi.New(ctx, cfg.YTAPIKey)
		if err != nil {
			slog.Warn("youtube client unavailable, channel ids will not be resolved", slog.Any("err", err))
		} else {
			resolver = yt
		}
	}
	seedCtx, cancelSeed := context.WithTimeout(ctx, 2*time.Minute)
	_, err = roster.Seed(seedCtx, store, waves, resolver)
	cancelSeed()
	if err != nil {
		slog.Error("roster seed failed", slog.Any("err", err))
		os.Exit(1)
	}

	bot, err := telegram.New(cfg.TelegramToken)
	if err != nil {
		slog.Error("telegram init failed", slog.Any("err", err))
		os.Exit(1)
	}
	machine := menu.New(store, roster.OrderFromWaves(waves))
	telegram.NewHandlers(machine, store, bot).Register(bot)
	if err := bot.SetCommands(ctx); err != nil {
		slog.Warn("set commands failed", slog.Any("err", err), slog.String("component", "telegram"))
	}

	notifier := notify.New(
		&holodex.Client{BaseURL: cfg.HolodexBaseURL, APIKey: cfg.HolodexAPIKey},
		store,
		bot,
		alert.New(cfg.MonitoringURL, cfg.AlertFrom),
		notify.Options{
			Interval:    cfg.PollInterval,
			LeadTime:    cfg.LeadTime,
			Query:       holodex.UpcomingStreams(cfg.HolodexOrg, []string{cfg.HolodexLang}, cfg.LookaheadHours, cfg.PageSize),
			UTCOffset:   cfg.DisplayOffset,
			OffsetLabel: cfg.DisplayTZLabel,
		},
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		bot.Start(gctx)
		return nil
	})
	g.Go(func() error {
		notifier.Start(gctx)
		return nil
	})
	g.Go(func() error {
		return server.Start(gctx, server.Deps{
			DB:           database,
			Stats:        store,
			Cycles:       notifier,
			PollInterval: cfg.PollInterval,
		}, cfg.HTTPAddr)
	})

	if err := g.Wait(); err != nil {
		slog.Error("service exited with error", slog.Any("err", err))
		stop()
		os.Exit(1)
	}
	slog.Info("shutting down")
}

// setupLogging configures the default logger from LOG_LEVEL and LOG_FORMAT.
// Defaults: level=info, format=text.
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
	format := strings.ToLower(os.Getenv("LOG_FORMAT"))
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))
}
