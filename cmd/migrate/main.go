// Package main provides a CLI to manage the bot's versioned database schema.
//
// Usage:
//
//	migrate [up|down|version]
//
// up applies pending migrations (default), down rolls back the latest migration, version
// prints the current schema version. The database is taken from DB_DSN.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/DanArmor/melatonin-bot/config"
	"github.com/DanArmor/melatonin-bot/db"
)

func main() {
	path := flag.String("path", "", "Migrations directory (default: auto-detect db/migrations)")
	flag.Parse()

	_ = godotenv.Load()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cmd := "up"
	if flag.NArg() > 0 {
		cmd = flag.Arg(0)
	}
	if err := run(context.Background(), cmd, *path); err != nil {
		slog.Error("migrate failed", slog.String("command", cmd), slog.Any("err", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd, path string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	database, err := db.Connect(ctx, cfg.DBDsn, 2)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()

	if path != "" && !strings.Contains(path, "://") {
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		path = "file://" + abs
	}

	switch cmd {
	case "up":
		if path != "" {
			return db.RunMigrationsFromPath(database, path)
		}
		return db.RunMigrations(database)
	case "down":
		if path != "" {
			return db.MigrateDownFromPath(database, path)
		}
		return db.MigrateDown(database)
	case "version":
		v, dirty, err := db.GetMigrationVersion(database)
		if err != nil {
			return err
		}
		fmt.Printf("version=%d dirty=%t\n", v, dirty)
		return nil
	default:
		return fmt.Errorf("unknown command %q (want up, down or version)", cmd)
	}
}
