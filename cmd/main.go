package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"cloudpico-viewer/internal/app"
	"cloudpico-viewer/internal/config"
	"cloudpico-viewer/internal/db"
	"cloudpico-viewer/internal/logging"
	"cloudpico-viewer/internal/migrate"
)

const appName = "cloudpico-viewer"

// Default version is "dev" if not set with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, ".env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg, version, appName)
	slog.SetDefault(logger)

	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case "serve":
		slog.Info("starting",
			"app", appName,
			"version", version,
			"env", cfg.AppEnv,
			"log_level", cfg.LogLevel.String(),
		)
		if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("run failed", "err", err)
			os.Exit(1)
		}
		slog.Info("shutting down")
	case "migrate":
		if err := runMigrate(ctx, cfg, logger); err != nil {
			fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("migrations applied")
	default:
		fmt.Fprintf(os.Stderr, "usage: %s [command]\n  serve    run the viewer (default)\n  migrate  apply pending archive migrations\n", os.Args[0])
		os.Exit(2)
	}
}

func runMigrate(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	conn, err := db.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(conn); closeErr != nil {
			slog.Error("db close", "err", closeErr)
		}
	}()
	return migrate.Run(ctx, conn, logger)
}
