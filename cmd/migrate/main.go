package main

import (
	"context"
	"flag"
	"os"

	"github.com/joho/godotenv"

	"github.com/orderlyhq/orderly-backend/pkg/config"
	"github.com/orderlyhq/orderly-backend/pkg/logger"
	"github.com/orderlyhq/orderly-backend/pkg/migrate"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "migrate"})

	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: up|down|status")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{
		"env": cfg.App.Env,
		"cmd": *cmd,
	})

	switch *cmd {
	case "up":
		err = migrate.Up(ctx, cfg.DB.DSN)
	case "down":
		err = migrate.Down(ctx, cfg.DB.DSN)
	case "status":
		err = migrate.Status(ctx, cfg.DB.DSN)
	default:
		logg.Error(ctx, "unknown migration command", nil)
		os.Exit(1)
	}
	if err != nil {
		logg.Error(ctx, "migration failed", err)
		os.Exit(1)
	}

	logg.Info(ctx, "migration complete")
}
