package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"autoblogger/internal/app"
	"autoblogger/internal/config"
	"autoblogger/internal/logging"
	"autoblogger/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	slogger := logging.New(cfg.Logging.Level)

	application, err := app.New(cfg, slogger)
	if err != nil {
		logger.New("startup").Fatalf("cannot start: %v", err)
	}

	if err := application.Run(ctx); err != nil {
		slogger.Error("application stopped", "error", err)
		os.Exit(1)
	}
}
