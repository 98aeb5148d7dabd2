package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prperemyshlev/shop-session/internal/app"
	"github.com/prperemyshlev/shop-session/internal/config"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

// run blocks until SIGINT or SIGTERM, then shuts the session daemon down.
func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	infra, err := app.NewInfrastructure(ctx, *cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize infrastructure: %w", err)
	}
	logger := infra.Logger()

	application, err := app.NewApp(infra, cfg)
	if err != nil {
		_ = infra.Shutdown(context.WithoutCancel(ctx))
		return fmt.Errorf("failed to create application: %w", err)
	}

	logger.Info("Session daemon starting",
		zap.String("env", cfg.Env),
		zap.String("api", cfg.API.BaseURL),
	)

	if err := application.Run(ctx); err != nil {
		logger.Error("Application failed", zap.Error(err))
		return err
	}
	return nil
}
