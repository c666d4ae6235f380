package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fastygo/deadlines/internal/cli"
	"github.com/fastygo/deadlines/internal/config"
	"github.com/fastygo/deadlines/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := cli.Run(ctx, open, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func open(ctx context.Context, opts cli.Options) (*cli.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if opts.Profile != "" {
		cfg.Storage.Profile = opts.Profile
	}

	level := cfg.Logger.Level
	if os.Getenv("LOG_LEVEL") == "" {
		level = "warn"
	}
	zapLogger, err := logger.New(logger.Config{
		Level:    level,
		Encoding: "console",
		Stderr:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	zapLogger = zapLogger.With(zap.String("profile", cfg.Storage.Profile))

	return cli.Open(ctx, cfg, zapLogger, opts.Stderr)
}
