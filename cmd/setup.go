package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/supportmind/supportmind/internal/app"
	"github.com/supportmind/supportmind/internal/config"
	"github.com/supportmind/supportmind/internal/log"
)

// setupApp loads configuration and initializes the application container.
// The caller must Close the returned app.
func setupApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level})

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing application: %w", err)
	}
	return a, nil
}
