package app

import (
	"context"

	"go.uber.org/zap"
)

type App struct {
	logger *zap.Logger
}

type ServeConfig struct {
	ConfigPath string
	// ListenAddress overrides runtime.listenAddress when set.
	ListenAddress string
}

type ValidateConfig struct {
	ConfigPath string
}

func New(logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		logger: logger,
	}
}

// Serve runs the gateway until ctx is cancelled.
func (a *App) Serve(ctx context.Context, cfg ServeConfig) error {
	application, cleanup, err := InitializeApplication(ctx, cfg, LoggingConfig{Logger: a.logger})
	if err != nil {
		return err
	}
	defer cleanup()
	return application.Run()
}
