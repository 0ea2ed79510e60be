package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"zend/internal/domain"
	"zend/internal/infra/adapter"
	"zend/internal/infra/catalog"
	"zend/internal/infra/registry"
)

// ValidateConfig validates the configuration at the provided path. It builds
// the registry and every adapter so that overlapping tools and unknown adapter
// names are reported without starting any listener.
func (a *App) ValidateConfig(ctx context.Context, cfg ValidateConfig) error {
	logger := NewLogger(NewLogging(LoggingConfig{Logger: a.logger}))

	reg, err := a.loadRegistry(ctx, cfg.ConfigPath, logger)
	if err != nil {
		return err
	}
	if _, err := adapter.DefaultSet().Build(reg.Services()); err != nil {
		return fmt.Errorf("build adapters: %w", err)
	}

	logger.Info("configuration validated",
		zap.String("config", cfg.ConfigPath),
		zap.Int("services", len(reg.Services())),
		zap.Int("tools", len(reg.Tools())),
	)
	return nil
}

// ResolveTool reports which service a tool name routes to.
func (a *App) ResolveTool(ctx context.Context, cfg ValidateConfig, tool string) (domain.ServiceDescriptor, error) {
	reg, err := a.loadRegistry(ctx, cfg.ConfigPath, a.logger)
	if err != nil {
		return domain.ServiceDescriptor{}, err
	}
	return reg.Resolve(tool)
}

// ListTools returns every declared tool in registration order.
func (a *App) ListTools(ctx context.Context, cfg ValidateConfig) ([]domain.ToolDescriptor, error) {
	reg, err := a.loadRegistry(ctx, cfg.ConfigPath, a.logger)
	if err != nil {
		return nil, err
	}
	return reg.Tools(), nil
}

func (a *App) loadRegistry(ctx context.Context, path string, logger *zap.Logger) (*registry.Registry, error) {
	loaded, err := catalog.NewLoader(logger).Load(ctx, path)
	if err != nil {
		return nil, err
	}
	return registry.New(loaded.Services)
}
