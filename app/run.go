package app

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/upb/ai-platform/config"
	"github.com/upb/ai-platform/internal/observability"
	"go.uber.org/zap"
)

// RoutesFunc builds a service's HTTP handler from its dependencies.
type RoutesFunc func(deps *Dependencies) http.Handler

// InitLogger builds the bootstrap logger from LOG_LEVEL and LOG_FORMAT. It
// reports failures that happen before configuration is loaded.
func InitLogger() (*zap.Logger, error) {
	return observability.NewLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
}

// NewLogger builds the service logger from the loaded configuration.
func NewLogger(cfg config.ObservabilityConfig) (*zap.Logger, error) {
	return observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
}

// Run loads configuration for service, wires its dependencies and serves
// until ctx is cancelled. bootstrap logs only until the configured logger
// is built.
func Run(ctx context.Context, service config.Service, routes RoutesFunc, bootstrap *zap.Logger) error {
	cfg, err := config.New(ctx, service)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := NewLogger(cfg.Observability)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	bootstrap.Debug("switching to configured logger",
		zap.String("level", cfg.Observability.LogLevel),
		zap.String("format", cfg.Observability.LogFormat))

	logger.Info("starting service",
		zap.String("service", string(cfg.Service)),
		zap.String("version", cfg.Observability.ServiceVersion),
		zap.String("environment", cfg.Environment),
		zap.String("address", cfg.Server.Address()))

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := deps.Close(shutdownCtx); err != nil {
			logger.Error("failed to close dependencies", zap.Error(err))
		}
	}()

	srv := NewServer(cfg.Server, routes(deps))
	if err := Serve(ctx, srv, cfg.Server.ShutdownTimeout, logger); err != nil {
		return err
	}

	logger.Info("server stopped")
	return nil
}
