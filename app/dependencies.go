package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/upb/ai-platform/config"
	"github.com/upb/ai-platform/internal/observability"
	"github.com/upb/ai-platform/services/routing"
	"github.com/upb/ai-platform/services/telemetry"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for both binaries; fields that belong to
// the other service stay nil.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics
	Tracing *observability.Providers

	// Model router
	RouteTable *routing.Table
	Router     *routing.Service

	// Observability agent
	Queries *telemetry.Client
}

// NewDependencies creates and wires up the dependencies of cfg.Service.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initObservability(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}

	switch cfg.Service {
	case config.ServiceRouter:
		if err := deps.initRouter(cfg); err != nil {
			_ = deps.Close(ctx)
			return nil, fmt.Errorf("failed to initialize router: %w", err)
		}
	case config.ServiceAgent:
		if err := deps.initQueries(cfg); err != nil {
			_ = deps.Close(ctx)
			return nil, fmt.Errorf("failed to initialize query client: %w", err)
		}
	default:
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("unknown service %q", cfg.Service)
	}

	logger.Info("all dependencies initialized successfully",
		zap.String("service", string(cfg.Service)))
	return deps, nil
}

// initObservability sets up metrics and tracing
func (d *Dependencies) initObservability(cfg *config.Config) error {
	if cfg.Observability.MetricsEnabled {
		d.Metrics = observability.NewMetrics(cfg.Observability.MetricsNamespace)
	}

	providers, err := observability.InitTracing(cfg.Observability, d.Logger)
	if err != nil {
		return err
	}
	d.Tracing = providers
	return nil
}

// initRouter builds the route table and the routing service
func (d *Dependencies) initRouter(cfg *config.Config) error {
	table, err := routing.NewTable(cfg.Router.Routes, cfg.Router.DefaultRole)
	if err != nil {
		return fmt.Errorf("failed to build route table: %w", err)
	}

	d.RouteTable = table
	d.Router = routing.NewService(table, routing.Config{
		UnknownRolePolicy: routing.UnknownRolePolicy(cfg.Router.UnknownRolePolicy),
		UpstreamTimeout:   cfg.Router.UpstreamTimeout,
	}, d.Logger, d.Metrics)

	for _, role := range table.Roles() {
		backend, _ := table.Resolve(role)
		d.Logger.Info("route registered",
			zap.String("role", role),
			zap.String("backend", backend.String()),
			zap.Bool("default", role == table.DefaultRole()))
	}
	d.Logger.Info("route table loaded",
		zap.Int("routes", table.Len()),
		zap.String("unknown_role_policy", cfg.Router.UnknownRolePolicy),
		zap.Duration("upstream_timeout", cfg.Router.UpstreamTimeout))
	return nil
}

// initQueries builds the Prometheus and Loki query client
func (d *Dependencies) initQueries(cfg *config.Config) error {
	client, err := telemetry.NewClient(telemetry.Config{
		PrometheusURL: cfg.Backends.PrometheusURL,
		LokiURL:       cfg.Backends.LokiURL,
		Timeout:       cfg.Backends.QueryTimeout,
	}, d.Logger, d.Metrics)
	if err != nil {
		return err
	}
	d.Queries = client

	if cfg.Backends.PrometheusURL == "" {
		d.Logger.Warn("PROMETHEUS_BASE_URL not set, metric queries will fail")
	}
	if cfg.Backends.LokiURL == "" {
		d.Logger.Warn("LOKI_BASE_URL not set, log queries will fail")
	}
	return nil
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if err := d.Tracing.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to shut down tracing: %w", err))
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	return errors.Join(errs...)
}
