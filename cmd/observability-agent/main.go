// Command observability-agent exposes health endpoints and proxies PromQL
// and LogQL queries to the cluster's Prometheus and Loki.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/upb/ai-platform/app"
	"github.com/upb/ai-platform/config"
	"github.com/upb/ai-platform/routes"
	"go.uber.org/zap"
)

func main() {
	logger, err := app.InitLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, config.ServiceAgent, routes.AgentRoutes, logger); err != nil {
		logger.Error("observability agent exited", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}
