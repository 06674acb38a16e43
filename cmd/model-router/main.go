// Command model-router proxies OpenAI-compatible chat completions to the
// vLLM backend registered for the requested model role.
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

	if err := app.Run(ctx, config.ServiceRouter, routes.RouterRoutes, logger); err != nil {
		logger.Error("model router exited", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}
