package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/ai-platform/app"
	"github.com/upb/ai-platform/handlers"
	"github.com/upb/ai-platform/middleware"
	"github.com/upb/ai-platform/utils"
	"go.uber.org/zap"
)

// agentTimeout bounds observability agent requests. The router has no such
// middleware; its upstream timeout is enforced per call.
const agentTimeout = 30 * time.Second

// RouterRoutes configures the model router's routes and middleware
func RouterRoutes(deps *app.Dependencies) http.Handler {
	r := newRouter(deps)
	health := newHealthHandler(deps)

	// Health check endpoints
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	router := handlers.NewRouterHandler(deps.Router, deps.Config.Router.MaxBodyBytes, deps.Logger)

	// OpenAI-compatible API
	r.Route("/v1", func(r chi.Router) {
		r.Post("/chat/completions", router.HandleChatCompletion)
		r.Get("/models", router.HandleListModels)
	})

	return r
}

// AgentRoutes configures the observability agent's routes and middleware
func AgentRoutes(deps *app.Dependencies) http.Handler {
	origins := []string{"https://*"}
	if deps.Config.IsDevelopment() {
		origins = append(origins, "http://localhost:*")
	}

	r := newRouter(deps,
		chimw.Timeout(agentTimeout),
		// CORS middleware for browser dashboards
		cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", middleware.RequestIDHeader},
			ExposedHeaders:   []string{middleware.RequestIDHeader},
			AllowCredentials: false,
			MaxAge:           300,
		}),
	)

	health := newHealthHandler(deps)

	// Health check endpoints
	r.Get("/health", health.HandleHealth)
	r.Get("/ready", health.HandleReadiness)

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}
	r.Get("/version", health.HandleVersion)

	queries := handlers.NewQueryHandler(deps.Queries, deps.Config.Backends.DefaultLimit, deps.Logger)

	r.Get("/metrics/query", queries.HandleMetricsQuery)
	r.Get("/logs/query", queries.HandleLogsQuery)

	return r
}

func newHealthHandler(deps *app.Dependencies) *handlers.HealthHandler {
	return handlers.NewHealthHandler(
		deps.Config.Observability.ServiceName,
		deps.Config.Observability.ServiceVersion,
		deps.Logger,
	)
}

// newRouter returns a chi router with the middleware shared by both
// services followed by extra.
func newRouter(deps *app.Dependencies, extra ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Instrument(deps.Metrics))
	r.Use(middleware.AccessLog(deps.Logger))
	r.Use(extra...)

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if err := utils.WriteNotFound(w, "endpoint not found"); err != nil {
			deps.Logger.Warn("failed to write not found response", zap.Error(err))
		}
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		if err := utils.WriteMethodNotAllowed(w, ""); err != nil {
			deps.Logger.Warn("failed to write method not allowed response", zap.Error(err))
		}
	})

	return r
}
