package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/upb/ai-platform/middleware"
	"github.com/upb/ai-platform/utils"
	"go.uber.org/zap"
)

// DefaultLogLimit is used when /logs/query has no limit parameter.
const DefaultLogLimit = 100

// Querier defines the observability queries used by the query handler
type Querier interface {
	// QueryMetrics runs a PromQL instant query
	QueryMetrics(ctx context.Context, query string) (json.RawMessage, error)

	// QueryLogs runs a LogQL range query returning at most limit entries
	QueryLogs(ctx context.Context, query string, limit int) (json.RawMessage, error)
}

// MetricsQueryParams are the query parameters of GET /metrics/query
type MetricsQueryParams struct {
	Q string `query:"q" validate:"required"`
}

// LogsQueryParams are the query parameters of GET /logs/query
type LogsQueryParams struct {
	Q     string `query:"q" validate:"required"`
	Limit int    `query:"limit" validate:"gte=1"`
}

// QueryHandler handles observability query HTTP requests
type QueryHandler struct {
	querier      Querier
	defaultLimit int
	logger       *zap.Logger
}

// NewQueryHandler creates a new QueryHandler
func NewQueryHandler(querier Querier, defaultLimit int, logger *zap.Logger) *QueryHandler {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLogLimit
	}
	return &QueryHandler{
		querier:      querier,
		defaultLimit: defaultLimit,
		logger:       logger,
	}
}

// HandleMetricsQuery handles GET /metrics/query
func (h *QueryHandler) HandleMetricsQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.LoggerFromContext(ctx, h.logger)

	params := MetricsQueryParams{Q: r.URL.Query().Get("q")}
	if err := utils.ValidateStruct(&params); err != nil {
		HandleValidationError(w, err, logger)
		return
	}

	result, err := h.querier.QueryMetrics(ctx, params.Q)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	h.writeResult(w, result, logger)
}

// HandleLogsQuery handles GET /logs/query
func (h *QueryHandler) HandleLogsQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.LoggerFromContext(ctx, h.logger)

	params, err := parseLogsQuery(r, h.defaultLimit)
	if err != nil {
		HandleValidationError(w, err, logger)
		return
	}

	result, err := h.querier.QueryLogs(ctx, params.Q, params.Limit)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	h.writeResult(w, result, logger)
}

func parseLogsQuery(r *http.Request, defaultLimit int) (*LogsQueryParams, error) {
	query := r.URL.Query()
	params := &LogsQueryParams{
		Q:     query.Get("q"),
		Limit: defaultLimit,
	}

	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return nil, utils.NewFieldError("limit", "limit must be an integer")
		}
		params.Limit = limit
	}

	if err := utils.ValidateStruct(params); err != nil {
		return nil, err
	}
	return params, nil
}

func (h *QueryHandler) writeResult(w http.ResponseWriter, result json.RawMessage, logger *zap.Logger) {
	if err := utils.WriteRaw(w, http.StatusOK, "application/json", result); err != nil {
		logger.Warn("failed to write query response", zap.Error(err))
	}
}
