package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/upb/ai-platform/middleware"
	"github.com/upb/ai-platform/services/routing"
	"github.com/upb/ai-platform/utils"
	"go.uber.org/zap"
)

// RoleHeader names the role that served a chat completion.
const RoleHeader = "X-Router-Role"

// DefaultMaxBodyBytes caps inbound chat completion bodies.
const DefaultMaxBodyBytes int64 = 10 << 20

// ChatRouter defines the routing operations used by the router handler
type ChatRouter interface {
	// Route forwards one chat completion to the backend for its role
	Route(ctx context.Context, req *routing.Request) (*routing.Response, error)

	// Models lists the configured roles
	Models() []routing.Model
}

// ModelList is the OpenAI-compatible response for GET /v1/models
type ModelList struct {
	Object string          `json:"object"`
	Data   []routing.Model `json:"data"`
}

// RouterHandler handles model router HTTP requests
type RouterHandler struct {
	router       ChatRouter
	maxBodyBytes int64
	logger       *zap.Logger
}

// NewRouterHandler creates a new RouterHandler
func NewRouterHandler(router ChatRouter, maxBodyBytes int64, logger *zap.Logger) *RouterHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &RouterHandler{
		router:       router,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

// HandleChatCompletion handles POST /v1/chat/completions
func (h *RouterHandler) HandleChatCompletion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)
	logger := middleware.LoggerFromContext(ctx, h.logger)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.Warn("request body too large", zap.Int64("limit", tooLarge.Limit))
			if err := utils.WriteRequestTooLarge(w, fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit)); err != nil {
				logger.Warn("failed to write error response", zap.Error(err))
			}
			return
		}
		logger.Warn("failed to read request body", zap.Error(err))
		if err := utils.WriteBadRequest(w, "Failed to read request body", nil); err != nil {
			logger.Warn("failed to write error response", zap.Error(err))
		}
		return
	}

	resp, err := h.router.Route(ctx, &routing.Request{
		Body:      body,
		RequestID: requestID,
	})
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	w.Header().Set(RoleHeader, resp.Role)
	if err := utils.WriteRaw(w, resp.StatusCode, resp.ContentType, resp.Body); err != nil {
		logger.Warn("failed to write chat completion response", zap.Error(err))
	}
}

// HandleListModels handles GET /v1/models
func (h *RouterHandler) HandleListModels(w http.ResponseWriter, r *http.Request) {
	resp := ModelList{
		Object: "list",
		Data:   h.router.Models(),
	}
	if err := utils.WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("failed to write models response", zap.Error(err))
	}
}
