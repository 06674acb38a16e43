package handlers

import (
	"net/http"

	"github.com/upb/ai-platform/utils"
	"go.uber.org/zap"
)

// HealthResponse is the liveness response body
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the readiness response body
type ReadyResponse struct {
	Ready bool `json:"ready"`
}

// VersionResponse reports the running service and its version
type VersionResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	version VersionResponse
	logger  *zap.Logger
}

// NewHealthHandler creates a new HealthHandler for the named service
func NewHealthHandler(name, version string, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		version: VersionResponse{Name: name, Version: version},
		logger:  logger,
	}
}

// HandleHealth always reports ok; it has no backend dependency.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.write(w, HealthResponse{Status: "ok"})
}

// HandleReadiness always reports ready; backends are not probed.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	h.write(w, ReadyResponse{Ready: true})
}

// HandleVersion handles GET /version
func (h *HealthHandler) HandleVersion(w http.ResponseWriter, r *http.Request) {
	h.write(w, h.version)
}

func (h *HealthHandler) write(w http.ResponseWriter, body interface{}) {
	if err := utils.WriteJSON(w, http.StatusOK, body); err != nil {
		h.logger.Warn("failed to write health response", zap.Error(err))
	}
}
