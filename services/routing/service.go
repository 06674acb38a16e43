package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/upb/ai-platform/internal/observability"
	"github.com/upb/ai-platform/services"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	// RoleField is the request body field that selects the backend.
	RoleField = "model"

	// ChatCompletionsPath is appended to the backend base URL.
	ChatCompletionsPath = "/v1/chat/completions"

	requestIDHeader = "X-Request-ID"

	// Metric label for roles that are not in the table, to keep
	// caller-controlled values out of label sets.
	unknownRoleLabel = "unknown"
	noRoleLabel      = "none"
)

// UnknownRolePolicy decides what happens to a role that is not in the table.
type UnknownRolePolicy string

const (
	// PolicyReject fails the request with an unknown role error.
	PolicyReject UnknownRolePolicy = "reject"

	// PolicyFallback forwards the request to the default role's backend.
	PolicyFallback UnknownRolePolicy = "fallback"
)

// Config holds configuration for the routing service
type Config struct {
	// UnknownRolePolicy defaults to PolicyReject.
	UnknownRolePolicy UnknownRolePolicy

	// UpstreamTimeout bounds the whole backend exchange, body included.
	UpstreamTimeout time.Duration

	// HTTPClient is used for backend calls. Its own Timeout is not relied on.
	HTTPClient *http.Client
}

// Request is one inbound chat completion.
type Request struct {
	// Body is forwarded to the backend byte for byte.
	Body []byte

	// RequestID is passed on as X-Request-ID when set.
	RequestID string
}

// Response is the backend's successful answer.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
	Role        string
	Backend     string
}

// Model is one entry of the OpenAI-compatible model listing.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
}

// Service forwards chat completions to the backend selected by the request's
// role. It holds no per-request state and is safe for concurrent use.
type Service struct {
	table   *Table
	config  Config
	client  *http.Client
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewService creates a new routing service
func NewService(table *Table, config Config, logger *zap.Logger, metrics *observability.Metrics) *Service {
	if config.UnknownRolePolicy == "" {
		config.UnknownRolePolicy = PolicyReject
	}
	if config.UpstreamTimeout <= 0 {
		config.UpstreamTimeout = 300 * time.Second
	}

	client := config.HTTPClient
	if client == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.MaxIdleConnsPerHost = 32
		client = &http.Client{Transport: transport}
	}
	// A redirect is a backend answer like any other non-2xx status.
	noRedirect := *client
	noRedirect.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	client = &noRedirect

	return &Service{
		table:   table,
		config:  config,
		client:  client,
		logger:  logger.With(zap.String("component", "router")),
		metrics: metrics,
	}
}

// Route selects the backend for req and forwards the body unchanged.
// It makes exactly one backend call and never retries.
func (s *Service) Route(ctx context.Context, req *Request) (*Response, error) {
	logger := s.logger
	if req.RequestID != "" {
		logger = logger.With(zap.String("request_id", req.RequestID))
	}

	role, err := s.selectRole(req.Body)
	if err != nil {
		label := noRoleLabel
		if services.IsUnknownRoleError(err) {
			label = unknownRoleLabel
		}
		s.metrics.RecordRoute(label, outcomeOf(err), 0)
		logger.Warn("rejected chat completion", zap.Error(err))
		return nil, err
	}

	role, backend, err := s.resolve(role, logger)
	if err != nil {
		s.metrics.RecordRoute(unknownRoleLabel, outcomeOf(err), 0)
		logger.Warn("rejected chat completion", zap.Error(err))
		return nil, err
	}

	logger = logger.With(zap.String("role", role), zap.String("backend", backend.String()))
	logger.Debug("forwarding chat completion")

	start := time.Now()
	resp, err := s.forward(ctx, role, backend, req)
	elapsed := time.Since(start)
	s.metrics.RecordRoute(role, outcomeOf(err), elapsed)

	if err != nil {
		logger.Warn("chat completion failed",
			zap.Duration("duration", elapsed),
			zap.Error(err))
		return nil, err
	}

	logger.Info("chat completion forwarded",
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(resp.Body)),
		zap.Duration("duration", elapsed))
	return resp, nil
}

// selectRole reads the role selector. An absent or null field selects the
// default role; any other non-string value is an unknown role.
func (s *Service) selectRole(body []byte) (string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return "", services.NewInvalidRequestError("request body must be a JSON object", err)
	}
	if fields == nil {
		return "", services.NewInvalidRequestError("request body must be a JSON object", nil)
	}

	raw, ok := fields[RoleField]
	if !ok || bytes.Equal(raw, []byte("null")) {
		return s.table.DefaultRole(), nil
	}

	var role string
	if err := json.Unmarshal(raw, &role); err != nil {
		return "", services.NewUnknownRoleError(string(raw))
	}
	return role, nil
}

// resolve maps role to a backend, applying the unknown-role policy.
func (s *Service) resolve(role string, logger *zap.Logger) (string, *url.URL, error) {
	if backend, ok := s.table.Resolve(role); ok {
		return role, backend, nil
	}

	if s.config.UnknownRolePolicy != PolicyFallback {
		return role, nil, services.NewUnknownRoleError(role)
	}

	fallback := s.table.DefaultRole()
	logger.Warn("unknown role, using default role",
		zap.String("requested_role", role),
		zap.String("default_role", fallback))
	backend, _ := s.table.Resolve(fallback)
	return fallback, backend, nil
}

func (s *Service) forward(ctx context.Context, role string, backend *url.URL, req *Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.UpstreamTimeout)
	defer cancel()

	target := backend.JoinPath(ChatCompletionsPath)

	ctx, span := observability.Tracer().Start(ctx, "POST "+ChatCompletionsPath,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("router.role", role),
			semconv.HTTPRequestMethodKey.String(http.MethodPost),
			semconv.ServerAddress(backend.Hostname()),
			semconv.URLFull(target.String()),
		),
	)
	defer span.End()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(req.Body))
	if err != nil {
		span.SetStatus(codes.Error, "build request")
		return nil, services.WrapInternal("failed to build upstream request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if req.RequestID != "" {
		httpReq.Header.Set(requestIDHeader, req.RequestID)
	}
	observability.InjectHeaders(ctx, httpReq.Header)

	httpResp, err := s.client.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upstream unavailable")
		return nil, services.NewUpstreamUnavailableError(role, backend.String(), s.describe(err))
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upstream body")
		return nil, services.NewUpstreamUnavailableError(role, backend.String(), s.describe(err))
	}

	span.SetAttributes(attribute.Int("http.response.status_code", httpResp.StatusCode))

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		span.SetStatus(codes.Error, http.StatusText(httpResp.StatusCode))
		return nil, services.NewUpstreamError(role, backend.String(), httpResp.StatusCode, upstreamBody(body))
	}

	return &Response{
		StatusCode:  httpResp.StatusCode,
		ContentType: httpResp.Header.Get("Content-Type"),
		Body:        body,
		Role:        role,
		Backend:     backend.String(),
	}, nil
}

// describe annotates deadline errors with the configured timeout.
func (s *Service) describe(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("no response within %s: %w", s.config.UpstreamTimeout, err)
	}
	return err
}

// Models lists the configured roles as OpenAI-compatible models.
func (s *Service) Models() []Model {
	roles := s.table.Roles()
	models := make([]Model, 0, len(roles))
	for _, role := range roles {
		models = append(models, Model{ID: role, Object: "model", OwnedBy: "ai-platform"})
	}
	return models
}

// DefaultRole returns the role used for requests without a role selector.
func (s *Service) DefaultRole() string {
	return s.table.DefaultRole()
}

// upstreamBody keeps JSON error bodies structured and everything else as text.
func upstreamBody(body []byte) interface{} {
	if len(body) > 0 && json.Valid(body) {
		return json.RawMessage(body)
	}
	return string(body)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return observability.OutcomeSuccess
	case services.IsValidationError(err):
		return observability.OutcomeInvalidRequest
	case services.IsUnknownRoleError(err):
		return observability.OutcomeUnknownRole
	case services.IsUpstreamUnavailableError(err):
		return observability.OutcomeUpstreamUnavailable
	case services.IsUpstreamError(err):
		return observability.OutcomeUpstreamError
	default:
		return observability.OutcomeFailed
	}
}
