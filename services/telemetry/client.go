package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/api"
	"github.com/upb/ai-platform/internal/observability"
	"github.com/upb/ai-platform/services"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Backend names, used in error details and metric labels.
const (
	BackendPrometheus = "prometheus"
	BackendLoki       = "loki"
)

const (
	prometheusQueryPath = "/api/v1/query"
	lokiQueryRangePath  = "/loki/api/v1/query_range"

	// DefaultTimeout bounds each backend query.
	DefaultTimeout = 5 * time.Second

	// DefaultLogLimit is used when the caller does not pass a limit.
	DefaultLogLimit = 100

	maxErrorBody = 512
)

// ErrNotConfigured is the cause attached when a backend has no base URL.
var ErrNotConfigured = errors.New("backend base URL is not configured")

// Config holds configuration for the query client
type Config struct {
	PrometheusURL string
	LokiURL       string
	Timeout       time.Duration
	HTTPClient    *http.Client
}

// Client issues pass-through queries against Prometheus and Loki.
// It is safe for concurrent use.
type Client struct {
	prometheus api.Client
	loki       *url.URL
	httpClient *http.Client
	timeout    time.Duration
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewClient builds a query client. An empty base URL is accepted; queries
// against that backend fail with a query failed error.
func NewClient(cfg Config, logger *zap.Logger, metrics *observability.Metrics) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	noRedirect := *httpClient
	noRedirect.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	httpClient = &noRedirect

	c := &Client{
		httpClient: httpClient,
		timeout:    cfg.Timeout,
		logger:     logger.With(zap.String("component", "query_client")),
		metrics:    metrics,
	}

	if raw := strings.TrimRight(cfg.PrometheusURL, "/"); raw != "" {
		prom, err := api.NewClient(api.Config{Address: raw, Client: httpClient})
		if err != nil {
			return nil, fmt.Errorf("prometheus client: %w", err)
		}
		c.prometheus = prom
	}

	if raw := strings.TrimRight(cfg.LokiURL, "/"); raw != "" {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("loki base url: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("loki base url %q is not absolute", raw)
		}
		c.loki = u
	}

	return c, nil
}

// QueryMetrics runs a Prometheus instant query and returns the response
// body unchanged.
func (c *Client) QueryMetrics(ctx context.Context, query string) (json.RawMessage, error) {
	if c.prometheus == nil {
		return nil, c.fail(BackendPrometheus, time.Now(), ErrNotConfigured)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.prometheus.URL(prometheusQueryPath, nil)
	u.RawQuery = url.Values{"query": {query}}.Encode()

	ctx, span := c.startSpan(ctx, BackendPrometheus, u)
	defer span.End()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, c.failSpan(span, BackendPrometheus, start, err)
	}
	req.Header.Set("Accept", "application/json")
	observability.InjectHeaders(ctx, req.Header)

	resp, body, err := c.prometheus.Do(ctx, req)
	if err != nil {
		return nil, c.failSpan(span, BackendPrometheus, start, err)
	}

	result, err := decode(resp.StatusCode, body)
	if err != nil {
		return nil, c.failSpan(span, BackendPrometheus, start, err)
	}

	c.metrics.RecordQuery(BackendPrometheus, observability.OutcomeSuccess, time.Since(start))
	return result, nil
}

// QueryLogs runs a Loki range query with the given entry limit and returns
// the response body unchanged.
func (c *Client) QueryLogs(ctx context.Context, query string, limit int) (json.RawMessage, error) {
	if c.loki == nil {
		return nil, c.fail(BackendLoki, time.Now(), ErrNotConfigured)
	}
	if limit <= 0 {
		limit = DefaultLogLimit
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.loki.JoinPath(lokiQueryRangePath)
	u.RawQuery = url.Values{
		"query": {query},
		"limit": {strconv.Itoa(limit)},
	}.Encode()

	ctx, span := c.startSpan(ctx, BackendLoki, u)
	defer span.End()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, c.failSpan(span, BackendLoki, start, err)
	}
	req.Header.Set("Accept", "application/json")
	observability.InjectHeaders(ctx, req.Header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.failSpan(span, BackendLoki, start, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.failSpan(span, BackendLoki, start, err)
	}

	result, err := decode(resp.StatusCode, body)
	if err != nil {
		return nil, c.failSpan(span, BackendLoki, start, err)
	}

	c.metrics.RecordQuery(BackendLoki, observability.OutcomeSuccess, time.Since(start))
	return result, nil
}

func (c *Client) startSpan(ctx context.Context, backend string, u *url.URL) (context.Context, trace.Span) {
	return observability.Tracer().Start(ctx, backend+" query",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("query.backend", backend),
			attribute.String("server.address", u.Hostname()),
			attribute.String("url.path", u.Path),
		),
	)
}

func (c *Client) failSpan(span trace.Span, backend string, start time.Time, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, "query failed")
	return c.fail(backend, start, err)
}

func (c *Client) fail(backend string, start time.Time, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("no response within %s: %w", c.timeout, err)
	}
	c.metrics.RecordQuery(backend, observability.OutcomeFailed, time.Since(start))
	c.logger.Warn("query failed",
		zap.String("backend", backend),
		zap.Error(err))
	return services.NewQueryFailedError(backend, err)
}

// decode accepts only 2xx JSON bodies.
func decode(status int, body []byte) (json.RawMessage, error) {
	if status < 200 || status > 299 {
		return nil, fmt.Errorf("backend returned status %d: %s", status, truncate(body))
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("backend returned invalid JSON: %s", truncate(body))
	}
	return json.RawMessage(body), nil
}

func truncate(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}
