package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/ai-platform/app"
	"github.com/upb/ai-platform/config"
	"github.com/upb/ai-platform/utils"
	"go.uber.org/zap/zaptest"
)

func TestRouterRoutes(t *testing.T) {
	type forwarded struct {
		body      string
		requestID string
	}
	seen := make(chan forwarded, 8)
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		seen <- forwarded{body: string(body), requestID: r.Header.Get("X-Request-ID")}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cmpl-1","choices":[]}`))
	}))
	defer backend.Close()

	cfg := testConfig(config.ServiceRouter)
	cfg.Router.Routes = map[string]string{
		"planner": backend.URL,
		"code":    backend.URL,
	}
	cfg.Router.MaxBodyBytes = 1024

	ts := httptest.NewServer(RouterRoutes(newDeps(t, cfg)))
	defer ts.Close()

	t.Run("chat completion forwarded verbatim", func(t *testing.T) {
		body := `{"model":"code","messages":[{"role":"user","content":"hi"}]}`
		req, err := http.NewRequest(http.MethodPost, ts.URL+"/v1/chat/completions", strings.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("X-Request-ID", "trace-me")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		respBody, _ := io.ReadAll(resp.Body)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, `{"id":"cmpl-1","choices":[]}`, string(respBody))
		assert.Equal(t, "trace-me", resp.Header.Get("X-Request-ID"))
		assert.Equal(t, "code", resp.Header.Get("X-Router-Role"))
		got := <-seen
		assert.Equal(t, body, got.body)
		assert.Equal(t, "trace-me", got.requestID)
	})

	t.Run("unknown role", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/v1/chat/completions", "application/json", strings.NewReader(`{"model":"vision"}`))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var body utils.ErrorResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "unknown_role", body.Error)
	})

	t.Run("body too large", func(t *testing.T) {
		big := `{"messages":"` + strings.Repeat("a", 2048) + `"}`
		resp, err := http.Post(ts.URL+"/v1/chat/completions", "application/json", strings.NewReader(big))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	})

	t.Run("list models", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/v1/models")
		require.NoError(t, err)
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `{"object":"list","data":[
			{"id":"code","object":"model","owned_by":"ai-platform"},
			{"id":"planner","object":"model","owned_by":"ai-platform"}
		]}`, string(body))
	})

	t.Run("health endpoints", func(t *testing.T) {
		for path, want := range map[string]string{
			"/healthz": `{"status":"ok"}`,
			"/readyz":  `{"ready":true}`,
		} {
			resp, err := http.Get(ts.URL + path)
			require.NoError(t, err)
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()

			assert.Equal(t, http.StatusOK, resp.StatusCode, path)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"), path)
			assert.JSONEq(t, want, string(body), path)
		}
	})

	t.Run("prometheus metrics", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), `test_router_requests_total{outcome="success",role="code"}`)
		assert.Contains(t, string(body), `test_http_requests_total{method="POST",route="/v1/chat/completions"`)
	})

	t.Run("not found", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/v1/embeddings")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		var body utils.ErrorResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "not_found", body.Error)
	})

	t.Run("method not allowed", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/v1/chat/completions")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}

func TestRouterRoutes_UpstreamFailure(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"model loading"}`))
	}))
	defer backend.Close()

	cfg := testConfig(config.ServiceRouter)
	cfg.Router.Routes = map[string]string{"planner": backend.URL}

	ts := httptest.NewServer(RouterRoutes(newDeps(t, cfg)))
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/chat/completions", "application/json", bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var body utils.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "upstream_error", body.Error)
	assert.Equal(t, "planner", body.Details["role"])
	assert.Equal(t, map[string]interface{}{"error": "model loading"}, body.Details["upstream_body"])
}

func TestAgentRoutes(t *testing.T) {
	prom := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("query") == "bad(" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"status":"error","error":"parse error"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"success","data":{"resultType":"vector","result":[]}}`))
	}))
	defer prom.Close()

	loki := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success","data":{"limit":"` + r.URL.Query().Get("limit") + `"}}`))
	}))
	defer loki.Close()

	cfg := testConfig(config.ServiceAgent)
	cfg.Backends.PrometheusURL = prom.URL
	cfg.Backends.LokiURL = loki.URL

	ts := httptest.NewServer(AgentRoutes(newDeps(t, cfg)))
	defer ts.Close()

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{"health", "/health", http.StatusOK, `{"status":"ok"}`},
		{"ready", "/ready", http.StatusOK, `{"ready":true}`},
		{"version", "/version", http.StatusOK, `{"name":"observability-agent","version":"test"}`},
		{"metrics query", "/metrics/query?q=up", http.StatusOK, `{"status":"success","data":{"resultType":"vector","result":[]}}`},
		{"logs query default limit", "/logs/query?q=%7Bapp%3D%22router%22%7D", http.StatusOK, `{"status":"success","data":{"limit":"100"}}`},
		{"logs query limit", "/logs/query?q=%7Bapp%3D%22router%22%7D&limit=7", http.StatusOK, `{"status":"success","data":{"limit":"7"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(ts.URL + tt.path)
			require.NoError(t, err)
			defer resp.Body.Close()

			body, _ := io.ReadAll(resp.Body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.JSONEq(t, tt.wantBody, string(body))
		})
	}

	t.Run("missing q", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/metrics/query")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("backend error", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/metrics/query?q=bad(")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
		var body utils.ErrorResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "query_failed", body.Error)
	})

	t.Run("CORS preflight", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodOptions, ts.URL+"/metrics/query", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", "https://grafana.example.com")
		req.Header.Set("Access-Control-Request-Method", "GET")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "https://grafana.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	})

	t.Run("CORS rejects localhost outside development", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodOptions, ts.URL+"/metrics/query", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Access-Control-Request-Method", "GET")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
	})
}

func TestAgentRoutes_BackendsNotConfigured(t *testing.T) {
	cfg := testConfig(config.ServiceAgent)
	cfg.Backends.PrometheusURL = ""
	cfg.Backends.LokiURL = ""

	ts := httptest.NewServer(AgentRoutes(newDeps(t, cfg)))
	defer ts.Close()

	for _, path := range []string{"/metrics/query?q=up", "/logs/query?q=x"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode, path)
	}

	// Liveness does not depend on backends.
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// Test helpers

func newDeps(t *testing.T, cfg *config.Config) *app.Dependencies {
	t.Helper()
	deps, err := app.NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	return deps
}

func testConfig(service config.Service) *config.Config {
	return &config.Config{
		Service:     service,
		Environment: "test",
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            8000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    90 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Router: config.RouterConfig{
			Routes:            map[string]string{"planner": "http://127.0.0.1:1"},
			DefaultRole:       config.DefaultRole,
			UnknownRolePolicy: config.UnknownRoleReject,
			UpstreamTimeout:   10 * time.Second,
			MaxBodyBytes:      1 << 20,
		},
		Backends: config.BackendsConfig{
			QueryTimeout: 5 * time.Second,
			DefaultLimit: 100,
		},
		Observability: config.ObservabilityConfig{
			ServiceName:      string(service),
			ServiceVersion:   "test",
			LogLevel:         "error",
			LogFormat:        "json",
			MetricsEnabled:   true,
			MetricsNamespace: "test",
		},
	}
}
