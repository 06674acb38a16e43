package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Service selects which binary the configuration is loaded for.
type Service string

const (
	ServiceRouter Service = "model-router"
	ServiceAgent  Service = "observability-agent"
)

// Unknown-role policies.
const (
	UnknownRoleReject   = "reject"
	UnknownRoleFallback = "fallback"
)

// DefaultRole is used when a request carries no model field.
const DefaultRole = "planner"

// DefaultUpstreamTimeout bounds a single forwarded chat completion.
const DefaultUpstreamTimeout = 300 * time.Second

// DefaultRoutes are the in-cluster vLLM services.
var DefaultRoutes = map[string]string{
	"planner":   "http://vllm-llama3.ai-platform.svc.cluster.local:8000",
	"code":      "http://vllm-mixtral.ai-platform.svc.cluster.local:8000",
	"embedding": "http://vllm-bge-embeddings.ai-platform.svc.cluster.local:8000",
}

// Config represents the complete application configuration
type Config struct {
	Service       Service
	Server        ServerConfig
	Router        RouterConfig
	Backends      BackendsConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int           `validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `validate:"gte=0"`
	WriteTimeout    time.Duration `validate:"gte=0"`
	ShutdownTimeout time.Duration `validate:"gt=0"`
}

// RouterConfig holds the model router's route table and forwarding limits
type RouterConfig struct {
	RoutesFile        string
	Routes            map[string]string `validate:"required,min=1,dive,keys,required,endkeys,required,url"`
	DefaultRole       string            `validate:"required"`
	UnknownRolePolicy string            `validate:"oneof=reject fallback"`
	UpstreamTimeout   time.Duration     `validate:"gt=0"`
	MaxBodyBytes      int64             `validate:"gt=0"`
}

// BackendsConfig holds the observability agent's query backends.
// Empty URLs are allowed; queries against them fail at request time.
type BackendsConfig struct {
	PrometheusURL string        `validate:"omitempty,url"`
	LokiURL       string        `validate:"omitempty,url"`
	QueryTimeout  time.Duration `validate:"gt=0"`
	DefaultLimit  int           `validate:"gt=0"`
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	ServiceName       string
	ServiceVersion    string
	LogLevel          string `validate:"required,oneof=debug info warn error"`
	LogFormat         string `validate:"oneof=json console text"`
	MetricsEnabled    bool
	MetricsNamespace  string
	TracingEnabled    bool
	TracingEndpoint   string  `validate:"required_if=TracingEnabled true"`
	TracingSampleRate float64 `validate:"gte=0,lte=1"`
}

// routesFile is the on-disk shape of ROUTER_ROUTES_FILE.
type routesFile struct {
	DefaultRole string            `yaml:"default_role"`
	UnknownRole string            `yaml:"unknown_role"`
	Routes      map[string]string `yaml:"routes"`
}

var validate = validator.New()

// New creates a new Config instance for the given service by loading environment variables
func New(ctx context.Context, service Service) (*Config, error) {
	_ = godotenv.Load(".env")

	if err := checkDurations(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	defaultPort := 8000
	if service == ServiceAgent {
		defaultPort = 8080
	}

	upstreamTimeout := getEnvAsDuration("ROUTER_UPSTREAM_TIMEOUT", DefaultUpstreamTimeout)

	// The router's write deadline must outlive the slowest upstream call.
	defaultWriteTimeout := 30 * time.Second
	if service == ServiceRouter {
		defaultWriteTimeout = upstreamTimeout + 30*time.Second
	}

	cfg := &Config{
		Service:     service,
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(defaultPort),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Router: RouterConfig{
			RoutesFile:        getEnv("ROUTER_ROUTES_FILE", ""),
			Routes:            copyRoutes(DefaultRoutes),
			DefaultRole:       DefaultRole,
			UnknownRolePolicy: UnknownRoleReject,
			UpstreamTimeout:   upstreamTimeout,
			MaxBodyBytes:      getEnvAsInt64("ROUTER_MAX_BODY_BYTES", 10<<20),
		},
		Backends: BackendsConfig{
			PrometheusURL: strings.TrimRight(getEnv("PROMETHEUS_BASE_URL", ""), "/"),
			LokiURL:       strings.TrimRight(getEnv("LOKI_BASE_URL", ""), "/"),
			QueryTimeout:  getEnvAsDuration("QUERY_TIMEOUT", 5*time.Second),
			DefaultLimit:  getEnvAsInt("LOGS_DEFAULT_LIMIT", 100),
		},
		Observability: ObservabilityConfig{
			ServiceName:       getEnv("SERVICE_NAME", string(service)),
			ServiceVersion:    getEnv("APP_VERSION", "0.0.0"),
			LogLevel:          getEnv("LOG_LEVEL", "info"),
			LogFormat:         getEnv("LOG_FORMAT", "json"),
			MetricsEnabled:    getEnvAsBool("METRICS_ENABLED", true),
			MetricsNamespace:  getEnv("METRICS_NAMESPACE", "ai_platform"),
			TracingEnabled:    getEnvAsBool("TRACING_ENABLED", false),
			TracingEndpoint:   getEnv("TRACING_ENDPOINT", ""),
			TracingSampleRate: getEnvAsFloat("TRACING_SAMPLE_RATE", 0.1),
		},
	}

	if service == ServiceRouter {
		if err := cfg.Router.load(); err != nil {
			return nil, fmt.Errorf("failed to load route table: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// load applies the routes file and then the ROUTER_* overrides. Each routes
// source replaces the table wholesale.
func (r *RouterConfig) load() error {
	if r.RoutesFile != "" {
		data, err := os.ReadFile(r.RoutesFile)
		if err != nil {
			return fmt.Errorf("read routes file: %w", err)
		}
		var file routesFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return fmt.Errorf("parse routes file %s: %w", r.RoutesFile, err)
		}
		if len(file.Routes) > 0 {
			r.Routes = copyRoutes(file.Routes)
		}
		if file.DefaultRole != "" {
			r.DefaultRole = file.DefaultRole
		}
		if file.UnknownRole != "" {
			r.UnknownRolePolicy = file.UnknownRole
		}
	}

	if raw := os.Getenv("ROUTER_ROUTES"); raw != "" {
		routes, err := ParseRoutes(raw)
		if err != nil {
			return err
		}
		r.Routes = routes
	}

	r.DefaultRole = getEnv("ROUTER_DEFAULT_ROLE", r.DefaultRole)
	r.UnknownRolePolicy = getEnv("ROUTER_UNKNOWN_ROLE_POLICY", r.UnknownRolePolicy)
	return nil
}

// ParseRoutes parses "role=url,role=url" into a route map.
func ParseRoutes(raw string) (map[string]string, error) {
	routes := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		role, backend, ok := strings.Cut(entry, "=")
		role, backend = strings.TrimSpace(role), strings.TrimSpace(backend)
		if !ok || role == "" || backend == "" {
			return nil, fmt.Errorf("invalid route entry %q, want role=url", entry)
		}
		if _, dup := routes[role]; dup {
			return nil, fmt.Errorf("duplicate route for role %q", role)
		}
		routes[role] = backend
	}
	if len(routes) == 0 {
		return nil, fmt.Errorf("no routes in %q", raw)
	}
	return routes, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if err := validate.Struct(c.Server); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := validate.Struct(c.Observability); err != nil {
		return fmt.Errorf("observability: %w", err)
	}

	switch c.Service {
	case ServiceRouter:
		return c.validateRouter()
	case ServiceAgent:
		if err := validate.Struct(c.Backends); err != nil {
			return fmt.Errorf("backends: %w", err)
		}
	default:
		return fmt.Errorf("unknown service %q", c.Service)
	}
	return nil
}

func (c *Config) validateRouter() error {
	if err := validate.Struct(c.Router); err != nil {
		return fmt.Errorf("router: %w", err)
	}
	if _, ok := c.Router.Routes[c.Router.DefaultRole]; !ok {
		return fmt.Errorf("default role %q has no route", c.Router.DefaultRole)
	}
	if c.Server.WriteTimeout != 0 && c.Server.WriteTimeout <= c.Router.UpstreamTimeout {
		return fmt.Errorf("server write timeout %s must exceed upstream timeout %s",
			c.Server.WriteTimeout, c.Router.UpstreamTimeout)
	}
	return nil
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// durationKeys are the env vars read with getEnvAsDuration.
var durationKeys = []string{
	"SERVER_READ_TIMEOUT",
	"SERVER_WRITE_TIMEOUT",
	"SERVER_SHUTDOWN_TIMEOUT",
	"ROUTER_UPSTREAM_TIMEOUT",
	"QUERY_TIMEOUT",
}

// checkDurations rejects set but unparsable durations, such as "300" with
// no unit, instead of letting them fall back to defaults.
func checkDurations() error {
	var errs []error
	for _, key := range durationKeys {
		raw := os.Getenv(key)
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

func copyRoutes(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// getPort returns the server port from PORT or SERVER_PORT env vars
func getPort(defaultPort int) int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return defaultPort
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
