// Package observability provides structured logging, metrics, and tracing
// for the model router and the observability agent.
//
// This package implements:
//   - zap logger construction from LOG_LEVEL / LOG_FORMAT
//   - Prometheus collectors on a private registry, exposed at /metrics
//   - OpenTelemetry tracer setup and W3C trace-context propagation
package observability
