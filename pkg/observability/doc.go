// Package observability provides structured logging, Prometheus metrics,
// health checks, OpenTelemetry setup and graceful shutdown for medtrail.
//
// Logging is JSON via logrus:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("action", "user.create").Info("audit event persisted")
//
// Request-scoped loggers travel in the context; FromContext adds the request
// and user identifiers set by the HTTP middleware.
//
// Metrics are registered against an explicit registerer so tests can use a
// private registry:
//
//	reg := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(reg)
//	metrics.AuditRecordsTotal.WithLabelValues(observability.OutcomeDropped).Inc()
package observability
