// Package observability provides structured logging, Prometheus and
// OpenTelemetry metrics, health probes, and graceful shutdown.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("user_id", userID).Info("session created")
//	logger.WithError(err).Error("signing key resolution failed")
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(registry)
//	metrics.ExchangesTotal.WithLabelValues("success").Inc()
//	metrics.RefreshesTotal.WithLabelValues("rejected").Inc()
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "meridian-identity",
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
// Domain instruments for the credential flows live in OTelMetrics;
// request-level HTTP telemetry comes from otelhttp.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient)
//	observability.RegisterHealthRoutes(mux, checker)
//
// # Related Packages
//
//   - pkg/config: observability configuration
//   - pkg/api: request logging and metrics middleware
package observability
