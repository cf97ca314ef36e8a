package telemetry

import (
	"context"

	"github.com/robalyx/warden/internal/setup/config"
	"github.com/uptrace/uptrace-go/uptrace"
)

// TracingShutdown flushes and stops the trace exporter.
type TracingShutdown func(ctx context.Context) error

// SetupTracing configures the global OpenTelemetry providers to export to Uptrace.
// It is a no-op returning a no-op shutdown when no DSN is configured.
func SetupTracing(serviceType ServiceType, cfg *config.Telemetry) TracingShutdown {
	if cfg.UptraceDSN == "" {
		return func(context.Context) error { return nil }
	}

	opts := []uptrace.Option{
		uptrace.WithDSN(cfg.UptraceDSN),
		uptrace.WithServiceName("warden-" + serviceType.String()),
	}
	if cfg.Environment != "" {
		opts = append(opts, uptrace.WithDeploymentEnvironment(cfg.Environment))
	}

	uptrace.ConfigureOpentelemetry(opts...)

	return uptrace.Shutdown
}
