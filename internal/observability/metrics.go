// Package observability wires OpenTelemetry tracing and Prometheus-scraped metrics for the
// controller and worker processes.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitMetrics installs the global meter provider for serviceName, read by a Prometheus
// exporter. It returns the /metrics handler and a shutdown function for exit.
func InitMetrics(serviceName string) (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	res, err := serviceResource(context.Background(), serviceName)
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(provider)

	return promhttp.Handler(), provider.Shutdown, nil
}

// DepthFunc reports how many jobs are waiting in the queue.
type DepthFunc func(ctx context.Context) (int64, error)

// RegisterQueueDepth exposes shipyard.queue.depth, read from depth on every scrape.
// A failed read is logged and skipped so the rest of the scrape still succeeds.
func RegisterQueueDepth(meter metric.Meter, depth DepthFunc, log *slog.Logger) error {
	_, err := meter.Int64ObservableGauge("shipyard.queue.depth",
		metric.WithDescription("Jobs waiting in the queue"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			n, err := depth(ctx)
			if err != nil {
				log.WarnContext(ctx, "failed to read queue depth", "error", err)
				return nil
			}
			obs.Observe(n)
			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("create queue depth gauge: %w", err)
	}
	return nil
}
