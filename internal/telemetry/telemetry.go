// Package telemetry initializes the process-local OpenTelemetry metrics
// pipeline used to time embedding, search, and checkpoint-load latency.
//
// MAMA is a single-process, local-first engine with no collector to ship
// spans or metrics to, so unlike a networked service there is no OTLP
// exporter here: metrics are periodically rendered to the configured
// writer (stdout by default) via the stdoutmetric exporter, giving an
// operator visibility into restart latency and search timing without
// standing up any infrastructure.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// Shutdown flushes and closes the metrics pipeline.
type Shutdown func(ctx context.Context) error

// Init configures the global OpenTelemetry meter provider.
// If w is nil, metrics are disabled: no provider is installed, so the
// global meter provider is left as it was.
// Returns a shutdown function that must be called during Engine.Close.
func Init(ctx context.Context, w io.Writer, serviceName, version string) (Shutdown, error) {
	if w == nil {
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create resource: %w", err)
	}

	exp, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("telemetry: create metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp,
				sdkmetric.WithInterval(30*time.Second),
			),
		),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	return func(ctx context.Context) error { return mp.Shutdown(ctx) }, nil
}

// Meter returns the global meter for the given instrumentation scope.
func Meter(name string) metric.Meter {
	return otel.GetMeterProvider().Meter(name)
}
