// Package observe provides the OpenTelemetry metric instruments for the
// analysis core. Metrics are recorded through the OTel Metrics API only; the
// embedding application decides which provider/exporter to install. A
// package-level default instance ([DefaultMetrics]) uses the global meter
// provider; tests should use [NewMetrics] with their own provider to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/auricle-audio/auricle"

// Metrics holds all OpenTelemetry metric instruments for the analysis core.
// The underlying OTel types handle their own synchronisation, so a Metrics
// value is safe for concurrent use.
type Metrics struct {
	// FramesProcessed counts audio frames that went through the pipeline.
	FramesProcessed metric.Int64Counter

	// FramesSkipped counts malformed, empty, or dropped frames. Use with
	// attribute.String("reason", ...).
	FramesSkipped metric.Int64Counter

	// RemoteFetches counts remote analysis requests. Use with
	// attribute.String("status", ...).
	RemoteFetches metric.Int64Counter

	// RemoteFailures counts remote analysis failures.
	RemoteFailures metric.Int64Counter

	// ActiveSessions tracks the number of live analysis sessions.
	ActiveSessions metric.Int64UpDownCounter
}

// NewMetrics creates a fully initialised [Metrics] using the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesProcessed, err = m.Int64Counter("auricle.frames.processed",
		metric.WithDescription("Total audio frames processed by the analysis pipeline."),
	); err != nil {
		return nil, err
	}
	if met.FramesSkipped, err = m.Int64Counter("auricle.frames.skipped",
		metric.WithDescription("Total audio frames skipped by reason."),
	); err != nil {
		return nil, err
	}
	if met.RemoteFetches, err = m.Int64Counter("auricle.remote.fetches",
		metric.WithDescription("Total remote analysis requests by status."),
	); err != nil {
		return nil, err
	}
	if met.RemoteFailures, err = m.Int64Counter("auricle.remote.failures",
		metric.WithDescription("Total remote analysis failures."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("auricle.active_sessions",
		metric.WithDescription("Number of live analysis sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call from the global meter provider. Panics if instrument creation
// fails (should not happen with the global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordFrameSkipped increments the skipped-frame counter with a reason.
func (m *Metrics) RecordFrameSkipped(ctx context.Context, reason string) {
	m.FramesSkipped.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordRemoteFetch increments the remote-fetch counter with a status.
func (m *Metrics) RecordRemoteFetch(ctx context.Context, status string) {
	m.RemoteFetches.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}
