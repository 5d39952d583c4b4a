// Package observability provides an extension that records claim-protocol
// lifecycle metrics through the OpenTelemetry metric API. With no global
// MeterProvider configured the instruments are noops, so registering the
// extension is always safe.
package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/machinalis/featureforge"
	"github.com/machinalis/featureforge/ext"
	"github.com/machinalis/featureforge/record"
)

// meterName is the instrumentation scope name for featureforge metrics.
const meterName = "github.com/machinalis/featureforge/observability"

// Compile-time interface checks.
var (
	_ ext.Extension           = (*MetricsExtension)(nil)
	_ ext.ExperimentBooked    = (*MetricsExtension)(nil)
	_ ext.ExperimentSkipped   = (*MetricsExtension)(nil)
	_ ext.ExperimentSolved    = (*MetricsExtension)(nil)
	_ ext.ExperimentFailed    = (*MetricsExtension)(nil)
	_ ext.ExperimentOvertaken = (*MetricsExtension)(nil)
	_ ext.ConfigRejected      = (*MetricsExtension)(nil)
)

// MetricsExtension counts lifecycle events and records experiment
// durations. Register it on a Runner to track booking rates, skip rates,
// failures, and solve latency across workers.
type MetricsExtension struct {
	booked    metric.Int64Counter
	skipped   metric.Int64Counter
	solved    metric.Int64Counter
	failed    metric.Int64Counter
	overtaken metric.Int64Counter
	rejected  metric.Int64Counter
	duration  metric.Float64Histogram
}

// NewMetricsExtension creates a MetricsExtension using the global
// MeterProvider.
func NewMetricsExtension() (*MetricsExtension, error) {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the
// provided meter, for injecting a specific MeterProvider in tests or when
// multiple providers are in use.
func NewMetricsExtensionWithMeter(meter metric.Meter) (*MetricsExtension, error) {
	m := &MetricsExtension{}
	var err error

	if m.booked, err = meter.Int64Counter("featureforge.experiment.booked"); err != nil {
		return nil, err
	}
	if m.skipped, err = meter.Int64Counter("featureforge.experiment.skipped"); err != nil {
		return nil, err
	}
	if m.solved, err = meter.Int64Counter("featureforge.experiment.solved"); err != nil {
		return nil, err
	}
	if m.failed, err = meter.Int64Counter("featureforge.experiment.failed"); err != nil {
		return nil, err
	}
	if m.overtaken, err = meter.Int64Counter("featureforge.experiment.overtaken"); err != nil {
		return nil, err
	}
	if m.rejected, err = meter.Int64Counter("featureforge.config.rejected"); err != nil {
		return nil, err
	}
	if m.duration, err = meter.Float64Histogram("featureforge.experiment.duration",
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	return m, nil
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnExperimentBooked implements ext.ExperimentBooked.
func (m *MetricsExtension) OnExperimentBooked(ctx context.Context, _ *record.Record) error {
	m.booked.Add(ctx, 1)
	return nil
}

// OnExperimentSkipped implements ext.ExperimentSkipped.
func (m *MetricsExtension) OnExperimentSkipped(ctx context.Context, _ string) error {
	m.skipped.Add(ctx, 1)
	return nil
}

// OnExperimentSolved implements ext.ExperimentSolved.
func (m *MetricsExtension) OnExperimentSolved(ctx context.Context, _ *record.Record, elapsed time.Duration) error {
	m.solved.Add(ctx, 1)
	m.duration.Record(ctx, elapsed.Seconds())
	return nil
}

// OnExperimentFailed implements ext.ExperimentFailed.
func (m *MetricsExtension) OnExperimentFailed(ctx context.Context, _ *record.Record, _ error) error {
	m.failed.Add(ctx, 1)
	return nil
}

// OnExperimentOvertaken implements ext.ExperimentOvertaken.
func (m *MetricsExtension) OnExperimentOvertaken(ctx context.Context, _ *record.Record) error {
	m.overtaken.Add(ctx, 1)
	return nil
}

// OnConfigRejected implements ext.ConfigRejected.
func (m *MetricsExtension) OnConfigRejected(ctx context.Context, _ featureforge.Config, _ error) error {
	m.rejected.Add(ctx, 1)
	return nil
}
