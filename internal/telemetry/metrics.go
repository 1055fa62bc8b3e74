package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "classroom-dbinit"

// Metrics records bootstrap outcomes. Instruments come from the global meter
// provider, which is a no-op until InitProvider installs a real one.
type Metrics struct {
	runs              metric.Int64Counter
	duration          metric.Float64Histogram
	migrationsApplied metric.Int64Counter
	tablesCreated     metric.Int64Counter
}

// NewMetrics creates the bootstrap instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	runs, err := meter.Int64Counter("dbinit.bootstrap.runs",
		metric.WithDescription("Completed bootstrap runs by status"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("dbinit.bootstrap.duration",
		metric.WithDescription("Wall time of a bootstrap run"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	migrations, err := meter.Int64Counter("dbinit.migrations.applied",
		metric.WithDescription("Migration scripts applied"))
	if err != nil {
		return nil, err
	}
	tables, err := meter.Int64Counter("dbinit.tables.created",
		metric.WithDescription("Declared tables created because they were missing"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		runs:              runs,
		duration:          duration,
		migrationsApplied: migrations,
		tablesCreated:     tables,
	}, nil
}

// RecordRun records one finished run. A nil receiver is a no-op.
func (m *Metrics) RecordRun(ctx context.Context, status string, elapsed time.Duration, migrations, tables int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.runs.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
	if migrations > 0 {
		m.migrationsApplied.Add(ctx, int64(migrations))
	}
	if tables > 0 {
		m.tablesCreated.Add(ctx, int64(tables))
	}
}
