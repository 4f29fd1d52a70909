package core

import (
	"context"
	"time"

	"github.com/olyamironova/swap-router/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/olyamironova/swap-router/internal/core"

// Metrics records route outcomes.
type Metrics struct {
	routes   metric.Int64Counter
	duration metric.Float64Histogram
	output   metric.Int64Counter
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(instrumentationName)
	m := &Metrics{}
	var err error
	m.routes, err = meter.Int64Counter(
		"swaprouter.routes.total",
		metric.WithDescription("Routes handled, by outcome"),
	)
	if err != nil {
		return nil, err
	}
	m.duration, err = meter.Float64Histogram(
		"swaprouter.route.duration",
		metric.WithDescription("Time from request to commit or abort"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	m.output, err = meter.Int64Counter(
		"swaprouter.route.output",
		metric.WithDescription("Final output delivered by committed routes, in base units"),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) RecordRoute(ctx context.Context, dry bool, out domain.RouteOutcome, err error, elapsed time.Duration) {
	outcome := "committed"
	switch {
	case err != nil:
		outcome = domain.Code(err)
	case dry:
		outcome = "quoted"
	}
	attrs := metric.WithAttributes(
		attribute.String("route.outcome", outcome),
		attribute.Bool("route.dry_run", dry),
	)
	m.routes.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
	if err == nil && !dry && out.FinalOutputAmount <= 1<<63-1 {
		m.output.Add(ctx, int64(out.FinalOutputAmount))
	}
}
