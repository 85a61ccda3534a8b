package world

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/beamsim/beamsim/internal/world"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

type metrics struct {
	ticks    metric.Int64Counter
	duration metric.Float64Histogram
	actors   metric.Int64ObservableGauge
	reg      metric.Registration
}

func newMetrics(w *World) (*metrics, error) {
	m := meter()
	ticks, err := m.Int64Counter("world.ticks",
		metric.WithDescription("Physics ticks run"))
	if err != nil {
		return nil, fmt.Errorf("create ticks counter: %w", err)
	}
	duration, err := m.Float64Histogram("world.tick.duration",
		metric.WithDescription("Wall time of one physics tick"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("create tick duration histogram: %w", err)
	}
	actors, err := m.Int64ObservableGauge("world.actors",
		metric.WithDescription("Registered actors"))
	if err != nil {
		return nil, fmt.Errorf("create actors gauge: %w", err)
	}
	reg, err := m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(actors, w.stats.actors.Load())
		return nil
	}, actors)
	if err != nil {
		return nil, fmt.Errorf("register actors gauge: %w", err)
	}
	return &metrics{ticks: ticks, duration: duration, actors: actors, reg: reg}, nil
}

func (m *metrics) observe(start time.Time) {
	ctx := context.Background()
	m.ticks.Add(ctx, 1)
	m.duration.Record(ctx, float64(time.Since(start).Microseconds())/1000)
}

func (m *metrics) unregister() {
	if m.reg != nil {
		_ = m.reg.Unregister()
	}
}
