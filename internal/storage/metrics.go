package storage

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"

	"github.com/lexdesk/lexagent/internal/telemetry"
)

// RegisterPoolMetrics exports connection pool gauges. Call once after New.
func (db *DB) RegisterPoolMetrics() error {
	m := telemetry.Meter("lexagent/storage")

	total, err := m.Int64ObservableGauge("lexagent.db.pool.connections",
		metric.WithDescription("Open connections in the pool"))
	if err != nil {
		return fmt.Errorf("storage: pool metrics: %w", err)
	}
	idle, err := m.Int64ObservableGauge("lexagent.db.pool.idle",
		metric.WithDescription("Idle connections in the pool"))
	if err != nil {
		return fmt.Errorf("storage: pool metrics: %w", err)
	}
	waits, err := m.Int64ObservableCounter("lexagent.db.pool.empty_acquires",
		metric.WithDescription("Acquires that waited for a connection"))
	if err != nil {
		return fmt.Errorf("storage: pool metrics: %w", err)
	}

	_, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := db.pool.Stat()
		o.ObserveInt64(total, int64(s.TotalConns()))
		o.ObserveInt64(idle, int64(s.IdleConns()))
		o.ObserveInt64(waits, s.EmptyAcquireCount())
		return nil
	}, total, idle, waits)
	if err != nil {
		return fmt.Errorf("storage: pool metrics: %w", err)
	}
	return nil
}
