package scan_task

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	bytes  metric.Int64Counter
	starts metric.Int64Counter
	tasks  metric.Int64Counter
}

var taskMetrics = newMetrics(otel.Meter("memscan/scan_task"))

func newMetrics(meter metric.Meter) *metrics {
	bytes, _ := meter.Int64Counter("memscan_scan_bytes_total",
		metric.WithDescription("Bytes of target memory read by scans"),
		metric.WithUnit("By"))
	started, _ := meter.Int64Counter("memscan_tasks_started_total")
	tasks, _ := meter.Int64Counter("memscan_tasks_total",
		metric.WithDescription("Finished scan tasks by terminal status"))

	return &metrics{bytes: bytes, starts: started, tasks: tasks}
}

func (m *metrics) started(ctx context.Context, task string) {
	if m.starts == nil {
		return
	}
	m.starts.Add(ctx, 1, metric.WithAttributes(attribute.String("task", task)))
}

func (m *metrics) scanned(ctx context.Context, task string, n uint64) {
	if m.bytes == nil || n == 0 {
		return
	}
	m.bytes.Add(context.WithoutCancel(ctx), int64(n), metric.WithAttributes(attribute.String("task", task)))
}

func (m *metrics) finished(ctx context.Context, task string, status Status) {
	if m.tasks == nil {
		return
	}
	m.tasks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("task", task),
		attribute.String("status", status.String()),
	))
}
