package workers

import (
	"context"
	"log/slog"
	"time"

	"chat-relay/contract"
	"chat-relay/observability"
)

var _ contract.Worker = (*HeartbeatWorker)(nil)

// HeartbeatWorker periodically logs a monitoring snapshot so drift in the
// fire-and-forget paths (dropped jobs, persist failures) is visible without
// querying the stats endpoint.
type HeartbeatWorker struct {
	monitoring *observability.MonitoringManager
	interval   time.Duration
	log        *slog.Logger
}

func NewHeartbeatWorker(monitoring *observability.MonitoringManager, interval time.Duration, log *slog.Logger) *HeartbeatWorker {
	return &HeartbeatWorker{monitoring: monitoring, interval: interval, log: log}
}

func (w *HeartbeatWorker) Run(ctx context.Context) error {
	w.log.Info("Starting heartbeat worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			stats := w.monitoring.Snapshot()
			w.log.Info("Heartbeat",
				"active_connections", stats.ActiveConnections,
				"messages_routed", stats.MessagesRouted,
				"events_delivered", stats.EventsDelivered,
				"delivery_failures", stats.DeliveryFailures,
				"persist_failures", stats.PersistFailures,
				"dropped_persist_jobs", stats.DroppedPersistJobs,
				"dropped_index_jobs", stats.DroppedIndexJobs,
				"worker_restarts", stats.WorkerRestarts,
				"alloc_mem_mb", stats.AllocMemMb,
				"rss_mb", stats.ProcessRSSMb,
				"cpu_percent", stats.ProcessCPUPercent,
				"goroutines", stats.NumGoroutine,
			)
		}
	}
}
