// Package observability aggregates runtime counters for operational
// diagnostics. Persistence failures land here and nowhere else: the client
// has already been acknowledged by the time a write fails.
package observability

import (
	"os"
	"runtime"
	"sync/atomic"

	"github.com/shirou/gopsutil/process"
)

// Stats is the snapshot served on the stats endpoint and logged by the
// heartbeat worker.
type Stats struct {
	ActiveConnections  int64   `json:"active_connections"`
	MessagesRouted     uint64  `json:"messages_routed"`
	EventsDelivered    uint64  `json:"events_delivered"`
	DeliveryFailures   uint64  `json:"delivery_failures"`
	FormatErrors       uint64  `json:"format_errors"`
	PersistFailures    uint64  `json:"persist_failures"`
	DroppedPersistJobs uint64  `json:"dropped_persist_jobs"`
	DroppedIndexJobs   uint64  `json:"dropped_index_jobs"`
	WorkerRestarts     uint64  `json:"worker_restarts"`
	AllocMemMb         uint64  `json:"alloc_mem_mb"`
	NumGC              uint32  `json:"num_gc"`
	NumGoroutine       int     `json:"num_goroutine"`
	ProcessRSSMb       uint64  `json:"process_rss_mb"`
	ProcessCPUPercent  float64 `json:"process_cpu_percent"`
}

// MonitoringManager holds lock-free counters shared by the router, the
// registry, and the workers.
type MonitoringManager struct {
	activeConnections  atomic.Int64
	messagesRouted     atomic.Uint64
	eventsDelivered    atomic.Uint64
	deliveryFailures   atomic.Uint64
	formatErrors       atomic.Uint64
	persistFailures    atomic.Uint64
	droppedPersistJobs atomic.Uint64
	droppedIndexJobs   atomic.Uint64
	workerRestarts     atomic.Uint64

	proc *process.Process
}

func NewMonitoringManager() *MonitoringManager {
	// Process stats degrade gracefully: a nil proc only zeroes two fields.
	proc, _ := process.NewProcess(int32(os.Getpid()))
	return &MonitoringManager{proc: proc}
}

func (m *MonitoringManager) ConnectionOpened() { m.activeConnections.Add(1) }
func (m *MonitoringManager) ConnectionClosed() { m.activeConnections.Add(-1) }
func (m *MonitoringManager) IncrMessagesRouted() { m.messagesRouted.Add(1) }
func (m *MonitoringManager) IncrEventsDelivered() { m.eventsDelivered.Add(1) }
func (m *MonitoringManager) IncrDeliveryFailures() { m.deliveryFailures.Add(1) }
func (m *MonitoringManager) IncrFormatErrors() { m.formatErrors.Add(1) }
func (m *MonitoringManager) IncrPersistFailures() { m.persistFailures.Add(1) }
func (m *MonitoringManager) IncrDroppedPersistJobs() { m.droppedPersistJobs.Add(1) }
func (m *MonitoringManager) IncrDroppedIndexJobs() { m.droppedIndexJobs.Add(1) }
func (m *MonitoringManager) IncrWorkerRestarts() { m.workerRestarts.Add(1) }

// Snapshot assembles the current counters with process and GC stats.
func (m *MonitoringManager) Snapshot() Stats {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	stats := Stats{
		ActiveConnections:  m.activeConnections.Load(),
		MessagesRouted:     m.messagesRouted.Load(),
		EventsDelivered:    m.eventsDelivered.Load(),
		DeliveryFailures:   m.deliveryFailures.Load(),
		FormatErrors:       m.formatErrors.Load(),
		PersistFailures:    m.persistFailures.Load(),
		DroppedPersistJobs: m.droppedPersistJobs.Load(),
		DroppedIndexJobs:   m.droppedIndexJobs.Load(),
		WorkerRestarts:     m.workerRestarts.Load(),
		AllocMemMb:         memStats.Alloc / (1 << 20),
		NumGC:              memStats.NumGC,
		NumGoroutine:       runtime.NumGoroutine(),
	}

	if m.proc != nil {
		if memInfo, err := m.proc.MemoryInfo(); err == nil {
			stats.ProcessRSSMb = memInfo.RSS / (1 << 20)
		}
		if cpu, err := m.proc.CPUPercent(); err == nil {
			stats.ProcessCPUPercent = cpu
		}
	}
	return stats
}
