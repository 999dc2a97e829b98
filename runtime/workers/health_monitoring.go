package workers

import (
	"chat-relay/contract"
	"chat-relay/observability"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

var _ contract.Worker = (*HealthMonitoringWorker)(nil)

// RegistryStats is the read side of the session registry.
type RegistryStats interface {
	Stats() (conversations int, sessions int)
}

// QueueStats reports how full a bounded channel is.
type QueueStats interface {
	QueueLen() (length int, capacity int)
}

// HealthMonitoringWorker samples the relay process and its in-memory state into gauges.
// Reading len and cap of a channel never blocks, an occasional stale sample is fine.
type HealthMonitoringWorker struct {
	log            *slog.Logger
	registry       RegistryStats
	queue          QueueStats
	metricInterval time.Duration
}

func NewHealthMonitoringWorker(
	log *slog.Logger,
	registry RegistryStats,
	queue QueueStats,
	metricInterval time.Duration,
) *HealthMonitoringWorker {
	return &HealthMonitoringWorker{
		log:            log,
		registry:       registry,
		queue:          queue,
		metricInterval: metricInterval,
	}
}

func (w *HealthMonitoringWorker) Run(ctx context.Context) error {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		w.log.Warn("Process metrics unavailable", "error", err)
	}

	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health monitoring")
			return nil
		case <-ticker.C:
			w.sample(proc)
		}
	}
}

func (w *HealthMonitoringWorker) sample(proc *process.Process) {
	conversations, sessions := w.registry.Stats()
	observability.ActiveConversations.Set(float64(conversations))

	length, capacity := w.queue.QueueLen()
	observability.FanoutQueueLength.Set(float64(length))
	if capacity > 0 && length*10 >= capacity*9 {
		w.log.Warn("Fanout queue almost full", "length", length, "capacity", capacity)
	}

	if proc == nil {
		return
	}
	cpu, err := proc.CPUPercent()
	if err != nil {
		w.log.Debug("Error while finding process cpu usage", "error", err)
		return
	}
	ram, err := proc.MemoryPercent()
	if err != nil {
		w.log.Debug("Error while finding process ram usage", "error", err)
		return
	}
	observability.ProcessCPUPercent.Set(cpu)
	observability.ProcessMemoryPercent.Set(float64(ram))

	w.log.Debug("Health sample",
		"conversations", conversations,
		"sessions", sessions,
		"fanout_queue", length,
		"cpu", cpu,
		"ram", ram)
}
