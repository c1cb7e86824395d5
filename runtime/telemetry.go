package runtime

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"

	"chat-mesh/observability"
)

// TelemetryWorker logs process self-stats alongside the sync counters at
// a fixed interval.
type TelemetryWorker struct {
	log      *slog.Logger
	monitor  *observability.SyncMonitor
	interval time.Duration
}

func NewTelemetryWorker(log *slog.Logger, monitor *observability.SyncMonitor, interval time.Duration) *TelemetryWorker {
	return &TelemetryWorker{log: log, monitor: monitor, interval: interval}
}

func (w *TelemetryWorker) Run(ctx context.Context) error {
	w.log.Info("Starting telemetry worker", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			rss, cpu, err := selfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "error", err)
				continue
			}
			stats := w.monitor.Snapshot()
			w.log.Info("Telemetry",
				"ram_bytes", rss,
				"cpu_percent", cpu,
				"messages_applied", stats.MessagesApplied,
				"echoes_suppressed", stats.EchoesSuppressed,
				"duplicates_dropped", stats.DuplicatesDropped,
				"poll_updates_lost", stats.PollUpdatesLost,
			)
		}
	}
}

func selfStats(p *process.Process) (uint64, float64, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, err
	}
	return memInfo.RSS, cpuPercent, nil
}
