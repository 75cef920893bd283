package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"transfer-lab/domain/event"

	"github.com/shirou/gopsutil/process"
)

// HeartbeatWorker samples the daemon's own process metrics and publishes
// them on the telemetry channel. The handlers downstream turn them into
// periodic resource logs.
type HeartbeatWorker struct {
	log           *slog.Logger
	telemetryChan chan event.Event
	interval      time.Duration
}

func NewHeartbeatWorker(log *slog.Logger, telemetryChan chan event.Event, interval time.Duration) *HeartbeatWorker {
	return &HeartbeatWorker{
		log:           log,
		telemetryChan: telemetryChan,
		interval:      interval,
	}
}

// Run executes the main loop of the worker, sampling CPU, RAM and Status on every tick.
func (w *HeartbeatWorker) Run(ctx context.Context) error {
	w.log.Info("Starting heartbeat worker")
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
			rss, cpu, status, err := getSelfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "err", err)
				continue
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case w.telemetryChan <- toProcessStatsEvent(rss, cpu, status):
			default:
				w.log.Debug("Observability telemetry event lost")
			}
		}
	}
}

// getSelfStats retrieves technical metrics (Memory, CPU, and OS Status) for the given process.
func getSelfStats(p *process.Process) (uint64, float64, string, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, "", err
	}

	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, "", err
	}

	status, err := p.Status()
	if err != nil {
		return 0, 0, "", err
	}
	return memInfo.RSS, cpuPercent, status, nil
}

func toProcessStatsEvent(rss uint64, cpu float64, status string) event.Event {
	return event.Event{
		Type:      event.ProcessStatsType,
		CreatedAt: time.Now().UTC(),
		Payload: event.ProcessStats{
			PID:      os.Getpid(),
			Status:   status,
			Cpu:      cpu,
			RamBytes: rss,
		},
	}
}
