package workers

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"transfer-lab/observability"
)

// ReporterWorker logs a metrics snapshot at a fixed interval so a tail of
// the daemon log doubles as a coarse dashboard.
type ReporterWorker struct {
	log        *slog.Logger
	monitoring *observability.MonitoringManager
	interval   time.Duration
	startTime  time.Time
}

func NewReporterWorker(log *slog.Logger, monitoring *observability.MonitoringManager, interval time.Duration) *ReporterWorker {
	return &ReporterWorker{log: log, monitoring: monitoring, interval: interval}
}

// Run starts the reporting loop until context cancellation. A final
// snapshot is logged on the way out.
func (w *ReporterWorker) Run(ctx context.Context) error {
	w.startTime = time.Now()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.report()
			return ctx.Err()
		case <-ticker.C:
			w.report()
		}
	}
}

func (w *ReporterWorker) report() {
	stats := w.monitoring.GetLatest()
	w.log.Info("Metrics snapshot",
		slog.String("uptime", time.Since(w.startTime).Round(time.Second).String()),
		slog.String("up_speed_mbs", formatSpeed(stats.UpSpeed)),
		slog.String("down_speed_mbs", formatSpeed(stats.DownSpeed)),
		slog.Uint64("parts_up", stats.PartsUp),
		slog.Uint64("parts_down", stats.PartsDown),
		slog.Uint64("commits", stats.Commits),
		slog.Uint64("transfers_failed", stats.TransfersFailed),
		slog.Uint64("alloc_mem_mb", stats.AllocMemMb),
		slog.Uint64("rss_mem_mb", stats.RssMemMb),
	)
}

func formatSpeed(mbs float64) string {
	return strconv.FormatFloat(mbs, 'f', 2, 64)
}
