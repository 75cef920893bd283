// Package observability aggregates transfer and process metrics for the
// periodic report and the debug inspector.
package observability

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"transfer-lab/domain"
	"transfer-lab/domain/event"

	"github.com/shirou/gopsutil/process"
)

const recentTransferLimit = 20

// RecentTransferInfo is one row of the recent-transfer ring. Every lifecycle
// change produces its own row, newest first.
type RecentTransferInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Direction string `json:"direction"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// MonitoringStats aggregates every metric for the report and the inspector.
type MonitoringStats struct {
	// Byte throughput over the last sampling window, in MB/s. Up counts
	// bytes flowing into storage, Down bytes flowing out of it, whichever
	// side of the wire this process sits on.
	UpSpeed   float64 `json:"up_speed"`
	DownSpeed float64 `json:"down_speed"`

	PartsUp   uint64 `json:"parts_up"`
	PartsDown uint64 `json:"parts_down"`
	Commits   uint64 `json:"commits"`

	TransfersStarted   uint64 `json:"transfers_started"`
	TransfersCompleted uint64 `json:"transfers_completed"`
	TransfersFailed    uint64 `json:"transfers_failed"`
	ErrorCount         uint64 `json:"error_count"`

	AllocMemMb uint64  `json:"alloc_mem_mb"`
	NumGC      uint32  `json:"num_gc"`
	RssMemMb   uint64  `json:"rss_mem_mb"`
	CpuPercent float64 `json:"cpu_percent"`

	RecentTransfers []RecentTransferInfo `json:"recent_transfers"`
}

// MonitoringManager keeps the live counters. The byte counters are swapped
// to zero on every sampling tick to derive the window throughput.
type MonitoringManager struct {
	log         *slog.Logger
	mu          sync.RWMutex
	latestStats MonitoringStats
	proc        *process.Process

	BytesUp   uint64
	BytesDown uint64

	PartsUp            uint64
	PartsDown          uint64
	Commits            uint64
	TransfersStarted   uint64
	TransfersCompleted uint64
	TransfersFailed    uint64
	ErrorCount         uint64
	LastCheck          time.Time
}

func NewMonitoringManager(log *slog.Logger) *MonitoringManager {
	// A nil proc only disables the RSS/CPU columns.
	proc, _ := process.NewProcess(int32(os.Getpid()))
	return &MonitoringManager{
		log:       log,
		proc:      proc,
		LastCheck: time.Now(),
		latestStats: MonitoringStats{
			RecentTransfers: make([]RecentTransferInfo, 0),
		},
	}
}

func (mm *MonitoringManager) IncrErrorCount() {
	atomic.AddUint64(&mm.ErrorCount, 1)
}

func (mm *MonitoringManager) IncrCommits() {
	atomic.AddUint64(&mm.Commits, 1)
}

// IncrPartUp records one part received into staging, n bytes large.
func (mm *MonitoringManager) IncrPartUp(n uint64) {
	atomic.AddUint64(&mm.PartsUp, 1)
	atomic.AddUint64(&mm.BytesUp, n)
}

// IncrPartDown records one part served or written out, n bytes large.
func (mm *MonitoringManager) IncrPartDown(n uint64) {
	atomic.AddUint64(&mm.PartsDown, 1)
	atomic.AddUint64(&mm.BytesDown, n)
}

// AddTransfer pushes one row on the recent-transfer ring (thread-safe).
func (mm *MonitoringManager) AddTransfer(id, name, direction, status string) {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	row := RecentTransferInfo{
		ID:        id,
		Name:      name,
		Direction: direction,
		Status:    status,
		Timestamp: time.Now().Format("15:04:05"),
	}

	mm.latestStats.RecentTransfers = append([]RecentTransferInfo{row}, mm.latestStats.RecentTransfers...)
	if len(mm.latestStats.RecentTransfers) > recentTransferLimit {
		mm.latestStats.RecentTransfers = mm.latestStats.RecentTransfers[:recentTransferLimit]
	}
}

// Consume maps transfer events onto the counters, which makes the manager
// pluggable wherever an event sink is expected.
func (mm *MonitoringManager) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.TransferStarted:
		atomic.AddUint64(&mm.TransfersStarted, 1)
		mm.AddTransfer(evt.ID.String(), evt.Name, string(evt.Direction), "STARTED")
	case event.TransferCompleted:
		atomic.AddUint64(&mm.TransfersCompleted, 1)
		mm.AddTransfer(evt.ID.String(), evt.Name, string(evt.Direction), "DONE")
	case event.TransferFailed:
		atomic.AddUint64(&mm.TransfersFailed, 1)
		atomic.AddUint64(&mm.ErrorCount, 1)
		mm.AddTransfer(evt.ID.String(), evt.Name, string(evt.Direction), "FAILED")
	case event.PartSent:
		mm.IncrPartUp(uint64(evt.Bytes))
	case event.PartFetched:
		mm.IncrPartDown(uint64(evt.Bytes))
	}
	return nil
}

// Run recomputes the window throughput once per second until the context
// ends. Implements the worker contract so the supervisor owns the loop.
func (mm *MonitoringManager) Run(ctx context.Context) error {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			mm.log.Debug("Monitoring manager stopped")
			return nil
		case <-ticker.C:
			mm.updateStats()
		}
	}
}

func (mm *MonitoringManager) updateStats() {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	now := time.Now()
	duration := now.Sub(mm.LastCheck).Seconds()

	if duration > 0 {
		up := atomic.SwapUint64(&mm.BytesUp, 0)
		down := atomic.SwapUint64(&mm.BytesDown, 0)

		mm.latestStats.UpSpeed = (float64(up) / float64(domain.MB)) / duration
		mm.latestStats.DownSpeed = (float64(down) / float64(domain.MB)) / duration
	}
	mm.LastCheck = now

	mm.latestStats.PartsUp = atomic.LoadUint64(&mm.PartsUp)
	mm.latestStats.PartsDown = atomic.LoadUint64(&mm.PartsDown)
	mm.latestStats.Commits = atomic.LoadUint64(&mm.Commits)
	mm.latestStats.TransfersStarted = atomic.LoadUint64(&mm.TransfersStarted)
	mm.latestStats.TransfersCompleted = atomic.LoadUint64(&mm.TransfersCompleted)
	mm.latestStats.TransfersFailed = atomic.LoadUint64(&mm.TransfersFailed)
	mm.latestStats.ErrorCount = atomic.LoadUint64(&mm.ErrorCount)

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	mm.latestStats.AllocMemMb = m.Alloc / 1024 / 1024
	mm.latestStats.NumGC = m.NumGC

	if mm.proc != nil {
		if memInfo, err := mm.proc.MemoryInfo(); err == nil {
			mm.latestStats.RssMemMb = memInfo.RSS / 1024 / 1024
		}
		if cpu, err := mm.proc.CPUPercent(); err == nil {
			mm.latestStats.CpuPercent = cpu
		}
	}
}

func (mm *MonitoringManager) GetLatest() MonitoringStats {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return mm.latestStats
}
