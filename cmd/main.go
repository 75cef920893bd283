package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"transfer-lab/domain"
	"transfer-lab/domain/event"
	"transfer-lab/infrastructure/cluster"
	"transfer-lab/internal"
	"transfer-lab/moderation"
	"transfer-lab/observability"
	"transfer-lab/repositories"
	"transfer-lab/runtime/workers"

	"github.com/dustin/go-humanize"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Daemon terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// This pattern is preferred over calling os.Exit or panic directly because:
// 1. It ensures all 'defer' statements (like store cleanup) are executed before the program exits.
// 2. It improves testability by decoupling the initialization logic from the main entry point.
// 3. It provides a structured way to handle graceful shutdowns for listeners and background workers.
func run() (int, error) {
	// 1. Configuration & Logger
	config, err := loadConfig()
	if err != nil {
		return exitConfig, err
	}
	logger := logs.GetLoggerFromString(config.LogLevel)
	ctx := context.Background()

	addrs, err := internal.ListenAddresses(config.Host, config.BasePort, config.DataCenters)
	if err != nil {
		return exitConfig, err
	}

	signatures, err := moderation.LoadSignatures(config.SignaturesFilepath)
	if err != nil {
		return exitConfig, err
	}
	if len(signatures) > 0 {
		logger.Info("Screening enabled", "signatures", len(signatures))
	}

	// 2. Monitoring & Cluster
	monitoring := observability.NewMonitoringManager(logger)

	clu, err := cluster.NewCluster(logger, cluster.Config{
		DCs:        config.DataCenters,
		Addrs:      addrs,
		Dir:        config.DataDir,
		Secret:     []byte(config.ClusterSecret),
		Signatures: signatures,
		Monitor:    monitoring,
	})
	if err != nil {
		return exitRuntime, fmt.Errorf("build cluster: %w", err)
	}
	defer func() {
		// Defer ensures the store locks are released and buffers are flushed before the function returns.
		logger.Info("Closing the stores...")
		_ = clu.Close()
	}()

	if err := clu.Listen(); err != nil {
		return exitRuntime, fmt.Errorf("bind listeners: %w", err)
	}
	for dc, ep := range clu.Endpoints() {
		logger.Info("Data-center listening", "dc", dc, "addr", ep.Addr)
	}

	// 3. Session registration
	// The session file is the credential clients load, so it is written
	// after Listen when the endpoints inside it are dialable.
	sessionFile, err := clu.RegisterSession(config.SessionID, config.SessionHomeDC)
	if err != nil {
		return exitRuntime, fmt.Errorf("register session: %w", err)
	}
	if err := cluster.WriteSessionFile(config.SessionFilepath, sessionFile); err != nil {
		return exitRuntime, err
	}
	logger.Info("Session registered", "id", sessionFile.ID, "home_dc", sessionFile.HomeDC,
		"file", config.SessionFilepath)

	// 4. Store inspector
	if logger.Enabled(ctx, slog.LevelDebug) {
		db, err := clu.DB(config.SessionHomeDC)
		if err != nil {
			return exitRuntime, err
		}
		endpoint := "/inspect"
		internal.StartDebugServer(db, config.DebugPort, endpoint, storeMapper, statsFrom(monitoring))
		logger.Info("Store inspector available",
			"url", fmt.Sprintf("http://localhost:%d%s", config.DebugPort, endpoint))
	}

	// 5. Supervision
	telemetryChan := make(chan event.Event, config.BufferSize)
	counter := event.NewCounter()
	handlers := []event.Handler{
		event.NewChannelCapacityHandler(logger, config.LowCapacityThreshold),
		event.NewProcessStatsHandler(logger),
		event.NewWorkerRestartedAfterPanicHandler(logger, counter),
	}

	sup := workers.NewSupervisor(logger, telemetryChan, config.RestartInterval)
	sup.Add(clu.Workers()...)
	sup.Add(
		workers.NewTelemetryWorker(logger, telemetryChan, handlers),
		workers.NewHeartbeatWorker(logger, telemetryChan, config.HeartbeatInterval),
		workers.NewChannelCapacityWorker(logger,
			[]workers.NamedChannel{{Name: "telemetry", Channel: telemetryChan}},
			telemetryChan, config.MetricInterval),
		workers.NewJanitorWorker(logger, clu, config.StagingMaxAge, config.JanitorInterval),
		workers.NewReporterWorker(logger, monitoring, config.ReportInterval),
		monitoring,
	)

	// 6. Context & Signals
	// NotifyContext captures OS signals and cancels the context to trigger a shutdown.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting supervisor...", "data_centers", config.DataCenters)
	sup.Run(ctx)

	logger.Info("Program stopped cleanly")
	return exitOK, nil
}

// storeMapper renders the store families the inspector knows how to decode.
// Anything else falls back to the raw view.
func storeMapper(key string, val []byte) internal.InspectRow {
	row := internal.DefaultMapper(key, val)

	switch {
	case strings.HasPrefix(key, "doc:"):
		var doc domain.Document
		if err := json.Unmarshal(val, &doc); err != nil {
			row.Detail = "Error: unmarshal failed"
			return row
		}
		row.Type = strings.ToUpper(string(doc.Kind))
		row.Namespace = doc.Channel
		row.Timestamp = doc.Date.Format("15:04:05")
		row.Detail = fmt.Sprintf("%s (%s, %s)", doc.Name, humanize.Bytes(uint64(doc.Size)), doc.Mimetype)

	case strings.HasPrefix(key, "stagemeta:"):
		var meta repositories.StagedUpload
		if err := json.Unmarshal(val, &meta); err != nil {
			row.Detail = "Error: unmarshal failed"
			return row
		}
		row.Type = "STAGING"
		row.Timestamp = meta.UpdatedAt.Format("15:04:05")
		row.Detail = fmt.Sprintf("%d parts, %s", meta.Parts, humanize.Bytes(uint64(meta.Bytes)))

	case strings.HasPrefix(key, "session:"):
		var rec repositories.SessionRecord
		if err := json.Unmarshal(val, &rec); err != nil {
			row.Detail = "Error: unmarshal failed"
			return row
		}
		row.Type = "SESSION"
		row.Timestamp = rec.CreatedAt.Format("15:04:05")
		row.Detail = fmt.Sprintf("%s, home DC %d", rec.ID, rec.HomeDC)
	}
	return row
}

// statsFrom exposes the live counters on the inspector dashboard.
func statsFrom(monitoring *observability.MonitoringManager) internal.StatsProvider {
	return func() map[string]any {
		stats := monitoring.GetLatest()
		return map[string]any{
			"up_mbs":      fmt.Sprintf("%.2f", stats.UpSpeed),
			"down_mbs":    fmt.Sprintf("%.2f", stats.DownSpeed),
			"parts_up":    stats.PartsUp,
			"parts_down":  stats.PartsDown,
			"commits":     stats.Commits,
			"failed":      stats.TransfersFailed,
			"errors":      stats.ErrorCount,
			"rss_mb":      stats.RssMemMb,
			"alloc_mb":    stats.AllocMemMb,
			"cpu_percent": fmt.Sprintf("%.1f", stats.CpuPercent),
		}
	}
}
