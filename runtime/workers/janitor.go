package workers

import (
	"context"
	"log/slog"
	"time"

	"transfer-lab/repositories"
)

// StagePurger is the slice of the cluster the janitor drives: enumerate
// abandoned staged uploads, then drop them one by one.
type StagePurger interface {
	Stales(cutoff time.Time) (map[int][]repositories.StagedUpload, error)
	DiscardStaged(dc int, fileID int64) error
}

// JanitorWorker reclaims staged uploads whose client went away before the
// commit. A part train that stalls for longer than maxAge is considered
// abandoned and its parts are deleted on the owning data-center.
type JanitorWorker struct {
	log      *slog.Logger
	cluster  StagePurger
	maxAge   time.Duration
	interval time.Duration
}

func NewJanitorWorker(log *slog.Logger, cluster StagePurger, maxAge, interval time.Duration) *JanitorWorker {
	return &JanitorWorker{
		log:      log,
		cluster:  cluster,
		maxAge:   maxAge,
		interval: interval,
	}
}

func (w *JanitorWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.SweepOnce()
		}
	}
}

// SweepOnce runs a single reclaim pass over every data-center.
func (w *JanitorWorker) SweepOnce() {
	stale, err := w.cluster.Stales(time.Now().Add(-w.maxAge))
	if err != nil {
		w.log.Error("Failed to list stale uploads", "err", err)
		return
	}
	for dc, uploads := range stale {
		for _, upload := range uploads {
			if err := w.cluster.DiscardStaged(dc, upload.FileID); err != nil {
				w.log.Warn("Failed to discard staged upload",
					"dc", dc, "file_id", upload.FileID, "err", err)
				continue
			}
			w.log.Info("Reclaimed abandoned upload",
				"dc", dc,
				"file_id", upload.FileID,
				"parts", upload.Parts,
				"bytes", upload.Bytes,
				"last_part_at", upload.UpdatedAt)
		}
	}
}
