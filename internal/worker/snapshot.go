package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hyperengineering/jukebox/internal/metrics"
	"github.com/hyperengineering/jukebox/internal/snapshot"
)

// SnapshotStore defines the store operations needed by the snapshot worker.
type SnapshotStore interface {
	GenerateSnapshot(ctx context.Context) error
	GetSnapshotPath(ctx context.Context) (string, error)
}

// SnapshotWorker writes periodic catalog snapshots and ships them to
// remote storage when an uploader is configured.
type SnapshotWorker struct {
	store    SnapshotStore
	uploader snapshot.Uploader
	interval time.Duration
}

// NewSnapshotWorker creates a worker with the given store, uploader and interval.
// A nil uploader keeps snapshots local.
func NewSnapshotWorker(store SnapshotStore, uploader snapshot.Uploader, interval time.Duration) *SnapshotWorker {
	if uploader == nil {
		uploader = snapshot.NoopUploader{}
	}
	return &SnapshotWorker{
		store:    store,
		uploader: uploader,
		interval: interval,
	}
}

// Run starts the worker loop. Generates a snapshot immediately on start,
// then on each interval. Respects context cancellation for graceful shutdown.
func (w *SnapshotWorker) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "snapshot",
		"interval", w.interval.String(),
		"upload", w.uploader.Enabled(),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "snapshot",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce generates one snapshot and uploads it. Upload failures are logged
// and do not fail the snapshot.
func (w *SnapshotWorker) RunOnce(ctx context.Context) error {
	slog.Info("snapshot generation started",
		"component", "worker",
		"action", "snapshot_start",
	)
	start := time.Now()

	if err := w.store.GenerateSnapshot(ctx); err != nil {
		if ctx.Err() != nil {
			return err
		}
		metrics.RecordSnapshot(err)
		slog.Warn("snapshot generation failed",
			"component", "worker",
			"action", "snapshot_failed",
			"error", err,
		)
		return err
	}
	metrics.RecordSnapshot(nil)

	slog.Info("snapshot generated",
		"component", "worker",
		"action", "snapshot_complete",
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if !w.uploader.Enabled() {
		return nil
	}

	path, err := w.store.GetSnapshotPath(ctx)
	if err != nil {
		slog.Warn("snapshot missing after generation",
			"component", "worker",
			"action", "snapshot_upload_failed",
			"error", err,
		)
		return nil
	}

	key, err := w.uploader.Upload(ctx, path)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Warn("snapshot upload failed",
				"component", "worker",
				"action", "snapshot_upload_failed",
				"error", err,
			)
		}
		return nil
	}

	slog.Info("snapshot uploaded",
		"component", "worker",
		"action", "snapshot_uploaded",
		"key", key,
	)
	return nil
}
