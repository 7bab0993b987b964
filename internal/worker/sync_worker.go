package worker

import (
	"context"
	"fmt"
	"log/slog"

	"workhours/internal/amqp"
	"workhours/internal/services"
	"workhours/internal/storage"
)

// SyncWorker mirrors SQLite work log changes into Google Sheets. AMQP
// messages are the fast path; the pending sweep is the backup for messages
// that never arrived.
type SyncWorker struct {
	processor *services.SyncProcessor
	batchSize int
}

func NewSyncWorker(processor *services.SyncProcessor, batchSize int) *SyncWorker {
	if batchSize < 1 {
		batchSize = 10
	}
	return &SyncWorker{
		processor: processor,
		batchSize: batchSize,
	}
}

// HandleSyncMessage processes a single work day sync message from AMQP
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.WorkDaySyncMessage) error {
	date, err := msg.WorkDate()
	if err != nil {
		return fmt.Errorf("parse message date: %w", err)
	}

	slog.InfoContext(ctx, "Processing sync message",
		"work_date", msg.Date,
		"version", msg.Version,
		"deleted", msg.Deleted)

	change := storage.Change{Date: date, Version: msg.Version, Deleted: msg.Deleted}
	if err := w.processor.SyncChange(ctx, change); err != nil {
		return fmt.Errorf("sync work day to sheets: %w", err)
	}
	return nil
}

// ProcessPendingDays processes any days that haven't been synced yet
func (w *SyncWorker) ProcessPendingDays(ctx context.Context) error {
	stats, err := w.processor.ProcessPending(ctx, w.batchSize)
	if err != nil {
		return err
	}
	if stats.Total > 0 {
		slog.InfoContext(ctx, "Processed pending days",
			"total", stats.Total,
			"synced", stats.Synced,
			"errors", stats.Errors)
	}
	return nil
}

// StartupSyncCheck syncs a larger batch of pending days at worker startup.
// This is useful to recover from missed AMQP messages or worker downtime
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	stats, err := w.processor.ProcessPending(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("get pending days for startup check: %w", err)
	}

	if stats.Total == 0 {
		slog.InfoContext(ctx, "No pending days found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Startup sync completed",
		"total", stats.Total,
		"synced", stats.Synced,
		"errors", stats.Errors)
	return nil
}
