package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"workhours/internal/core"
	"workhours/internal/sheets"
	"workhours/internal/storage"
)

// SyncProcessorConfig holds configuration for the sync processor
type SyncProcessorConfig struct {
	// PollInterval is how often to check for pending days (default: 30s)
	PollInterval time.Duration

	// BatchSize is the max number of days to process per poll cycle (default: 50)
	BatchSize int

	// CleanupInterval is how often synced tombstones are purged (default: 1h)
	CleanupInterval time.Duration
}

// DefaultSyncProcessorConfig returns sensible defaults
func DefaultSyncProcessorConfig() SyncProcessorConfig {
	return SyncProcessorConfig{
		PollInterval:    30 * time.Second,
		BatchSize:       50,
		CleanupInterval: 1 * time.Hour,
	}
}

// SyncStore is the bookkeeping side of the SQLite work log.
type SyncStore interface {
	GetWorkDay(ctx context.Context, d core.Date) (storage.WorkDay, error)
	GetPendingSync(ctx context.Context, limit int) ([]storage.Change, error)
	MarkSynced(ctx context.Context, d core.Date, version int64) (bool, error)
	MarkSyncError(ctx context.Context, d core.Date) error
	PurgeSyncedDeletes(ctx context.Context) (int64, error)
}

// SyncProcessor mirrors pending SQLite days into the hosted work log. It
// applies single changes for the AMQP worker and runs a periodic sweep that
// catches days whose message was lost.
type SyncProcessor struct {
	storage SyncStore
	mirror  sheets.WorkLogWriter
	config  SyncProcessorConfig

	// Lifecycle management
	mu      sync.Mutex
	running  bool
	stopCh   chan struct{}
	stopOnce *sync.Once
	doneCh   chan struct{}
}

// NewSyncProcessor creates a new sync processor
func NewSyncProcessor(storage SyncStore, mirror sheets.WorkLogWriter, config SyncProcessorConfig) *SyncProcessor {
	return &SyncProcessor{
		storage: storage,
		mirror:  mirror,
		config:  config,
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *SyncProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("sync processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.stopOnce = &sync.Once{}
	p.doneCh = make(chan struct{})
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	go p.runLoop(ctx, stopCh, doneCh)

	slog.InfoContext(ctx, "Sync processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)

	return nil
}

// Stop gracefully stops the processor and waits for completion. Concurrent
// calls all wait for the same loop.
func (p *SyncProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, done := p.stopCh, p.doneCh
	p.stopOnce.Do(func() { close(stopCh) })
	p.mu.Unlock()

	select {
	case <-done:
		slog.InfoContext(ctx, "Sync processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Sync processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

// IsRunning returns whether the processor is currently running
func (p *SyncProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *SyncProcessor) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan struct{}) {
	defer close(doneCh)

	pollTicker := time.NewTicker(p.config.PollInterval)
	defer pollTicker.Stop()

	cleanupTicker := time.NewTicker(p.config.CleanupInterval)
	defer cleanupTicker.Stop()

	// Process immediately on startup
	if _, err := p.ProcessPending(ctx, p.config.BatchSize); err != nil {
		slog.ErrorContext(ctx, "Failed to process pending days", "error", err)
	}

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			if _, err := p.ProcessPending(ctx, p.config.BatchSize); err != nil {
				slog.ErrorContext(ctx, "Failed to process pending days", "error", err)
			}
		case <-cleanupTicker.C:
			p.cleanupSynced(ctx)
		}
	}
}

// SyncStats counts the outcome of one sweep.
type SyncStats struct {
	Total  int
	Synced int
	Errors int
}

// ProcessPending syncs up to limit days that are pending or failed before.
func (p *SyncProcessor) ProcessPending(ctx context.Context, limit int) (SyncStats, error) {
	pending, err := p.storage.GetPendingSync(ctx, limit)
	if err != nil {
		return SyncStats{}, fmt.Errorf("get pending days: %w", err)
	}

	stats := SyncStats{Total: len(pending)}
	if len(pending) == 0 {
		return stats, nil
	}

	slog.DebugContext(ctx, "Processing pending days", "count", len(pending))

	for _, change := range pending {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := p.SyncChange(ctx, change); err != nil {
			slog.WarnContext(ctx, "Sync failed, will retry on next sweep",
				"work_date", change.Date.String(), "version", change.Version, "error", err)
			stats.Errors++
			continue
		}
		stats.Synced++
	}
	return stats, nil
}

// SyncChange applies the current state of one day to the mirror. The stored
// row is authoritative: a stale change still pushes the latest version, and
// only that version is marked synced.
func (p *SyncProcessor) SyncChange(ctx context.Context, change storage.Change) error {
	day, err := p.storage.GetWorkDay(ctx, change.Date)
	if errors.Is(err, storage.ErrNotFound) {
		// Tombstone already applied and purged
		return nil
	}
	if err != nil {
		return fmt.Errorf("get work day %s: %w", change.Date, err)
	}
	if day.SyncStatus == storage.SyncStatusSynced && day.Version >= change.Version {
		slog.DebugContext(ctx, "Work day already synced",
			"work_date", day.Date.String(), "version", day.Version)
		return nil
	}

	if day.Deleted {
		err = p.mirror.Delete(ctx, []core.Date{day.Date})
	} else {
		err = p.mirror.Upsert(ctx, []core.DayEntry{{Date: day.Date, Hours: day.Hours}})
	}
	if err != nil {
		if markErr := p.storage.MarkSyncError(ctx, day.Date); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error", "work_date", day.Date.String(), "error", markErr)
		}
		return fmt.Errorf("apply %s to mirror: %w", day.Date, err)
	}

	if _, err := p.storage.MarkSynced(ctx, day.Date, day.Version); err != nil {
		// The mirror write worked; a later sweep rewrites the same values
		slog.ErrorContext(ctx, "Failed to mark as synced", "work_date", day.Date.String(), "error", err)
	}

	slog.InfoContext(ctx, "Synced work day",
		"work_date", day.Date.String(),
		"version", day.Version,
		"deleted", day.Deleted)
	return nil
}

func (p *SyncProcessor) cleanupSynced(ctx context.Context) {
	n, err := p.storage.PurgeSyncedDeletes(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to purge synced deletes", "error", err)
		return
	}
	if n > 0 {
		slog.InfoContext(ctx, "Purged synced deletes", "count", n)
	}
}
