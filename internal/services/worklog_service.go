package services

import (
	"context"
	"fmt"
	"log/slog"

	"workhours/internal/core"
	"workhours/internal/storage"
)

// WorkLogRepository is the local store a WorkLogService writes to first.
type WorkLogRepository interface {
	QueryAll(ctx context.Context) ([]core.DayEntry, error)
	UpsertDays(ctx context.Context, entries []core.DayEntry) ([]storage.Change, error)
	DeleteDays(ctx context.Context, dates []core.Date) ([]storage.Change, error)
	Close() error
}

// SyncPublisher announces changed days to the sync worker.
type SyncPublisher interface {
	PublishWorkDaySync(ctx context.Context, date core.Date, version int64, deleted bool) error
	Close() error
}

// WorkLogService orchestrates work log writes across SQLite and AMQP
type WorkLogService struct {
	storage   WorkLogRepository
	publisher SyncPublisher
}

// NewWorkLogService accepts a nil publisher; days then stay pending until the
// worker sweep picks them up.
func NewWorkLogService(storage WorkLogRepository, publisher SyncPublisher) *WorkLogService {
	return &WorkLogService{
		storage:   storage,
		publisher: publisher,
	}
}

func (s *WorkLogService) ListDays(ctx context.Context) ([]core.DayEntry, error) {
	return s.storage.QueryAll(ctx)
}

// SaveDays stores the entries locally and publishes one sync message per day
func (s *WorkLogService) SaveDays(ctx context.Context, entries []core.DayEntry) error {
	// SQLite first: the request succeeds once the local write is committed
	changes, err := s.storage.UpsertDays(ctx, entries)
	if err != nil {
		return fmt.Errorf("save work days: %w", err)
	}
	s.publishChanges(ctx, changes)
	return nil
}

// RemoveDays tombstones the dates locally and publishes delete messages
func (s *WorkLogService) RemoveDays(ctx context.Context, dates []core.Date) error {
	changes, err := s.storage.DeleteDays(ctx, dates)
	if err != nil {
		return fmt.Errorf("delete work days: %w", err)
	}
	s.publishChanges(ctx, changes)
	return nil
}

func (s *WorkLogService) publishChanges(ctx context.Context, changes []storage.Change) {
	if s.publisher == nil {
		if len(changes) > 0 {
			slog.WarnContext(ctx, "AMQP client not available, skipping sync messages", "count", len(changes))
		}
		return
	}

	for _, c := range changes {
		if err := s.publisher.PublishWorkDaySync(ctx, c.Date, c.Version, c.Deleted); err != nil {
			// Not fatal: the day stays pending and the sweep retries it
			slog.ErrorContext(ctx, "Failed to publish sync message",
				"work_date", c.Date.String(), "version", c.Version, "error", err)
		}
	}
}

// Close closes both storage and AMQP connections
func (s *WorkLogService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close work log service: %v", errs)
	}

	return nil
}
