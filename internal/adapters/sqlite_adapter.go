package adapters

import (
	"context"

	"workhours/internal/core"
	"workhours/internal/services"
	"workhours/internal/sheets"
)

var _ sheets.WorkLog = (*SQLiteAdapter)(nil)

// SQLiteAdapter adapts WorkLogService to sheets.WorkLog so the session works
// unchanged on the SQLite + AMQP backend.
type SQLiteAdapter struct {
	service *services.WorkLogService
}

func NewSQLiteAdapter(service *services.WorkLogService) *SQLiteAdapter {
	return &SQLiteAdapter{service: service}
}

// QueryAll implements sheets.WorkLogReader
func (a *SQLiteAdapter) QueryAll(ctx context.Context) ([]core.DayEntry, error) {
	return a.service.ListDays(ctx)
}

// Upsert implements sheets.WorkLogWriter
func (a *SQLiteAdapter) Upsert(ctx context.Context, entries []core.DayEntry) error {
	return a.service.SaveDays(ctx, entries)
}

// Delete implements sheets.WorkLogWriter
func (a *SQLiteAdapter) Delete(ctx context.Context, dates []core.Date) error {
	return a.service.RemoveDays(ctx, dates)
}
