package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"workhours/internal/core"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("work day not found")

const timestampLayout = "2006-01-02 15:04:05"

// WorkDay is a stored day including its sync bookkeeping.
type WorkDay struct {
	Date       core.Date
	Hours      float64
	Version    int64
	Deleted    bool
	SyncStatus string
	UpdatedAt  time.Time
}

// Change identifies one versioned write that still has to reach the mirror.
type Change struct {
	Date    core.Date
	Version int64
	Deleted bool
}

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single writer connection avoids SQLITE_BUSY between concurrent saves.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// QueryAll implements sheets.WorkLogReader
func (r *SQLiteRepository) QueryAll(ctx context.Context) ([]core.DayEntry, error) {
	rows, err := r.queries.ListWorkDays(ctx)
	if err != nil {
		return nil, fmt.Errorf("list work days: %w", err)
	}
	entries := make([]core.DayEntry, 0, len(rows))
	for _, row := range rows {
		d, err := core.ParseDate(row.WorkDate)
		if err != nil {
			slog.WarnContext(ctx, "Skipping work day with bad date", "work_date", row.WorkDate, "error", err)
			continue
		}
		entries = append(entries, core.DayEntry{Date: d, Hours: row.Hours})
	}
	return entries, nil
}

// Upsert implements sheets.WorkLogWriter
func (r *SQLiteRepository) Upsert(ctx context.Context, entries []core.DayEntry) error {
	_, err := r.UpsertDays(ctx, entries)
	return err
}

// Delete implements sheets.WorkLogWriter
func (r *SQLiteRepository) Delete(ctx context.Context, dates []core.Date) error {
	_, err := r.DeleteDays(ctx, dates)
	return err
}

// UpsertDays writes all entries in one transaction and returns the new
// version of each day.
func (r *SQLiteRepository) UpsertDays(ctx context.Context, entries []core.DayEntry) ([]Change, error) {
	for _, e := range entries {
		if err := e.Date.Validate(); err != nil {
			return nil, fmt.Errorf("work day %q: %w", e.Date, err)
		}
		if err := core.ValidateHours(e.Hours); err != nil {
			return nil, fmt.Errorf("work day %s: %w", e.Date, err)
		}
	}

	var changes []Change
	err := r.inTx(ctx, func(q *Queries) error {
		for _, e := range entries {
			row, err := q.UpsertWorkDay(ctx, UpsertWorkDayParams{WorkDate: e.Date.String(), Hours: e.Hours})
			if err != nil {
				return fmt.Errorf("upsert work day %s: %w", e.Date, err)
			}
			changes = append(changes, Change{Date: e.Date, Version: row.Version})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Work days saved to SQLite", "upserts", len(changes))
	return changes, nil
}

// DeleteDays tombstones the dates in one transaction. Dates with no live row
// are skipped and produce no change.
func (r *SQLiteRepository) DeleteDays(ctx context.Context, dates []core.Date) ([]Change, error) {
	var changes []Change
	err := r.inTx(ctx, func(q *Queries) error {
		for _, d := range dates {
			row, err := q.MarkWorkDayDeleted(ctx, d.String())
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return fmt.Errorf("delete work day %s: %w", d, err)
			}
			changes = append(changes, Change{Date: d, Version: row.Version, Deleted: true})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Work days deleted in SQLite", "deletes", len(changes), "requested", len(dates))
	return changes, nil
}

// GetWorkDay returns a day including tombstoned ones.
func (r *SQLiteRepository) GetWorkDay(ctx context.Context, d core.Date) (WorkDay, error) {
	row, err := r.queries.GetWorkDay(ctx, d.String())
	if errors.Is(err, sql.ErrNoRows) {
		return WorkDay{}, ErrNotFound
	}
	if err != nil {
		return WorkDay{}, fmt.Errorf("get work day %s: %w", d, err)
	}
	return toWorkDay(row)
}

// GetPendingSync returns days whose latest version has not reached the mirror.
func (r *SQLiteRepository) GetPendingSync(ctx context.Context, limit int) ([]Change, error) {
	rows, err := r.queries.GetPendingSyncWorkDays(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("get pending sync work days: %w", err)
	}
	changes := make([]Change, 0, len(rows))
	for _, row := range rows {
		d, err := core.ParseDate(row.WorkDate)
		if err != nil {
			continue
		}
		changes = append(changes, Change{Date: d, Version: row.Version, Deleted: row.Deleted})
	}
	return changes, nil
}

// MarkSynced records that version of the day reached the mirror. It reports
// false when a newer version has been written meanwhile.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, d core.Date, version int64) (bool, error) {
	n, err := r.queries.MarkWorkDaySynced(ctx, d.String(), version)
	if err != nil {
		return false, fmt.Errorf("mark work day synced: %w", err)
	}
	if n == 0 {
		slog.InfoContext(ctx, "Work day changed since sync message", "work_date", d.String(), "version", version)
		return false, nil
	}
	slog.DebugContext(ctx, "Work day marked as synced", "work_date", d.String(), "version", version)
	return true, nil
}

func (r *SQLiteRepository) MarkSyncError(ctx context.Context, d core.Date) error {
	if err := r.queries.MarkWorkDaySyncError(ctx, d.String()); err != nil {
		return fmt.Errorf("mark work day sync error: %w", err)
	}
	slog.WarnContext(ctx, "Work day marked with sync error", "work_date", d.String())
	return nil
}

// PurgeSyncedDeletes drops tombstones that the mirror already applied.
func (r *SQLiteRepository) PurgeSyncedDeletes(ctx context.Context) (int64, error) {
	n, err := r.queries.PurgeSyncedDeletes(ctx)
	if err != nil {
		return 0, fmt.Errorf("purge synced deletes: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) inTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(r.queries.WithTx(tx)); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func toWorkDay(row WorkLog) (WorkDay, error) {
	d, err := core.ParseDate(row.WorkDate)
	if err != nil {
		return WorkDay{}, err
	}
	updated, _ := time.Parse(timestampLayout, row.UpdatedAt)
	return WorkDay{
		Date:       d,
		Hours:      row.Hours,
		Version:    row.Version,
		Deleted:    row.Deleted,
		SyncStatus: row.SyncStatus,
		UpdatedAt:  updated,
	}, nil
}
