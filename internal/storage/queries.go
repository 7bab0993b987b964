package storage

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

const workLogColumns = `work_date, hours, version, deleted, sync_status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkLog(row rowScanner) (WorkLog, error) {
	var i WorkLog
	err := row.Scan(
		&i.WorkDate,
		&i.Hours,
		&i.Version,
		&i.Deleted,
		&i.SyncStatus,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

func scanWorkLogs(rows *sql.Rows) ([]WorkLog, error) {
	defer rows.Close()
	var items []WorkLog
	for rows.Next() {
		i, err := scanWorkLog(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listWorkDays = `SELECT ` + workLogColumns + `
FROM work_log
WHERE deleted = 0
ORDER BY work_date`

func (q *Queries) ListWorkDays(ctx context.Context) ([]WorkLog, error) {
	rows, err := q.db.QueryContext(ctx, listWorkDays)
	if err != nil {
		return nil, err
	}
	return scanWorkLogs(rows)
}

const getWorkDay = `SELECT ` + workLogColumns + `
FROM work_log
WHERE work_date = ?`

func (q *Queries) GetWorkDay(ctx context.Context, workDate string) (WorkLog, error) {
	return scanWorkLog(q.db.QueryRowContext(ctx, getWorkDay, workDate))
}

const upsertWorkDay = `INSERT INTO work_log (work_date, hours)
VALUES (?, ?)
ON CONFLICT (work_date) DO UPDATE SET
    hours = excluded.hours,
    deleted = 0,
    version = work_log.version + 1,
    sync_status = 'pending',
    updated_at = strftime('%Y-%m-%d %H:%M:%S', 'now')
RETURNING ` + workLogColumns

type UpsertWorkDayParams struct {
	WorkDate string
	Hours    float64
}

func (q *Queries) UpsertWorkDay(ctx context.Context, arg UpsertWorkDayParams) (WorkLog, error) {
	return scanWorkLog(q.db.QueryRowContext(ctx, upsertWorkDay, arg.WorkDate, arg.Hours))
}

const markWorkDayDeleted = `UPDATE work_log SET
    deleted = 1,
    version = version + 1,
    sync_status = 'pending',
    updated_at = strftime('%Y-%m-%d %H:%M:%S', 'now')
WHERE work_date = ? AND deleted = 0
RETURNING ` + workLogColumns

// MarkWorkDayDeleted tombstones a day so the deletion can be synced.
// Returns sql.ErrNoRows when the day is absent or already deleted.
func (q *Queries) MarkWorkDayDeleted(ctx context.Context, workDate string) (WorkLog, error) {
	return scanWorkLog(q.db.QueryRowContext(ctx, markWorkDayDeleted, workDate))
}

const getPendingSyncWorkDays = `SELECT ` + workLogColumns + `
FROM work_log
WHERE sync_status IN ('pending', 'error')
ORDER BY updated_at, work_date
LIMIT ?`

func (q *Queries) GetPendingSyncWorkDays(ctx context.Context, limit int64) ([]WorkLog, error) {
	rows, err := q.db.QueryContext(ctx, getPendingSyncWorkDays, limit)
	if err != nil {
		return nil, err
	}
	return scanWorkLogs(rows)
}

const markWorkDaySynced = `UPDATE work_log
SET sync_status = 'synced'
WHERE work_date = ? AND version = ?`

// MarkWorkDaySynced only marks the row when the synced version is still the
// latest; a newer edit stays pending.
func (q *Queries) MarkWorkDaySynced(ctx context.Context, workDate string, version int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, markWorkDaySynced, workDate, version)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const markWorkDaySyncError = `UPDATE work_log
SET sync_status = 'error'
WHERE work_date = ?`

func (q *Queries) MarkWorkDaySyncError(ctx context.Context, workDate string) error {
	_, err := q.db.ExecContext(ctx, markWorkDaySyncError, workDate)
	return err
}

const purgeSyncedDeletes = `DELETE FROM work_log
WHERE deleted = 1 AND sync_status = 'synced'`

func (q *Queries) PurgeSyncedDeletes(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx, purgeSyncedDeletes)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
