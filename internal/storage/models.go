package storage

// WorkLog is a row of the work_log table.
type WorkLog struct {
	WorkDate   string
	Hours      float64
	Version    int64
	Deleted    bool
	SyncStatus string
	CreatedAt  string
	UpdatedAt  string
}

const (
	SyncStatusPending = "pending"
	SyncStatusSynced  = "synced"
	SyncStatusError   = "error"
)
