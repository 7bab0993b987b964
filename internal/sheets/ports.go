package sheets

import (
	"context"

	"workhours/internal/core"
)

// Ports for outbound adapters. Every backend that can hold the work log
// (memory, SQLite, Google Sheets) implements WorkLog.
type (
	WorkLogReader interface {
		// QueryAll returns every stored entry sorted by date.
		QueryAll(ctx context.Context) ([]core.DayEntry, error)
	}

	WorkLogWriter interface {
		// Upsert inserts or replaces the entries keyed by date.
		Upsert(ctx context.Context, entries []core.DayEntry) error
		// Delete removes the given dates; unknown dates are ignored.
		Delete(ctx context.Context, dates []core.Date) error
	}

	WorkLog interface {
		WorkLogReader
		WorkLogWriter
	}

	// PasswordVerifier checks the shared edit password server side.
	PasswordVerifier interface {
		VerifyPassword(ctx context.Context, password string) (bool, error)
	}
)
