package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"workhours/internal/core"
)

// ExportFilename is the download name of the CSV export.
const ExportFilename = "work-hours.csv"

var exportHeader = []string{"date", "hours", "delta_vs_target"}

// WriteCSV writes one row per recorded date in ascending order, with the
// hours and the signed delta against target formatted for display.
func WriteCSV(w io.Writer, days core.DaySet, target float64) error {
	entries := days.Entries()
	if len(entries) == 0 {
		return ErrNoData
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, e := range entries {
		hours := e.Hours
		if !core.Countable(hours) {
			hours = 0
		}
		row := []string{
			e.Date.String(),
			core.FormatHours(hours),
			core.FormatSignedHours(core.Delta(hours, target)),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// ExportCSV writes the current work log of the session.
func (s *Session) ExportCSV(ctx context.Context, w io.Writer) error {
	snap := s.Snapshot(ctx)
	return WriteCSV(w, snap.Days, snap.Prefs.DailyTarget)
}
