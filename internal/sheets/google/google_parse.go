package google

import (
	"fmt"
	"strings"

	"workhours/internal/core"
)

// sheetRow is a parsed data row; Row is the 1-based sheet row number.
type sheetRow struct {
	Row   int
	Date  core.Date
	Hours float64
}

// parseWorkLogRows reads values fetched from A1:B. Rows without a valid date
// (the header, cleared rows, notes) or without usable hours are skipped.
func parseWorkLogRows(values [][]interface{}) []sheetRow {
	out := make([]sheetRow, 0, len(values))
	for i, raw := range values {
		cols := toStrings(raw)
		if len(cols) < 2 {
			continue
		}
		d, err := core.ParseDate(cols[0])
		if err != nil {
			continue
		}
		h, ok := core.ParseHoursInput(cols[1])
		if !ok || h < 0 {
			continue
		}
		out = append(out, sheetRow{Row: i + 1, Date: d, Hours: h})
	}
	return out
}

// rowIndex maps each date to its sheet row. If a date appears twice the
// last row wins, matching entriesFromRows.
func rowIndex(rows []sheetRow) map[core.Date]int {
	idx := make(map[core.Date]int, len(rows))
	for _, r := range rows {
		idx[r.Date] = r.Row
	}
	return idx
}

func entriesFromRows(rows []sheetRow) []core.DayEntry {
	set := make(core.DaySet, len(rows))
	for _, r := range rows {
		set.Set(r.Date, r.Hours)
	}
	return set.Entries()
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}
