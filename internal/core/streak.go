package core

import (
	"slices"
	"time"
)

// StreakState holds the current and best run of target-meeting business days.
type StreakState struct {
	Current int `json:"current"`
	Best    int `json:"best"`
}

// ComputeStreaks walks weekday entries in date order. A day is a hit when its
// hours reach the target. Hits on consecutive business days extend the run;
// Friday followed by the next Monday counts as consecutive. A miss resets the
// run. Current is the run length at the last entry.
func ComputeStreaks(entries []DayEntry, target float64) StreakState {
	sorted := slices.Clone(entries)
	slices.SortStableFunc(sorted, func(a, b DayEntry) int { return compareDates(a.Date, b.Date) })

	var (
		st      StreakState
		running int
		prev    Date
		hasPrev bool
	)
	for _, e := range sorted {
		if !e.Date.IsWeekday() || !Countable(e.Hours) {
			continue
		}
		if e.Hours < target {
			running = 0
			hasPrev = false
			continue
		}
		if hasPrev && nextBusinessDay(prev, e.Date) {
			running++
		} else {
			running = 1
		}
		prev, hasPrev = e.Date, true
		if running > st.Best {
			st.Best = running
		}
	}
	st.Current = running
	return st
}

func nextBusinessDay(prev, next Date) bool {
	gap := prev.DaysUntil(next)
	return gap == 1 || (prev.Weekday() == time.Friday && gap == 3)
}
