package core

// Insights are the headline numbers over all recorded weekdays.
type Insights struct {
	TotalHours   float64     `json:"total_hours"`
	RecordedDays int         `json:"recorded_days"`
	AverageDay   float64     `json:"average_day"`
	BestDay      *DayEntry   `json:"best_day,omitempty"`
	Streaks      StreakState `json:"streaks"`
}

// BuildInsights computes totals, the per-day average and the best day.
// The best day is the earliest entry with the greatest positive hours.
func BuildInsights(days DaySet, target float64) Insights {
	entries := days.WeekdayEntries()
	in := Insights{RecordedDays: len(entries)}
	for i, e := range entries {
		in.TotalHours += e.Hours
		if e.Hours <= 0 {
			continue
		}
		if in.BestDay == nil || e.Hours > in.BestDay.Hours {
			in.BestDay = &entries[i]
		}
	}
	if in.RecordedDays > 0 {
		in.AverageDay = in.TotalHours / float64(in.RecordedDays)
	}
	in.Streaks = ComputeStreaks(entries, target)
	return in
}

// BestDayLabel renders "Best day: Mon 2024-06-10 at 4h 30m".
func (in Insights) BestDayLabel() string {
	if in.BestDay == nil {
		return "Best day: none yet"
	}
	d := in.BestDay
	return "Best day: " + d.Date.WeekdayName() + " " + d.Date.String() + " at " + FormatHours(d.Hours)
}
