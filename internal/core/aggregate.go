package core

import "slices"

// Delta is the difference between worked hours and the daily target.
func Delta(hours, target float64) float64 {
	return hours - target
}

// WeekSummary aggregates the recorded weekdays of one ISO week.
type WeekSummary struct {
	WeekStart  Date    `json:"week_start"`
	TotalHours float64 `json:"total_hours"`
	TotalDelta float64 `json:"total_delta"`
	Days       int     `json:"days"`
}

// WeekEnd is the Friday closing the week.
func (w WeekSummary) WeekEnd() Date {
	return w.WeekStart.AddDays(WorkDaysPerWeek - 1)
}

func (w *WeekSummary) add(hours, target float64) {
	w.TotalHours += hours
	w.TotalDelta += Delta(hours, target)
	w.Days++
}

// SummarizeWeek totals the Monday-Friday entries of the week containing day.
func SummarizeWeek(days DaySet, target float64, day Date) WeekSummary {
	start := day.Monday()
	s := WeekSummary{WeekStart: start}
	for i := 0; i < WorkDaysPerWeek; i++ {
		h, ok := days.Hours(start.AddDays(i))
		if !ok || !Countable(h) {
			continue
		}
		s.add(h, target)
	}
	return s
}

// HistoryWeek is one week of the history with the bank balance after it.
type HistoryWeek struct {
	WeekSummary
	Bank float64 `json:"bank"`
}

// History is the ascending list of recorded weeks and the final bank.
type History struct {
	Weeks               []HistoryWeek `json:"weeks"`
	Bank                float64       `json:"bank"`
	IncludesCurrentWeek bool          `json:"includes_current_week"`
}

// Newest returns the weeks most recent first, for display.
func (h History) Newest() []HistoryWeek {
	out := slices.Clone(h.Weeks)
	slices.Reverse(out)
	return out
}

// BuildHistory groups weekday entries by week and accumulates the bank in
// week order. When includeCurrent is false the week containing today is left
// out of both the rows and the bank.
func BuildHistory(days DaySet, target float64, today Date, includeCurrent bool) History {
	current := today.Monday()
	byWeek := make(map[Date]*WeekSummary)
	for _, e := range days.WeekdayEntries() {
		start := e.Date.Monday()
		if !includeCurrent && start == current {
			continue
		}
		w, ok := byWeek[start]
		if !ok {
			w = &WeekSummary{WeekStart: start}
			byWeek[start] = w
		}
		w.add(e.Hours, target)
	}

	starts := make([]Date, 0, len(byWeek))
	for start := range byWeek {
		starts = append(starts, start)
	}
	slices.SortFunc(starts, compareDates)

	h := History{
		Weeks:               make([]HistoryWeek, 0, len(starts)),
		IncludesCurrentWeek: includeCurrent,
	}
	for _, start := range starts {
		w := byWeek[start]
		h.Bank += w.TotalDelta
		h.Weeks = append(h.Weeks, HistoryWeek{WeekSummary: *w, Bank: h.Bank})
	}
	return h
}

// DayView is one row of a week or month grid.
type DayView struct {
	Date     Date    `json:"date"`
	Weekday  string  `json:"weekday"`
	Weekend  bool    `json:"weekend"`
	Hours    float64 `json:"hours"`
	Recorded bool    `json:"recorded"`
	Delta    float64 `json:"delta"`
}

func dayView(days DaySet, target float64, d Date) DayView {
	h, ok := days.Hours(d)
	if ok && !Countable(h) {
		ok = false
		h = 0
	}
	return DayView{
		Date:     d,
		Weekday:  d.WeekdayName(),
		Weekend:  !d.IsWeekday(),
		Hours:    h,
		Recorded: ok,
		Delta:    Delta(h, target),
	}
}

// WeekView is the editable grid of one business week.
type WeekView struct {
	WeekSummary
	Rows []DayView `json:"rows"`
}

// BuildWeek returns the Monday-Friday rows of the week containing day.
func BuildWeek(days DaySet, target float64, day Date) WeekView {
	v := WeekView{WeekSummary: SummarizeWeek(days, target, day)}
	for i := 0; i < WorkDaysPerWeek; i++ {
		v.Rows = append(v.Rows, dayView(days, target, v.WeekStart.AddDays(i)))
	}
	return v
}

// MonthView lists every calendar day of a month. Totals cover recorded
// weekdays only, matching the history.
type MonthView struct {
	Year       int       `json:"year"`
	Month      int       `json:"month"`
	Days       []DayView `json:"days"`
	TotalHours float64   `json:"total_hours"`
	TotalDelta float64   `json:"total_delta"`
}

// Key returns the YYYY-MM key of the month.
func (m MonthView) Key() string {
	return FormatMonth(m.Year, m.Month)
}

// BuildMonth produces a row for each day of the month. Unrecorded days carry
// hours 0 and a delta of -target but do not count towards the totals.
func BuildMonth(days DaySet, target float64, year, month int) MonthView {
	first := NewDate(year, month, 1)
	m := MonthView{Year: first.Year(), Month: first.Month()}
	n := DaysInMonth(m.Year, m.Month)
	m.Days = make([]DayView, 0, n)
	for i := 0; i < n; i++ {
		row := dayView(days, target, first.AddDays(i))
		m.Days = append(m.Days, row)
		if row.Recorded && !row.Weekend {
			m.TotalHours += row.Hours
			m.TotalDelta += row.Delta
		}
	}
	return m
}
