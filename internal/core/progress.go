package core

import "math"

// WeekProgress tracks the current week against the weekly goal.
type WeekProgress struct {
	Hours   float64 `json:"hours"`
	Goal    float64 `json:"goal"`
	Percent int     `json:"percent"`
	HasGoal bool    `json:"has_goal"`
}

// CurrentWeekProgress compares the week containing today with five times the
// daily target. A zero target yields HasGoal=false and no percentage.
func CurrentWeekProgress(days DaySet, target float64, today Date) WeekProgress {
	w := SummarizeWeek(days, target, today)
	p := WeekProgress{Hours: w.TotalHours, Goal: target * WorkDaysPerWeek}
	if p.Goal <= 0 {
		p.Goal = 0
		return p
	}
	p.HasGoal = true
	p.Percent = int(math.Min(100, math.Round(w.TotalHours/p.Goal*100)))
	return p
}

// Label is the human readable progress line.
func (p WeekProgress) Label() string {
	return FormatProgress(p)
}
