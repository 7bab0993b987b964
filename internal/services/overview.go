package services

import (
	"time"

	"workhours/internal/core"
)

// Overview is everything the dashboard shows, computed from one snapshot.
type Overview struct {
	Today       core.Date `json:"today"`
	Target      float64   `json:"target"`
	TargetLabel string    `json:"target_label"`

	Week          core.WeekView     `json:"week"`
	WeekDelta     string            `json:"week_delta"`
	Progress      core.WeekProgress `json:"progress"`
	ProgressLabel string            `json:"progress_label"`

	History   core.History `json:"history"`
	BankLabel string       `json:"bank_label"`
	BankTone  string       `json:"bank_tone"`

	Month      core.MonthView `json:"month"`
	MonthTotal string         `json:"month_total"`
	MonthDelta string         `json:"month_delta"`

	Insights      core.Insights `json:"insights"`
	BestDayLabel  string        `json:"best_day_label"`
	CurrentStreak string        `json:"current_streak"`
	BestStreak    string        `json:"best_streak"`

	Dirty              []core.Date `json:"dirty"`
	Editor             bool        `json:"editor"`
	CanEdit            bool        `json:"can_edit"`
	Ready              bool        `json:"ready"`
	Demo               bool        `json:"demo"`
	DemoNotice         string      `json:"demo_notice,omitempty"`
	Theme              string      `json:"theme"`
	ExcludeCurrentWeek bool        `json:"exclude_current_week"`
	TimerStartedAt     *time.Time  `json:"timer_started_at,omitempty"`
}

// BuildOverview derives every view from a snapshot. A zero year or month
// selects the month of snap.Today.
func BuildOverview(snap Snapshot, year, month int) Overview {
	if year == 0 || month < 1 || month > 12 {
		year, month = snap.Today.Year(), snap.Today.Month()
	}
	target := snap.Prefs.DailyTarget

	ov := Overview{
		Today:              snap.Today,
		Target:             target,
		TargetLabel:        core.FormatHours(target) + " per day",
		Week:               core.BuildWeek(snap.Days, target, snap.Today),
		Progress:           core.CurrentWeekProgress(snap.Days, target, snap.Today),
		History:            core.BuildHistory(snap.Days, target, snap.Today, !snap.Prefs.ExcludeCurrentWeek),
		Month:              core.BuildMonth(snap.Days, target, year, month),
		Insights:           core.BuildInsights(snap.Days, target),
		Dirty:              snap.Dirty,
		Editor:             snap.Editor,
		CanEdit:            snap.CanEdit,
		Ready:              snap.Ready,
		Demo:               snap.Demo,
		DemoNotice:         snap.DemoReason,
		Theme:              snap.Prefs.Theme,
		ExcludeCurrentWeek: snap.Prefs.ExcludeCurrentWeek,
		TimerStartedAt:     snap.Prefs.TimerStartedAt,
	}
	ov.WeekDelta = core.FormatSignedHours(ov.Week.TotalDelta)
	ov.ProgressLabel = core.FormatProgress(ov.Progress)
	ov.BankLabel = core.FormatBank(ov.History.Bank)
	ov.BankTone = core.Tone(ov.History.Bank)
	ov.MonthTotal = core.FormatHours(ov.Month.TotalHours)
	ov.MonthDelta = core.FormatSignedHours(ov.Month.TotalDelta)
	ov.BestDayLabel = ov.Insights.BestDayLabel()
	ov.CurrentStreak = core.FormatDays(ov.Insights.Streaks.Current)
	ov.BestStreak = core.FormatDays(ov.Insights.Streaks.Best)
	return ov
}

// IsDirty reports whether d has unsaved edits.
func (o Overview) IsDirty(d core.Date) bool {
	for _, x := range o.Dirty {
		if x == d {
			return true
		}
	}
	return false
}
