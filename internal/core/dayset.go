package core

import (
	"errors"
	"math"
	"slices"
	"strconv"
	"strings"
)

var ErrNegativeHours = errors.New("hours cannot be negative")

// DayEntry is the hours recorded for a single date.
type DayEntry struct {
	Date  Date    `json:"date"`
	Hours float64 `json:"hours"`
}

// DaySet is the sparse mapping of dates to recorded hours. A missing date
// means nothing was recorded, which is different from a recorded zero.
type DaySet map[Date]float64

// NewDaySet builds a set from entries; later duplicates win.
func NewDaySet(entries []DayEntry) DaySet {
	ds := make(DaySet, len(entries))
	for _, e := range entries {
		ds[e.Date] = e.Hours
	}
	return ds
}

// Countable reports whether a stored value takes part in sums.
func Countable(hours float64) bool {
	return !math.IsNaN(hours) && !math.IsInf(hours, 0)
}

func (s DaySet) Set(d Date, hours float64) {
	s[d] = hours
}

func (s DaySet) Delete(d Date) {
	delete(s, d)
}

// Hours returns the recorded value for d.
func (s DaySet) Hours(d Date) (float64, bool) {
	h, ok := s[d]
	return h, ok
}

func (s DaySet) Has(d Date) bool {
	_, ok := s[d]
	return ok
}

// Dates returns every recorded date in ascending order.
func (s DaySet) Dates() []Date {
	out := make([]Date, 0, len(s))
	for d := range s {
		out = append(out, d)
	}
	slices.SortFunc(out, compareDates)
	return out
}

// Entries returns every recorded entry in ascending date order.
func (s DaySet) Entries() []DayEntry {
	out := make([]DayEntry, 0, len(s))
	for _, d := range s.Dates() {
		out = append(out, DayEntry{Date: d, Hours: s[d]})
	}
	return out
}

// WeekdayEntries returns countable Monday-Friday entries in ascending order.
func (s DaySet) WeekdayEntries() []DayEntry {
	out := make([]DayEntry, 0, len(s))
	for _, e := range s.Entries() {
		if e.Date.IsWeekday() && Countable(e.Hours) {
			out = append(out, e)
		}
	}
	return out
}

func (s DaySet) Clone() DaySet {
	out := make(DaySet, len(s))
	for d, h := range s {
		out[d] = h
	}
	return out
}

// ParseHoursInput reads a user supplied hours value. Empty or non-numeric
// input returns ok=false, which callers treat as "remove the entry".
// A comma decimal separator is accepted.
func ParseHoursInput(raw string) (float64, bool) {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, ",", "."))
	if raw == "" {
		return 0, false
	}
	h, err := strconv.ParseFloat(raw, 64)
	if err != nil || !Countable(h) {
		return 0, false
	}
	return h, true
}

// ValidateHours rejects values that cannot be stored.
func ValidateHours(hours float64) error {
	if !Countable(hours) {
		return errors.New("hours must be a finite number")
	}
	if hours < 0 {
		return ErrNegativeHours
	}
	return nil
}

func compareDates(a, b Date) int {
	return a.Compare(b.Time)
}
