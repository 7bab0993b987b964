package core

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidTime = errors.New("invalid time of day")

// ParseClockTime parses "HH:MM" into minutes after midnight.
func ParseClockTime(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("%w %q", ErrInvalidTime, s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// SessionDuration returns the hours between start and end ("HH:MM").
// An end at or before the start is taken to be on the following day.
func SessionDuration(start, end string) (float64, error) {
	s, err := ParseClockTime(start)
	if err != nil {
		return 0, err
	}
	e, err := ParseClockTime(end)
	if err != nil {
		return 0, err
	}
	if e <= s {
		e += 24 * 60
	}
	return float64(e-s) / 60, nil
}

// ElapsedHours returns the hours between two instants, never negative.
func ElapsedHours(from, to time.Time) float64 {
	d := to.Sub(from)
	if d < 0 {
		return 0
	}
	return d.Hours()
}
