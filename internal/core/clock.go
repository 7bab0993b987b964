package core

import "time"

// Clock supplies the current date to everything that needs "today".
type Clock interface {
	Today() Date
	Now() time.Time
}

// SystemClock reads the wall clock in Location, or local time when nil.
type SystemClock struct {
	Location *time.Location
}

func (c SystemClock) Now() time.Time {
	now := time.Now()
	if c.Location != nil {
		now = now.In(c.Location)
	}
	return now
}

func (c SystemClock) Today() Date {
	return DateOf(c.Now())
}

// FixedClock always reports the same instant. Used in tests and demos.
type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time { return c.T }

func (c FixedClock) Today() Date { return DateOf(c.T) }
