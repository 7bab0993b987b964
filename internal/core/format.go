package core

import (
	"fmt"
	"math"
)

func roundedMinutes(v float64) int {
	if !Countable(v) {
		return 0
	}
	return int(math.Round(math.Abs(v) * 60))
}

// FormatHours renders the magnitude of v as "Xh" or "Xh Ym".
func FormatHours(v float64) string {
	minutes := roundedMinutes(v)
	h, m := minutes/60, minutes%60
	if m == 0 {
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}

// FormatSignedHours is FormatSignedHoursWith(v, true).
func FormatSignedHours(v float64) string {
	return FormatSignedHoursWith(v, true)
}

// FormatSignedHoursWith prefixes FormatHours with "-" for negatives and,
// when includePlus is set, "+" for positives. Values that round to zero
// minutes render as "0h" with no sign.
func FormatSignedHoursWith(v float64, includePlus bool) string {
	if roundedMinutes(v) == 0 {
		return "0h"
	}
	switch {
	case v < 0:
		return "-" + FormatHours(v)
	case includePlus:
		return "+" + FormatHours(v)
	default:
		return FormatHours(v)
	}
}

// FormatDays renders "1 day" or "N days".
func FormatDays(n int) string {
	if n == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", n)
}

// FormatBank renders the bank badge text.
func FormatBank(bank float64) string {
	switch {
	case roundedMinutes(bank) == 0:
		return "0h in bank"
	case bank < 0:
		return FormatHours(bank) + " in debt"
	default:
		return FormatSignedHours(bank) + " in bank"
	}
}

// Tone classifies a balance for styling: "negative", "neutral" or "positive".
func Tone(v float64) string {
	switch {
	case roundedMinutes(v) == 0:
		return "neutral"
	case v < 0:
		return "negative"
	default:
		return "positive"
	}
}

// FormatProgress renders "5h of 20h (25%)", or "5h recorded (no target set)"
// when there is no weekly goal.
func FormatProgress(p WeekProgress) string {
	if !p.HasGoal {
		return FormatHours(p.Hours) + " recorded (no target set)"
	}
	return fmt.Sprintf("%s of %s (%d%%)", FormatHours(p.Hours), FormatHours(p.Goal), p.Percent)
}
