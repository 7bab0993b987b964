package core

import (
	"math"
	"strconv"
	"strings"
)

// DefaultTarget is the daily target in hours used when none is configured.
const DefaultTarget = 4.0

// WorkDaysPerWeek is the number of business days a weekly goal spans.
const WorkDaysPerWeek = 5

// NormalizeTarget maps unusable values to the default and clamps negatives
// to zero. Zero is a legal target meaning "no target set".
func NormalizeTarget(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return DefaultTarget
	}
	return math.Max(0, v)
}

// ParseTarget reads a target from text, falling back to DefaultTarget.
func ParseTarget(raw string) float64 {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, ",", "."))
	if raw == "" {
		return DefaultTarget
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return DefaultTarget
	}
	return NormalizeTarget(v)
}
