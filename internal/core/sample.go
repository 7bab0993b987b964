package core

import "math"

var sampleOffsets = [3][WorkDaysPerWeek]float64{
	{0.5, 1, -0.5, 1.5, -0.25},
	{1.25, 0.75, -0.25, -0.5, 1},
	{-0.5, 0, -0.25, 0.75, -0.25},
}

// SampleDataset returns three weeks of demo entries starting at the Monday
// two weeks before today, scattered around target in quarter hours.
func SampleDataset(today Date, target float64) DaySet {
	start := today.AddDays(-14).Monday()
	ds := make(DaySet, len(sampleOffsets)*WorkDaysPerWeek)
	for w, week := range sampleOffsets {
		for d, off := range week {
			h := math.Round((target+off)*4) / 4
			ds.Set(start.AddDays(w*7+d), math.Max(0, h))
		}
	}
	return ds
}
