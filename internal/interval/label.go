// Package interval handles fixed-width price intervals: bucketing instants,
// labelling them in a target timezone and adapting series between
// resolutions.
//
// Labels are fixed-width "HH:MM" in the target timezone. On a DST fall-back
// day the wall clock repeats an hour; intervals in the second pass carry
// RepeatSuffix so a 25-hour day still has one distinct label per interval.
package interval

import (
	"time"

	"github.com/tejusbharadwaj/spotprice/internal/models"
)

// RepeatSuffix marks the second occurrence of a repeated wall-clock interval.
const RepeatSuffix = "*"

const labelLayout = "15:04"

// Slot is one interval of a local day.
type Slot struct {
	Label string
	Start time.Time
}

// Label returns the target-local label of the interval starting at t.
func Label(t time.Time, loc *time.Location) string {
	loc = orUTC(loc)
	label := t.In(loc).Format(labelLayout)
	if isRepeatedWallTime(t, loc) {
		label += RepeatSuffix
	}
	return label
}

// isRepeatedWallTime reports whether the wall clock reading of t was already
// shown earlier the same day, i.e. t falls in the second pass of a fall-back
// transition.
func isRepeatedWallTime(t time.Time, loc *time.Location) bool {
	_, offNow := t.In(loc).Zone()
	_, offBefore := t.Add(-3 * time.Hour).In(loc).Zone()
	shift := offBefore - offNow
	if shift <= 0 {
		return false
	}
	const wall = "2006-01-02 15:04"
	earlier := t.Add(-time.Duration(shift) * time.Second).In(loc)
	return earlier.Format(wall) == t.In(loc).Format(wall)
}

// Floor returns the start of the width-minute interval containing t, aligned
// to the wall clock of loc. width must divide 60.
func Floor(t time.Time, widthMinutes int, loc *time.Location) time.Time {
	local := t.In(orUTC(loc))
	offset := time.Duration(local.Minute()%widthMinutes)*time.Minute +
		time.Duration(local.Second())*time.Second +
		time.Duration(local.Nanosecond())
	return t.Add(-offset).UTC()
}

// DayGrid enumerates every interval of the local day d in loc. Its length is
// 96 on a normal day at 15 minutes, 92 on a spring-forward day and 100 on a
// fall-back day.
func DayGrid(d models.Date, loc *time.Location, widthMinutes int) []Slot {
	loc = orUTC(loc)
	start := d.In(loc).UTC()
	end := d.AddDays(1).In(loc).UTC()
	width := time.Duration(widthMinutes) * time.Minute

	slots := make([]Slot, 0, int(end.Sub(start)/width))
	for t := start; t.Before(end); t = t.Add(width) {
		slots = append(slots, Slot{Label: Label(t, loc), Start: t})
	}
	return slots
}

// ExpectedCount is the number of intervals in the local day d.
func ExpectedCount(d models.Date, loc *time.Location, widthMinutes int) int {
	return len(DayGrid(d, loc, widthMinutes))
}

// LabelIndex maps every label of the local day d to its UTC start instant.
func LabelIndex(d models.Date, loc *time.Location, widthMinutes int) map[string]time.Time {
	grid := DayGrid(d, loc, widthMinutes)
	idx := make(map[string]time.Time, len(grid))
	for _, s := range grid {
		idx[s.Label] = s.Start
	}
	return idx
}

// CurrentKey is the label of the interval containing now.
func CurrentKey(now time.Time, loc *time.Location, widthMinutes int) string {
	return Label(Floor(now, widthMinutes, loc), loc)
}

// NextKey is the label of the interval following the one containing now.
func NextKey(now time.Time, loc *time.Location, widthMinutes int) string {
	next := Floor(now, widthMinutes, loc).Add(time.Duration(widthMinutes) * time.Minute)
	return Label(next, loc)
}

func orUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
