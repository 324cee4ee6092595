package store

import (
	"strings"
	"time"

	"github.com/tejusbharadwaj/spotprice/internal/interval"
	"github.com/tejusbharadwaj/spotprice/internal/models"
	"github.com/tejusbharadwaj/spotprice/internal/timestamp"
)

const defaultIntervalMinutes = 15

var labelParser = timestamp.NewNormalizer(nil)

// IsTomorrowStale reports whether data holds tomorrow prices that were
// fetched before the current local day began. Such prices belong to a
// tomorrow that has already arrived and must not count as future coverage.
func IsTomorrowStale(data *models.IntervalPriceData, now time.Time, loc *time.Location) bool {
	if data == nil || len(data.TomorrowIntervalPrices) == 0 || data.FetchedAt.IsZero() {
		return false
	}
	return models.DateOf(data.FetchedAt.In(loc)).Before(models.DateOf(now.In(loc)))
}

// CalculateValidity derives coverage from the live interval maps. It is
// never cached: counts always reflect the maps at the time of the call.
func CalculateValidity(data *models.IntervalPriceData, now time.Time, currentKey string, loc *time.Location) models.DataValidity {
	var v models.DataValidity
	if data == nil {
		return v
	}
	width := data.IntervalMinutes
	if width <= 0 {
		width = defaultIntervalMinutes
	}
	today := models.DateOf(now.In(loc))
	stale := IsTomorrowStale(data, now, loc)

	v.TomorrowStale = stale
	v.TodayIntervalCount = len(data.TodayIntervalPrices)
	if !stale {
		v.TomorrowIntervalCount = len(data.TomorrowIntervalPrices)
	}
	v.IntervalCount = v.TodayIntervalCount + v.TomorrowIntervalCount

	last := latestInstant(data.TodayIntervalPrices, today, loc, width)
	if !stale {
		if t := latestInstant(data.TomorrowIntervalPrices, today.AddDays(1), loc, width); t.After(last) {
			last = t
		}
	}

	_, v.HasCurrentInterval = data.TodayIntervalPrices[currentKey]
	if !last.IsZero() {
		v.LastValidInterval = last
		v.DataValidUntil = last.Add(time.Duration(width) * time.Minute)
	}
	endOfDay := today.AddDays(1).In(loc)
	v.HasMinimumData = v.HasCurrentInterval && !v.DataValidUntil.Before(endOfDay)
	return v
}

// latestInstant resolves the labels of one partition on date d and returns
// the latest start instant.
func latestInstant(prices models.IntervalPrices, d models.Date, loc *time.Location, width int) time.Time {
	if len(prices) == 0 {
		return time.Time{}
	}
	idx := interval.LabelIndex(d, loc, width)
	var last time.Time
	for label := range prices {
		t, ok := resolveLabel(label, d, loc, idx)
		if ok && t.After(last) {
			last = t
		}
	}
	return last
}

func resolveLabel(label string, d models.Date, loc *time.Location, idx map[string]time.Time) (time.Time, bool) {
	if t, ok := idx[label]; ok {
		return t, true
	}
	// Labels off the grid come from legacy snapshots.
	t, err := labelParser.ParseTimestamp(strings.TrimSuffix(label, interval.RepeatSuffix), loc, &d)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
