package pipeline

import (
	"errors"
	"time"

	"github.com/tejusbharadwaj/spotprice/internal/interval"
	"github.com/tejusbharadwaj/spotprice/internal/models"
	"github.com/tejusbharadwaj/spotprice/internal/store"
)

// build derives the consumer view of data as of now. Validity and
// statistics are computed here on every call and never stored.
func (c *Coordinator) build(data *models.IntervalPriceData, now time.Time, loc *time.Location, cached bool, errMsg string) *models.PipelineResult {
	width := data.IntervalMinutes
	if width <= 0 {
		width = c.opts.intervalMinutes
	}
	today := models.DateOf(now.In(loc))
	currentKey := interval.CurrentKey(now, loc, width)
	nextKey := interval.NextKey(now, loc, width)
	validity := store.CalculateValidity(data, now, currentKey, loc)

	r := &models.PipelineResult{
		IntervalPriceData:  *data.Clone(),
		CurrentIntervalKey: currentKey,
		NextIntervalKey:    nextKey,
		DataValidity:       validity,
		UsingCachedData:    cached,
		Error:              errMsg,
	}
	if validity.TomorrowStale {
		r.TomorrowIntervalPrices = models.IntervalPrices{}
		r.TomorrowRawPrices = models.IntervalPrices{}
	}

	if p, ok := r.TodayIntervalPrices[currentKey]; ok {
		r.CurrentPrice = &p
	}
	next := r.TodayIntervalPrices
	nextStart := interval.Floor(now, width, loc).Add(time.Duration(width) * time.Minute)
	if models.DateOf(nextStart.In(loc)).After(today) {
		next = r.TomorrowIntervalPrices
	}
	if p, ok := next[nextKey]; ok {
		r.NextIntervalPrice = &p
	}

	r.Statistics = store.CalculateStatistics(r.TodayIntervalPrices, today, loc, width, c.opts.threshold)
	r.HasTomorrowPrices = len(r.TomorrowIntervalPrices) > 0
	if r.HasTomorrowPrices {
		ts := store.CalculateStatistics(r.TomorrowIntervalPrices, today.AddDays(1), loc, width, c.opts.threshold)
		r.TomorrowStatistics = &ts
	}

	c.Metrics.coverage(r.Area, validity.DataValidUntil, validity.TodayIntervalCount, validity.TomorrowIntervalCount)
	return r
}

// failed builds an error result, over cached data when there is any.
func (c *Coordinator) failed(settings models.AreaSettings, cached *models.IntervalPriceData, now time.Time, err error) *models.PipelineResult {
	entry := c.Logger.WithField("area", settings.Area).WithError(err)
	if errors.Is(err, models.ErrRateLimited) {
		entry.Warn("Fetch cycle rate limited")
	} else {
		entry.Error("Fetch cycle failed")
	}

	loc, lerr := time.LoadLocation(settings.Timezone)
	if lerr != nil {
		loc = time.UTC
	}
	if cached != nil {
		return c.build(cached, now, loc, true, err.Error())
	}

	width := settings.IntervalMinutes
	if width <= 0 {
		width = c.opts.intervalMinutes
	}
	empty := &models.IntervalPriceData{
		Area:                   settings.Area,
		TargetCurrency:         settings.Currency,
		TargetTimezone:         settings.Timezone,
		EnergyUnit:             energyUnit(settings),
		IntervalMinutes:        width,
		VATRate:                settings.VATRate,
		VATIncluded:            settings.IncludeVAT,
		DisplayUnit:            settings.DisplayUnit,
		TodayIntervalPrices:    models.IntervalPrices{},
		TomorrowIntervalPrices: models.IntervalPrices{},
		TodayRawPrices:         models.IntervalPrices{},
		TomorrowRawPrices:      models.IntervalPrices{},
	}
	return c.build(empty, now, loc, false, err.Error())
}
