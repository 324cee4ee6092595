package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/spotprice/internal/currency"
	"github.com/tejusbharadwaj/spotprice/internal/interval"
	"github.com/tejusbharadwaj/spotprice/internal/models"
	"github.com/tejusbharadwaj/spotprice/internal/source"
)

const defaultEnergyUnit = "kWh"

// fetchFresh runs the orchestrator and turns the winner into cacheable data.
func (c *Coordinator) fetchFresh(ctx context.Context, area string, settings models.AreaSettings, loc *time.Location, now time.Time) (*models.IntervalPriceData, error) {
	table := c.rateTable(ctx, area)
	today := models.DateOf(now.In(loc))
	currentKey := interval.CurrentKey(now, loc, settings.IntervalMinutes)

	attempt := func(ctx context.Context, a source.Adapter) (*models.ProcessedPrices, error) {
		res, err := a.Fetch(ctx, area)
		if err != nil {
			return nil, err
		}
		return c.process(res, settings, loc, table, today)
	}
	validate := func(p *models.ProcessedPrices) error {
		if _, ok := p.Converted.Today[currentKey]; !ok {
			return fmt.Errorf("%w: %s has no price for current interval %s", models.ErrValidation, p.Source, currentKey)
		}
		return nil
	}

	out, err := c.Orchestrator.Run(ctx, area, c.adapters[area], attempt, validate)
	for _, f := range out.Failures {
		c.Metrics.attempt(area, string(f.Source), string(f.Kind))
	}
	if err != nil {
		return nil, err
	}
	c.Metrics.attempt(area, string(out.Source), "success")

	p := out.Result
	return &models.IntervalPriceData{
		Area:                   area,
		Source:                 out.Source,
		SourceCurrency:         p.SourceCurrency,
		TargetCurrency:         settings.Currency,
		SourceTimezone:         p.SourceTimezone,
		TargetTimezone:         settings.Timezone,
		SourceUnit:             p.SourceUnit,
		EnergyUnit:             energyUnit(settings),
		IntervalMinutes:        settings.IntervalMinutes,
		TodayIntervalPrices:    p.Converted.Today,
		TomorrowIntervalPrices: p.Converted.Tomorrow,
		TodayRawPrices:         p.RawToday,
		TomorrowRawPrices:      p.RawTomorrow,
		VATRate:                settings.VATRate,
		VATIncluded:            settings.IncludeVAT,
		DisplayUnit:            settings.DisplayUnit,
		ExchangeRate:           p.Converted.ExchangeRate,
		RateTimestamp:          p.Converted.RateTimestamp,
		DataDate:               today,
		FetchedAt:              now,
		LastUpdated:            now,
		AttemptedSources:       out.Attempted,
		FallbackSources:        out.Fallback,
	}, nil
}

// process runs one source result through parse, adapt, partition and
// convert.
func (c *Coordinator) process(res *models.SourceResult, settings models.AreaSettings, loc *time.Location, table currency.RateTable, today models.Date) (*models.ProcessedPrices, error) {
	tz := res.Timezone
	if tz == "" {
		tz = "UTC"
	}
	srcLoc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: source timezone %q: %v", models.ErrParse, tz, err)
	}

	instants, stats, err := c.normalizer.ParseInstants(res.IntervalRaw, srcLoc, nil)
	if err != nil {
		return nil, err
	}

	width := res.SourceIntervalMinutes
	if width <= 0 {
		width = settings.IntervalMinutes
	}
	adapted, err := interval.Adapt(instants, width, settings.IntervalMinutes, loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrParse, err)
	}

	norm := c.normalizer.Partition(adapted, loc, &today)
	norm.Collisions += stats.Collisions

	converted, err := currency.NewConverter(settings, table).ConvertPartitions(norm.Today, norm.Tomorrow, res.Currency, res.SourceUnit)
	if err != nil {
		return nil, err
	}

	return &models.ProcessedPrices{
		Source:         res.Source,
		Area:           settings.Area,
		SourceCurrency: strings.ToUpper(res.Currency),
		SourceTimezone: tz,
		SourceUnit:     res.SourceUnit,
		RawToday:       norm.Today,
		RawTomorrow:    norm.Tomorrow,
		Converted:      converted,
		Collisions:     norm.Collisions,
	}, nil
}

// rateTable returns the current rates. On failure an empty table is used so
// same-currency sources still work and the rest fail closed.
func (c *Coordinator) rateTable(ctx context.Context, area string) currency.RateTable {
	table, err := c.Rates.Rates(ctx)
	if err != nil {
		c.Logger.WithField("area", area).WithError(err).Warn("Exchange rates unavailable")
		return currency.RateTable{}
	}
	return table
}

// reconcile re-converts cached raw prices when the area settings changed
// since they were stored. Data that cannot be re-converted is dropped so a
// fresh fetch follows.
func (c *Coordinator) reconcile(ctx context.Context, cached *models.IntervalPriceData, settings models.AreaSettings, log *logrus.Entry) *models.IntervalPriceData {
	have := cached.Settings()
	if sameConversion(have, settings) {
		return cached
	}
	if have.Timezone != settings.Timezone || have.IntervalMinutes != settings.IntervalMinutes {
		log.Info("Cached prices use another timezone or interval, refetching")
		return nil
	}

	converted, err := currency.NewConverter(settings, c.rateTable(ctx, settings.Area)).
		ConvertPartitions(cached.TodayRawPrices, cached.TomorrowRawPrices, cached.SourceCurrency, cached.SourceUnit)
	if err != nil {
		log.WithError(err).Warn("Failed to re-convert cached prices")
		return nil
	}

	out := cached.Clone()
	out.TodayIntervalPrices = converted.Today
	out.TomorrowIntervalPrices = converted.Tomorrow
	out.TargetCurrency = settings.Currency
	out.EnergyUnit = energyUnit(settings)
	out.VATRate = settings.VATRate
	out.VATIncluded = settings.IncludeVAT
	out.DisplayUnit = settings.DisplayUnit
	out.ExchangeRate = converted.ExchangeRate
	out.RateTimestamp = converted.RateTimestamp
	log.Debug("Re-converted cached prices for new area settings")
	return out
}

func sameConversion(a, b models.AreaSettings) bool {
	return a.Timezone == b.Timezone &&
		a.IntervalMinutes == b.IntervalMinutes &&
		strings.EqualFold(a.Currency, b.Currency) &&
		a.IncludeVAT == b.IncludeVAT &&
		(!a.IncludeVAT || a.VATRate == b.VATRate) &&
		a.DisplayUnit == b.DisplayUnit &&
		strings.EqualFold(energyUnit(a), energyUnit(b))
}

func energyUnit(s models.AreaSettings) string {
	if s.EnergyUnit == "" {
		return defaultEnergyUnit
	}
	return s.EnergyUnit
}
