// Package currency converts interval prices between energy units,
// currencies and display subunits, and applies VAT.
package currency

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tejusbharadwaj/spotprice/internal/models"
)

// kWh contained in one unit.
var energyUnits = map[string]decimal.Decimal{
	"mwh": decimal.NewFromInt(1000),
	"kwh": decimal.NewFromInt(1),
	"wh":  decimal.New(1, -3),
}

// KnownUnit reports whether unit is an energy unit prices can be quoted in.
func KnownUnit(unit string) bool {
	_, ok := energyUnits[strings.ToLower(unit)]
	return ok
}

// pricePrecision is the number of decimal places converted prices keep.
const pricePrecision = 8

// unitFactor returns the multiplier turning a price per `from` into a price
// per `to`.
func unitFactor(from, to string) (decimal.Decimal, error) {
	f, ok := energyUnits[strings.ToLower(from)]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: unknown energy unit %q", models.ErrConversion, from)
	}
	t, ok := energyUnits[strings.ToLower(to)]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: unknown energy unit %q", models.ErrConversion, to)
	}
	return t.Div(f), nil
}

// ConvertUnit converts a single price between energy units.
func ConvertUnit(price float64, from, to string) (float64, error) {
	factor, err := unitFactor(from, to)
	if err != nil {
		return 0, err
	}
	out, _ := decimal.NewFromFloat(price).Mul(factor).Round(pricePrecision).Float64()
	return out, nil
}

// Converter applies the conversion chain for one area: energy unit, currency,
// VAT, display subunit, in that order.
type Converter struct {
	Target models.AreaSettings
	Rates  RateTable
}

// NewConverter returns a converter for the given area settings and rates.
func NewConverter(target models.AreaSettings, rates RateTable) *Converter {
	return &Converter{Target: target, Rates: rates}
}

// Convert converts prices quoted in sourceCurrency per sourceUnit. It fails
// closed: when a required exchange rate is missing nothing is converted and
// the rate is nil.
func (c *Converter) Convert(prices models.IntervalPrices, sourceCurrency, sourceUnit string) (models.IntervalPrices, *float64, time.Time, error) {
	factor, rate, err := c.factor(sourceCurrency, sourceUnit)
	if err != nil {
		return models.IntervalPrices{}, nil, time.Time{}, err
	}

	out := make(models.IntervalPrices, len(prices))
	for label, price := range prices {
		v, _ := decimal.NewFromFloat(price).Mul(factor).Round(pricePrecision).Float64()
		out[label] = v
	}

	r, _ := rate.Float64()
	return out, &r, c.Rates.Timestamp, nil
}

// ConvertPartitions converts today and tomorrow together so both share one
// rate, or neither is converted.
func (c *Converter) ConvertPartitions(today, tomorrow models.IntervalPrices, sourceCurrency, sourceUnit string) (models.ConvertedIntervalMap, error) {
	convToday, rate, ts, err := c.Convert(today, sourceCurrency, sourceUnit)
	if err != nil {
		return models.ConvertedIntervalMap{}, err
	}
	convTomorrow, _, _, err := c.Convert(tomorrow, sourceCurrency, sourceUnit)
	if err != nil {
		return models.ConvertedIntervalMap{}, err
	}
	return models.ConvertedIntervalMap{
		Today:         convToday,
		Tomorrow:      convTomorrow,
		Currency:      c.Target.Currency,
		Unit:          c.Target.EnergyUnit,
		ExchangeRate:  rate,
		RateTimestamp: ts,
	}, nil
}

func (c *Converter) factor(sourceCurrency, sourceUnit string) (decimal.Decimal, decimal.Decimal, error) {
	targetUnit := c.Target.EnergyUnit
	if targetUnit == "" {
		targetUnit = "kWh"
	}
	factor, err := unitFactor(sourceUnit, targetUnit)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	rate := decimal.NewFromInt(1)
	if !strings.EqualFold(sourceCurrency, c.Target.Currency) {
		rate, err = c.Rates.Factor(sourceCurrency, c.Target.Currency)
		if err != nil {
			return decimal.Zero, decimal.Zero, err
		}
	}
	factor = factor.Mul(rate)

	if c.Target.IncludeVAT && c.Target.VATRate != 0 {
		factor = factor.Mul(decimal.NewFromInt(1).Add(decimal.NewFromFloat(c.Target.VATRate)))
	}
	if c.Target.DisplayUnit == models.DisplayCents {
		factor = factor.Mul(decimal.NewFromInt(100))
	}
	return factor, rate, nil
}
