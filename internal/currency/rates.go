package currency

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tejusbharadwaj/spotprice/internal/models"
)

// RateTable holds exchange rates expressed as units of currency per one unit
// of Base.
type RateTable struct {
	Base      string
	Rates     map[string]float64
	Timestamp time.Time
}

// Rate returns units of currency per base unit.
func (t RateTable) Rate(currency string) (decimal.Decimal, bool) {
	currency = strings.ToUpper(currency)
	if currency == strings.ToUpper(t.Base) {
		return decimal.NewFromInt(1), true
	}
	r, ok := t.Rates[currency]
	if !ok || r <= 0 {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(r), true
}

// Factor returns the multiplier converting an amount in `from` into `to`.
func (t RateTable) Factor(from, to string) (decimal.Decimal, error) {
	fromRate, ok := t.Rate(from)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no exchange rate for %s", models.ErrConversion, from)
	}
	toRate, ok := t.Rate(to)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no exchange rate for %s", models.ErrConversion, to)
	}
	return toRate.Div(fromRate), nil
}

// RateProvider supplies exchange rate tables.
type RateProvider interface {
	Rates(ctx context.Context) (RateTable, error)
}

// StaticRates serves a fixed table, typically from configuration.
type StaticRates struct {
	Table RateTable
}

// NewStaticRates builds a table from base and rates; keys are upper-cased.
func NewStaticRates(base string, rates map[string]float64) *StaticRates {
	table := RateTable{Base: strings.ToUpper(base), Rates: make(map[string]float64, len(rates)), Timestamp: time.Now().UTC()}
	for k, v := range rates {
		table.Rates[strings.ToUpper(k)] = v
	}
	return &StaticRates{Table: table}
}

func (s *StaticRates) Rates(context.Context) (RateTable, error) {
	return s.Table, nil
}
