package currency

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejusbharadwaj/spotprice/internal/models"
)

var rateTime = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

func testRates() RateTable {
	return RateTable{
		Base:      "EUR",
		Rates:     map[string]float64{"SEK": 11.25, "NOK": 11.5, "PLN": 4.3},
		Timestamp: rateTime,
	}
}

func TestConvertUnit(t *testing.T) {
	tests := []struct {
		name     string
		price    float64
		from, to string
		want     float64
	}{
		{"MWh to kWh", 85.0, "MWh", "kWh", 0.085},
		{"kWh to MWh", 0.085, "kWh", "MWh", 85.0},
		{"case insensitive", 100, "mwh", "KWH", 0.1},
		{"Wh to kWh", 0.0001, "Wh", "kWh", 0.1},
		{"same unit", 12.5, "kWh", "kWh", 12.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConvertUnit(tt.price, tt.from, tt.to)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}

	_, err := ConvertUnit(1, "therm", "kWh")
	assert.ErrorIs(t, err, models.ErrConversion)
}

func TestKnownUnit(t *testing.T) {
	for _, unit := range []string{"MWh", "kwh", "Wh"} {
		assert.True(t, KnownUnit(unit), unit)
	}
	for _, unit := range []string{"", "kwH2", "GJ"} {
		assert.False(t, KnownUnit(unit), unit)
	}
}

func TestConverter_FullChain(t *testing.T) {
	c := NewConverter(models.AreaSettings{
		Currency:    "SEK",
		EnergyUnit:  "kWh",
		VATRate:     0.25,
		IncludeVAT:  true,
		DisplayUnit: models.DisplayCents,
	}, testRates())

	out, rate, ts, err := c.Convert(models.IntervalPrices{"10:00": 100, "10:15": -20}, "EUR", "MWh")
	require.NoError(t, err)

	// 100 EUR/MWh -> 0.1 EUR/kWh -> 1.125 SEK/kWh -> 1.40625 with VAT -> 140.625 öre
	assert.InDelta(t, 140.625, out["10:00"], 1e-9)
	assert.InDelta(t, -28.125, out["10:15"], 1e-9)
	require.NotNil(t, rate)
	assert.InDelta(t, 11.25, *rate, 1e-9)
	assert.Equal(t, rateTime, ts)
}

func TestConverter_CrossRateViaBase(t *testing.T) {
	c := NewConverter(models.AreaSettings{Currency: "NOK", EnergyUnit: "MWh", DisplayUnit: models.DisplayDecimal}, testRates())

	out, rate, _, err := c.Convert(models.IntervalPrices{"00:00": 1125}, "SEK", "MWh")
	require.NoError(t, err)
	assert.InDelta(t, 1150.0, out["00:00"], 1e-6)
	assert.InDelta(t, 11.5/11.25, *rate, 1e-9)
}

func TestConverter_VATExcludedAndSameCurrency(t *testing.T) {
	c := NewConverter(models.AreaSettings{Currency: "EUR", EnergyUnit: "kWh", VATRate: 0.25, IncludeVAT: false}, RateTable{})

	out, rate, _, err := c.Convert(models.IntervalPrices{"00:00": 50}, "eur", "MWh")
	require.NoError(t, err)
	assert.InDelta(t, 0.05, out["00:00"], 1e-12)
	assert.Equal(t, 1.0, *rate)
}

func TestConverter_FailsClosedOnMissingRate(t *testing.T) {
	c := NewConverter(models.AreaSettings{Currency: "DKK", EnergyUnit: "kWh"}, testRates())

	out, rate, _, err := c.Convert(models.IntervalPrices{"00:00": 50, "00:15": 51}, "EUR", "MWh")
	assert.ErrorIs(t, err, models.ErrConversion)
	assert.Empty(t, out)
	assert.Nil(t, rate)

	_, err = c.ConvertPartitions(models.IntervalPrices{"00:00": 1}, nil, "EUR", "MWh")
	assert.ErrorIs(t, err, models.ErrConversion)
}

func TestConverter_ConvertPartitions(t *testing.T) {
	c := NewConverter(models.AreaSettings{Currency: "PLN", EnergyUnit: "kWh"}, testRates())

	conv, err := c.ConvertPartitions(
		models.IntervalPrices{"12:00": 100},
		models.IntervalPrices{"12:00": 200},
		"EUR", "MWh",
	)
	require.NoError(t, err)
	assert.InDelta(t, 0.43, conv.Today["12:00"], 1e-9)
	assert.InDelta(t, 0.86, conv.Tomorrow["12:00"], 1e-9)
	assert.Equal(t, "PLN", conv.Currency)
	assert.Equal(t, "kWh", conv.Unit)
	assert.InDelta(t, 4.3, *conv.ExchangeRate, 1e-9)
}
