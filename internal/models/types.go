package models

import "time"

// RawIntervalMap maps a source-native timestamp key to a price. Adapters emit
// UTC ISO-8601 keys; bare HH:MM keys only appear when legacy snapshots are
// reprocessed.
type RawIntervalMap map[string]float64

// InstantPrices maps the UTC start instant of an interval to its price.
type InstantPrices map[time.Time]float64

// IntervalPrices maps a target-local interval label ("HH:MM") to a price.
type IntervalPrices map[string]float64

// Clone returns a deep copy. A nil map clones to an empty one.
func (p IntervalPrices) Clone() IntervalPrices {
	out := make(IntervalPrices, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// SourceResult is what a source adapter hands to the pipeline.
type SourceResult struct {
	Source                SourceKind
	Area                  string
	IntervalRaw           RawIntervalMap
	Currency              string
	Timezone              string
	SourceUnit            string
	SourceIntervalMinutes int
	RawData               any
}

// NormalizedIntervalMap is the output of timestamp normalization. Today and
// Tomorrow are keyed by target-local interval labels; Other is keyed by the
// RFC3339 instant in the target timezone because it spans several dates.
type NormalizedIntervalMap struct {
	Today      IntervalPrices
	Tomorrow   IntervalPrices
	Other      map[string]float64
	Collisions int
	Skipped    int
}

// NewNormalizedIntervalMap returns a map with every partition allocated.
func NewNormalizedIntervalMap() *NormalizedIntervalMap {
	return &NormalizedIntervalMap{
		Today:    IntervalPrices{},
		Tomorrow: IntervalPrices{},
		Other:    map[string]float64{},
	}
}

// ConvertedIntervalMap holds display-ready prices after unit, currency, VAT
// and subunit conversion.
type ConvertedIntervalMap struct {
	Today         IntervalPrices
	Tomorrow      IntervalPrices
	Currency      string
	Unit          string
	ExchangeRate  *float64
	RateTimestamp time.Time
}

// ProcessedPrices is a candidate result from one source after the whole
// normalize/adapt/convert chain, prior to validation.
type ProcessedPrices struct {
	Source         SourceKind
	Area           string
	SourceCurrency string
	SourceTimezone string
	SourceUnit     string
	RawToday       IntervalPrices
	RawTomorrow    IntervalPrices
	Converted      ConvertedIntervalMap
	Collisions     int
}

// AreaSettings are the per-area target settings prices are converted to.
type AreaSettings struct {
	Area            string
	Timezone        string
	Currency        string
	VATRate         float64
	IncludeVAT      bool
	DisplayUnit     DisplayUnit
	EnergyUnit      string
	IntervalMinutes int
}

// DisplayUnit selects between the main currency unit and its subunit.
type DisplayUnit string

const (
	DisplayDecimal DisplayUnit = "decimal"
	DisplayCents   DisplayUnit = "cents"
)

// IntervalPriceData is the cached, authoritative per-area state. Validity and
// statistics are never stored on it; they are recomputed from the maps.
type IntervalPriceData struct {
	Area                   string         `json:"area"`
	Source                 SourceKind     `json:"source"`
	SourceCurrency         string         `json:"source_currency"`
	TargetCurrency         string         `json:"target_currency"`
	SourceTimezone         string         `json:"source_timezone"`
	TargetTimezone         string         `json:"target_timezone"`
	SourceUnit             string         `json:"source_unit"`
	EnergyUnit             string         `json:"energy_unit"`
	IntervalMinutes        int            `json:"interval_minutes"`
	TodayIntervalPrices    IntervalPrices `json:"today_interval_prices"`
	TomorrowIntervalPrices IntervalPrices `json:"tomorrow_interval_prices"`
	TodayRawPrices         IntervalPrices `json:"today_raw_prices"`
	TomorrowRawPrices      IntervalPrices `json:"tomorrow_raw_prices"`
	VATRate                float64        `json:"vat_rate"`
	VATIncluded            bool           `json:"vat_included"`
	DisplayUnit            DisplayUnit    `json:"display_unit"`
	ExchangeRate           *float64       `json:"exchange_rate,omitempty"`
	RateTimestamp          time.Time      `json:"rate_timestamp,omitempty"`
	DataDate               Date           `json:"data_date"`
	FetchedAt              time.Time      `json:"fetched_at"`
	LastUpdated            time.Time      `json:"last_updated"`
	MigratedFromTomorrow   bool           `json:"migrated_from_tomorrow"`
	AttemptedSources       []SourceKind   `json:"attempted_sources"`
	FallbackSources        []SourceKind   `json:"fallback_sources"`
}

// Clone returns a deep copy so callers never share maps with the cache slot.
func (d *IntervalPriceData) Clone() *IntervalPriceData {
	if d == nil {
		return nil
	}
	c := *d
	c.TodayIntervalPrices = d.TodayIntervalPrices.Clone()
	c.TomorrowIntervalPrices = d.TomorrowIntervalPrices.Clone()
	c.TodayRawPrices = d.TodayRawPrices.Clone()
	c.TomorrowRawPrices = d.TomorrowRawPrices.Clone()
	c.AttemptedSources = append([]SourceKind(nil), d.AttemptedSources...)
	c.FallbackSources = append([]SourceKind(nil), d.FallbackSources...)
	if d.ExchangeRate != nil {
		rate := *d.ExchangeRate
		c.ExchangeRate = &rate
	}
	return &c
}

// Settings reports the area settings the cached prices were converted with.
func (d *IntervalPriceData) Settings() AreaSettings {
	return AreaSettings{
		Area:            d.Area,
		Timezone:        d.TargetTimezone,
		Currency:        d.TargetCurrency,
		VATRate:         d.VATRate,
		IncludeVAT:      d.VATIncluded,
		DisplayUnit:     d.DisplayUnit,
		EnergyUnit:      d.EnergyUnit,
		IntervalMinutes: d.IntervalMinutes,
	}
}

// DataValidity describes how far cached data reaches as of a given instant.
type DataValidity struct {
	LastValidInterval     time.Time `json:"last_valid_interval"`
	DataValidUntil        time.Time `json:"data_valid_until"`
	TodayIntervalCount    int       `json:"today_interval_count"`
	TomorrowIntervalCount int       `json:"tomorrow_interval_count"`
	IntervalCount         int       `json:"interval_count"`
	HasCurrentInterval    bool      `json:"has_current_interval"`
	HasMinimumData        bool      `json:"has_minimum_data"`
	TomorrowStale         bool      `json:"tomorrow_stale"`
}

// PriceStatistics summarises one partition.
type PriceStatistics struct {
	Average       float64  `json:"avg"`
	Min           float64  `json:"min"`
	Max           float64  `json:"max"`
	MinTimestamps []string `json:"min_timestamps"`
	MaxTimestamps []string `json:"max_timestamps"`
	IntervalCount int      `json:"interval_count"`
	Expected      int      `json:"expected_intervals"`
	CompleteData  bool     `json:"complete_data"`
}

// PipelineResult is what consumers receive from a fetch cycle.
type PipelineResult struct {
	IntervalPriceData

	CurrentPrice       *float64         `json:"current_price"`
	NextIntervalPrice  *float64         `json:"next_interval_price"`
	CurrentIntervalKey string           `json:"current_interval_key"`
	NextIntervalKey    string           `json:"next_interval_key"`
	Statistics         PriceStatistics  `json:"statistics"`
	TomorrowStatistics *PriceStatistics `json:"tomorrow_statistics,omitempty"`
	DataValidity       DataValidity     `json:"data_validity"`
	HasTomorrowPrices  bool             `json:"has_tomorrow_prices"`
	UsingCachedData    bool             `json:"using_cached_data"`
	Error              string           `json:"error,omitempty"`
}
