package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/tejusbharadwaj/spotprice/internal/currency"
	"github.com/tejusbharadwaj/spotprice/internal/models"
)

var (
	supportedIntervals = map[int]bool{15: true, 30: true, 60: true}
	supportedModes     = map[string]bool{"sequential": true, "parallel": true}
	supportedDrivers   = map[string]bool{"memory": true, "postgres": true, "sqlite": true, "redis": true}
	supportedProviders = map[string]bool{"static": true, "ecb": true}
)

// Validate checks the configuration and reports the first problem found.
func (c *Config) Validate() error {
	p := c.Pipeline
	if !supportedIntervals[p.IntervalMinutes] {
		return configErr("pipeline.interval_minutes must be 15, 30 or 60, got %d", p.IntervalMinutes)
	}
	if !supportedModes[strings.ToLower(p.Mode)] {
		return configErr("pipeline.mode %q is not supported", p.Mode)
	}
	if p.MaxWorkers < 1 {
		return configErr("pipeline.max_workers must be positive")
	}
	if p.CacheSize < 1 {
		return configErr("pipeline.cache_size must be positive, got %d", p.CacheSize)
	}
	if p.FetchTimeout <= 0 {
		return configErr("pipeline.fetch_timeout must be positive")
	}
	if p.CompletenessThreshold <= 0 || p.CompletenessThreshold > 1 {
		return configErr("pipeline.completeness_threshold must be in (0, 1], got %v", p.CompletenessThreshold)
	}
	if _, _, err := p.PublicationClock(); err != nil {
		return err
	}
	for name, unit := range map[string]string{
		"sources.csv_feed.unit": c.Sources.CSVFeed.Unit,
		"sources.static.unit":   c.Sources.Static.Unit,
	} {
		if unit != "" && !currency.KnownUnit(unit) {
			return configErr("%s %q is not a known energy unit", name, unit)
		}
	}
	if !supportedDrivers[strings.ToLower(c.Storage.Driver)] {
		return configErr("storage.driver %q is not supported", c.Storage.Driver)
	}
	if !supportedProviders[strings.ToLower(c.Exchange.Provider)] {
		return configErr("exchange.provider %q is not supported", c.Exchange.Provider)
	}

	if len(c.Areas) == 0 {
		return configErr("at least one area is required")
	}
	seen := make(map[string]bool, len(c.Areas))
	for i, a := range c.Areas {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("areas[%d]: %w", i, err)
		}
		key := strings.ToUpper(a.Name)
		if seen[key] {
			return configErr("area %s configured twice", a.Name)
		}
		seen[key] = true
	}
	return nil
}

// Validate checks the metadata a fetch cycle cannot run without.
func (a AreaConfig) Validate() error {
	if a.Name == "" {
		return configErr("area name is required")
	}
	if a.Timezone == "" {
		return configErr("area %s: timezone is required", a.Name)
	}
	if _, err := time.LoadLocation(a.Timezone); err != nil {
		return configErr("area %s: timezone %q: %v", a.Name, a.Timezone, err)
	}
	if a.Currency == "" {
		return configErr("area %s: currency is required", a.Name)
	}
	if a.EnergyUnit != "" && !currency.KnownUnit(a.EnergyUnit) {
		return configErr("area %s: energy_unit %q is not a known energy unit", a.Name, a.EnergyUnit)
	}
	if a.VATRate < 0 {
		return configErr("area %s: vat_rate must not be negative", a.Name)
	}
	if len(a.Sources) == 0 {
		return configErr("area %s: at least one source is required", a.Name)
	}
	for _, k := range a.SourceKinds() {
		if !k.Valid() {
			return configErr("area %s: unknown source %q", a.Name, k)
		}
	}
	return nil
}

func configErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", models.ErrConfiguration, fmt.Sprintf(format, args...))
}
