package models

// SourceKind identifies a price source. The set is closed: every value has a
// constructor in the source package registry.
type SourceKind string

const (
	SourceEnergyCharts SourceKind = "energy_charts"
	SourceCSVFeed      SourceKind = "csv_feed"
	SourceStatic       SourceKind = "static"
)

// KnownSources lists every supported kind in registry order.
var KnownSources = []SourceKind{SourceEnergyCharts, SourceCSVFeed, SourceStatic}

// Valid reports whether k is a registered kind.
func (k SourceKind) Valid() bool {
	for _, known := range KnownSources {
		if k == known {
			return true
		}
	}
	return false
}

func (k SourceKind) String() string { return string(k) }
