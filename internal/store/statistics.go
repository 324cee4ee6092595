package store

import (
	"sort"
	"time"

	"github.com/tejusbharadwaj/spotprice/internal/interval"
	"github.com/tejusbharadwaj/spotprice/internal/models"
)

// CalculateStatistics summarises prices for the local day d. CompleteData
// holds when at least threshold of the day's expected intervals are present.
func CalculateStatistics(prices models.IntervalPrices, d models.Date, loc *time.Location, widthMinutes int, threshold float64) models.PriceStatistics {
	if widthMinutes <= 0 {
		widthMinutes = defaultIntervalMinutes
	}
	stats := models.PriceStatistics{
		IntervalCount: len(prices),
		Expected:      interval.ExpectedCount(d, loc, widthMinutes),
		MinTimestamps: []string{},
		MaxTimestamps: []string{},
	}
	if len(prices) == 0 {
		return stats
	}

	labels := make([]string, 0, len(prices))
	for l := range prices {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	sum := 0.0
	stats.Min = prices[labels[0]]
	stats.Max = prices[labels[0]]
	for _, l := range labels {
		p := prices[l]
		sum += p
		switch {
		case p < stats.Min:
			stats.Min = p
			stats.MinTimestamps = stats.MinTimestamps[:0]
		case p > stats.Max:
			stats.Max = p
			stats.MaxTimestamps = stats.MaxTimestamps[:0]
		}
		if p == stats.Min {
			stats.MinTimestamps = append(stats.MinTimestamps, l)
		}
		if p == stats.Max {
			stats.MaxTimestamps = append(stats.MaxTimestamps, l)
		}
	}
	stats.Average = sum / float64(len(prices))
	stats.CompleteData = stats.Expected > 0 && float64(len(prices)) >= threshold*float64(stats.Expected)
	return stats
}
