package interval

import (
	"fmt"
	"sort"
	"time"

	"github.com/tejusbharadwaj/spotprice/internal/models"
)

// Adapt converts prices sampled every sourceMinutes into a series at
// targetMinutes. Finer sources are averaged into target buckets; buckets with
// no samples are left out. Coarser sources are duplicated across the target
// buckets they cover. Buckets align to the wall clock of loc (nil means UTC).
//
// Adapt works on absolute instants so every expanded bucket is classified
// into today/tomorrow on its own timestamp later on.
func Adapt(prices models.InstantPrices, sourceMinutes, targetMinutes int, loc *time.Location) (models.InstantPrices, error) {
	if err := validWidths(sourceMinutes, targetMinutes); err != nil {
		return nil, err
	}

	switch {
	case sourceMinutes == targetMinutes:
		out := make(models.InstantPrices, len(prices))
		for t, p := range prices {
			out[t.UTC()] = p
		}
		return out, nil
	case sourceMinutes < targetMinutes:
		return aggregate(prices, targetMinutes, loc), nil
	default:
		return expand(prices, sourceMinutes, targetMinutes), nil
	}
}

func validWidths(sourceMinutes, targetMinutes int) error {
	if sourceMinutes <= 0 || targetMinutes <= 0 {
		return fmt.Errorf("interval widths must be positive: source=%d target=%d", sourceMinutes, targetMinutes)
	}
	if 60%targetMinutes != 0 {
		return fmt.Errorf("target interval %d does not divide an hour", targetMinutes)
	}
	if sourceMinutes > targetMinutes && sourceMinutes%targetMinutes != 0 {
		return fmt.Errorf("source interval %d is not a multiple of target %d", sourceMinutes, targetMinutes)
	}
	return nil
}

func aggregate(prices models.InstantPrices, targetMinutes int, loc *time.Location) models.InstantPrices {
	type bucket struct {
		sum   float64
		count int
	}
	buckets := make(map[time.Time]*bucket)
	for _, t := range SortedInstants(prices) {
		start := Floor(t, targetMinutes, loc)
		b, ok := buckets[start]
		if !ok {
			b = &bucket{}
			buckets[start] = b
		}
		b.sum += prices[t]
		b.count++
	}

	out := make(models.InstantPrices, len(buckets))
	for start, b := range buckets {
		out[start] = b.sum / float64(b.count)
	}
	return out
}

func expand(prices models.InstantPrices, sourceMinutes, targetMinutes int) models.InstantPrices {
	n := sourceMinutes / targetMinutes
	width := time.Duration(targetMinutes) * time.Minute

	out := make(models.InstantPrices, len(prices)*n)
	for _, t := range SortedInstants(prices) {
		for i := 0; i < n; i++ {
			out[t.UTC().Add(time.Duration(i)*width)] = prices[t]
		}
	}
	return out
}

// SortedInstants returns the keys of prices in ascending order.
func SortedInstants(prices models.InstantPrices) []time.Time {
	keys := make([]time.Time, 0, len(prices))
	for t := range prices {
		keys = append(keys, t)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })
	return keys
}
