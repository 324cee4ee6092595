// Package timestamp turns source timestamp keys into absolute instants and
// sorts them into today/tomorrow/other partitions of a target timezone.
//
// ParseTimestamp is the only place where source timezone ambiguity is
// resolved; everything downstream works on UTC instants or target-local
// interval labels.
package timestamp

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/spotprice/internal/interval"
	"github.com/tejusbharadwaj/spotprice/internal/models"
)

// Day is the partition an instant belongs to relative to a reference date.
type Day int

const (
	DayOther Day = iota
	DayToday
	DayTomorrow
)

func (d Day) String() string {
	switch d {
	case DayToday:
		return "today"
	case DayTomorrow:
		return "tomorrow"
	default:
		return "other"
	}
}

// Layouts carrying their own offset.
var awareLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05-07:00",
}

// Layouts interpreted in the source timezone.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"02.01.2006 15:04:05",
	"02.01.2006 15:04",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
}

// Normalizer parses and classifies timestamps. Clock supplies "now" when no
// reference date is given.
type Normalizer struct {
	Clock  func() time.Time
	Logger *logrus.Logger
}

// NewNormalizer returns a Normalizer using the wall clock.
func NewNormalizer(logger *logrus.Logger) *Normalizer {
	return &Normalizer{Clock: time.Now, Logger: logger}
}

func (n *Normalizer) now() time.Time {
	if n.Clock == nil {
		return time.Now()
	}
	return n.Clock()
}

func (n *Normalizer) logger() *logrus.Logger {
	if n.Logger == nil {
		return logrus.StandardLogger()
	}
	return n.Logger
}

// ParseTimestamp resolves key to a UTC instant. Keys without an offset are
// read in sourceTZ. Bare "HH:MM" or "HH:MM:SS" keys are placed on
// contextDate, or on today in sourceTZ when contextDate is nil.
func (n *Normalizer) ParseTimestamp(key string, sourceTZ *time.Location, contextDate *models.Date) (time.Time, error) {
	t, _, err := n.parse(key, sourceTZ, contextDate)
	return t, err
}

// parse also reports whether key carried no offset of its own.
func (n *Normalizer) parse(key string, sourceTZ *time.Location, contextDate *models.Date) (time.Time, bool, error) {
	if sourceTZ == nil {
		sourceTZ = time.UTC
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return time.Time{}, false, &models.ParseError{Key: key, Reason: "empty key"}
	}

	if !strings.ContainsAny(key, "-./") {
		t, err := n.parseClock(key, sourceTZ, contextDate)
		return t, true, err
	}

	for _, layout := range awareLayouts {
		if t, err := time.Parse(layout, key); err == nil {
			return t.UTC(), false, nil
		}
	}
	var lastErr error
	for _, layout := range naiveLayouts {
		t, err := time.ParseInLocation(layout, key, sourceTZ)
		if err == nil {
			return t.UTC(), true, nil
		}
		lastErr = err
	}
	return time.Time{}, false, &models.ParseError{Key: key, Reason: fmt.Sprintf("no known layout matched: %v", lastErr)}
}

const wallLayout = "2006-01-02T15:04:05.999999999"

// WallCandidates returns every instant, ascending, that shows the same wall
// clock as t in loc. Outside a fall-back transition that is t alone.
func WallCandidates(t time.Time, loc *time.Location) []time.Time {
	local := t.In(loc)
	wall := local.Format(wallLayout)
	_, cur := local.Zone()

	seen := make(map[int]bool, 3)
	var out []time.Time
	for _, probe := range []time.Time{t.Add(-12 * time.Hour), t, t.Add(12 * time.Hour)} {
		_, off := probe.In(loc).Zone()
		if seen[off] {
			continue
		}
		seen[off] = true
		c := t.Add(time.Duration(cur-off) * time.Second)
		if c.In(loc).Format(wallLayout) == wall {
			out = append(out, c.UTC())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func (n *Normalizer) parseClock(key string, loc *time.Location, contextDate *models.Date) (time.Time, error) {
	parts := strings.Split(key, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return time.Time{}, &models.ParseError{Key: key, Reason: "expected HH:MM or HH:MM:SS"}
	}
	limits := []int{23, 59, 59}
	values := make([]int, 3)
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || len(p) == 0 || len(p) > 2 {
			return time.Time{}, &models.ParseError{Key: key, Reason: fmt.Sprintf("component %q is not a number", p)}
		}
		if v < 0 || v > limits[i] {
			return time.Time{}, &models.ParseError{Key: key, Reason: fmt.Sprintf("component %d out of range", v)}
		}
		values[i] = v
	}

	date := models.DateOf(n.now().In(loc))
	if contextDate != nil {
		date = *contextDate
	}
	t := time.Date(date.Year, date.Month, date.Day, values[0], values[1], values[2], 0, loc)
	return t.UTC(), nil
}

// ClassifyDay compares the local date of instant in targetTZ with the
// reference date (dateContext, or today in targetTZ).
func (n *Normalizer) ClassifyDay(instant time.Time, targetTZ *time.Location, dateContext *models.Date) Day {
	if targetTZ == nil {
		targetTZ = time.UTC
	}
	ref := models.DateOf(n.now().In(targetTZ))
	if dateContext != nil {
		ref = *dateContext
	}

	switch models.DateOf(instant.In(targetTZ)) {
	case ref:
		return DayToday
	case ref.AddDays(1):
		return DayTomorrow
	default:
		return DayOther
	}
}

// ParseStats counts what ParseInstants dropped or overwrote.
type ParseStats struct {
	Skipped    int
	Collisions int
}

// Row is one source record in payload order.
type Row struct {
	Key   string
	Price float64
}

// ParseInstants parses every key of raw in sorted key order. Malformed keys
// are skipped and counted; an error is returned only when nothing parses.
func (n *Normalizer) ParseInstants(raw models.RawIntervalMap, sourceTZ *time.Location, contextDate *models.Date) (models.InstantPrices, ParseStats, error) {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([]Row, len(keys))
	for i, k := range keys {
		rows[i] = Row{Key: k, Price: raw[k]}
	}
	return n.ParseRows(rows, sourceTZ, contextDate)
}

// ParseRows parses rows in the given order. A naive wall time repeated by a
// fall-back transition takes the earlier offset on its first occurrence and
// the later offset on the next. Rows resolving to an instant already seen
// overwrite it and are counted as collisions.
func (n *Normalizer) ParseRows(rows []Row, sourceTZ *time.Location, contextDate *models.Date) (models.InstantPrices, ParseStats, error) {
	if sourceTZ == nil {
		sourceTZ = time.UTC
	}
	out := make(models.InstantPrices, len(rows))
	occurrences := make(map[time.Time]int)
	var stats ParseStats
	var firstErr error
	for _, row := range rows {
		t, naive, err := n.parse(row.Key, sourceTZ, contextDate)
		if err != nil {
			stats.Skipped++
			if firstErr == nil {
				firstErr = err
			}
			n.logger().WithError(err).WithField("key", row.Key).Debug("Skipping unparseable timestamp")
			continue
		}
		if naive {
			if cands := WallCandidates(t, sourceTZ); len(cands) > 1 {
				i := occurrences[cands[0]]
				occurrences[cands[0]]++
				if i >= len(cands) {
					i = len(cands) - 1
				}
				t = cands[i]
			}
		}
		if prev, ok := out[t]; ok {
			stats.Collisions++
			n.logger().WithFields(logrus.Fields{
				"key":      row.Key,
				"instant":  t.Format(time.RFC3339),
				"previous": prev,
				"price":    row.Price,
			}).Warn("Duplicate instant in source payload, keeping last value")
		}
		out[t] = row.Price
	}

	if len(out) == 0 && len(rows) > 0 {
		return nil, stats, firstErr
	}
	if stats.Skipped > 0 {
		n.logger().WithField("skipped", stats.Skipped).Warn("Some timestamps could not be parsed")
	}
	return out, stats, nil
}

// Partition labels instants in targetTZ and splits them into today,
// tomorrow and other. A label collision within a partition keeps the later
// instant's price and is counted.
func (n *Normalizer) Partition(prices models.InstantPrices, targetTZ *time.Location, dateContext *models.Date) *models.NormalizedIntervalMap {
	if targetTZ == nil {
		targetTZ = time.UTC
	}
	out := models.NewNormalizedIntervalMap()

	for _, t := range interval.SortedInstants(prices) {
		price := prices[t]
		var part models.IntervalPrices
		switch n.ClassifyDay(t, targetTZ, dateContext) {
		case DayToday:
			part = out.Today
		case DayTomorrow:
			part = out.Tomorrow
		default:
			out.Other[t.In(targetTZ).Format(time.RFC3339)] = price
			continue
		}

		label := interval.Label(t, targetTZ)
		if prev, ok := part[label]; ok {
			if prev != price {
				out.Collisions++
				n.logger().WithFields(logrus.Fields{
					"label":    label,
					"previous": prev,
					"price":    price,
				}).Warn("Interval label collision, last write wins")
			}
		}
		part[label] = price
	}
	return out
}

// Normalize parses raw in sourceTZ and partitions it in targetTZ.
func (n *Normalizer) Normalize(raw models.RawIntervalMap, sourceTZ, targetTZ *time.Location, dateContext *models.Date) (*models.NormalizedIntervalMap, error) {
	instants, stats, err := n.ParseInstants(raw, sourceTZ, dateContext)
	if err != nil {
		return nil, err
	}
	out := n.Partition(instants, targetTZ, dateContext)
	out.Skipped = stats.Skipped
	out.Collisions += stats.Collisions
	return out, nil
}
