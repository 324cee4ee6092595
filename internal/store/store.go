// Package store keeps the cached interval series of every area.
//
// Each area owns exactly one IntervalPriceData slot. The slot is replaced
// wholesale by Store and mutated in place only by Rollover, which delegates
// to MigrateToNewDay. Readers always get a deep copy.
package store

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/spotprice/internal/models"
)

// RolloverAction reports what Rollover did to a slot.
type RolloverAction int

const (
	RolloverNone RolloverAction = iota
	RolloverMigrated
	RolloverEvicted
)

func (a RolloverAction) String() string {
	switch a {
	case RolloverMigrated:
		return "migrated"
	case RolloverEvicted:
		return "evicted"
	default:
		return "none"
	}
}

type slot struct {
	data     *models.IntervalPriceData
	storedAt time.Time
}

// Store is an LRU-bounded, TTL-expiring map of area to cached series.
type Store struct {
	mu     sync.Mutex
	slots  *lru.Cache
	ttl    time.Duration
	now    func() time.Time
	logger *logrus.Logger
}

// New creates a store holding at most size areas. A zero ttl disables
// expiry.
func New(size int, ttl time.Duration, logger *logrus.Logger) (*Store, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create series cache: %w", err)
	}
	return &Store{slots: cache, ttl: ttl, now: time.Now, logger: logger}, nil
}

// SetClock replaces the time source.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Store replaces the area's cached series with data fetched from source at
// fetchedAt.
func (s *Store) Store(area string, source models.SourceKind, data *models.IntervalPriceData, fetchedAt time.Time) {
	c := data.Clone()
	c.Area = area
	c.Source = source
	c.FetchedAt = fetchedAt
	c.LastUpdated = fetchedAt
	c.MigratedFromTomorrow = false

	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots.Add(area, &slot{data: c, storedAt: s.now()})

	s.logger.WithFields(logrus.Fields{
		"area":     area,
		"source":   source,
		"today":    len(c.TodayIntervalPrices),
		"tomorrow": len(c.TomorrowIntervalPrices),
	}).Debug("Stored interval series")
}

// Restore puts a previously persisted series back unchanged.
func (s *Store) Restore(data *models.IntervalPriceData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots.Add(data.Area, &slot{data: data.Clone(), storedAt: s.now()})
}

// GetData returns a copy of the area's series, or nil when there is none,
// it has expired, its fetch time lies in the future, or it is older than
// maxAge. A zero maxAge skips the age check.
func (s *Store) GetData(area string, maxAge time.Duration) *models.IntervalPriceData {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, ok := s.lookup(area)
	if !ok {
		return nil
	}

	now := s.now()
	fetchedAt := sl.data.FetchedAt
	if fetchedAt.After(now) {
		s.logger.WithFields(logrus.Fields{
			"area":       area,
			"fetched_at": fetchedAt.Format(time.RFC3339),
		}).Warn("Cached series has a fetch time in the future, ignoring it")
		return nil
	}
	if maxAge > 0 && now.Sub(fetchedAt) > maxAge {
		return nil
	}
	return sl.data.Clone()
}

// Rollover moves the area's series onto the current local day. When the
// cached today is yesterday the tomorrow partition is promoted; anything
// older, or a yesterday with no tomorrow to promote, is dropped.
func (s *Store) Rollover(area string, now time.Time) (RolloverAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, ok := s.lookup(area)
	if !ok || sl.data.DataDate.IsZero() {
		return RolloverNone, nil
	}

	loc, err := time.LoadLocation(sl.data.TargetTimezone)
	if err != nil {
		return RolloverNone, fmt.Errorf("%w: area %s timezone %q: %v", models.ErrConfiguration, area, sl.data.TargetTimezone, err)
	}
	today := models.DateOf(now.In(loc))

	switch {
	case !sl.data.DataDate.Before(today):
		return RolloverNone, nil
	case sl.data.DataDate.AddDays(1) == today && MigrateToNewDay(sl.data, now):
		s.logger.WithFields(logrus.Fields{
			"area":  area,
			"today": len(sl.data.TodayIntervalPrices),
			"date":  today.String(),
		}).Info("Migrated tomorrow's prices to today")
		return RolloverMigrated, nil
	default:
		s.slots.Remove(area)
		s.logger.WithFields(logrus.Fields{
			"area":      area,
			"data_date": sl.data.DataDate.String(),
		}).Info("Dropped outdated interval series")
		return RolloverEvicted, nil
	}
}

// Clear removes the area's series.
func (s *Store) Clear(area string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots.Remove(area)
}

// Areas lists the areas with a live slot.
func (s *Store) Areas() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var areas []string
	for _, k := range s.slots.Keys() {
		if _, ok := s.lookup(k.(string)); ok {
			areas = append(areas, k.(string))
		}
	}
	return areas
}

// lookup returns the live slot for area, evicting it when expired. Callers
// hold s.mu.
func (s *Store) lookup(area string) (*slot, bool) {
	v, ok := s.slots.Get(area)
	if !ok {
		return nil, false
	}
	sl := v.(*slot)
	if s.ttl > 0 && s.now().Sub(sl.storedAt) > s.ttl {
		s.slots.Remove(area)
		return nil, false
	}
	return sl, true
}

// MigrateToNewDay promotes tomorrow's prices to today and clears tomorrow.
// It is the only code path performing that move. With no tomorrow prices it
// leaves data untouched and returns false.
func MigrateToNewDay(data *models.IntervalPriceData, now time.Time) bool {
	if data == nil || len(data.TomorrowIntervalPrices) == 0 {
		return false
	}
	data.TodayIntervalPrices = data.TomorrowIntervalPrices
	data.TodayRawPrices = data.TomorrowRawPrices
	if data.TodayRawPrices == nil {
		data.TodayRawPrices = models.IntervalPrices{}
	}
	data.TomorrowIntervalPrices = models.IntervalPrices{}
	data.TomorrowRawPrices = models.IntervalPrices{}
	data.MigratedFromTomorrow = true
	data.LastUpdated = now
	if !data.DataDate.IsZero() {
		data.DataDate = data.DataDate.AddDays(1)
	}
	return true
}
