// Package pipeline runs fetch cycles: it decides whether cached prices are
// still good enough, fetches through the fallback orchestrator when they are
// not, and assembles the result consumers see.
//
// Fetch never returns an error. Failures surface in PipelineResult.Error.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/spotprice/internal/config"
	"github.com/tejusbharadwaj/spotprice/internal/currency"
	"github.com/tejusbharadwaj/spotprice/internal/database"
	"github.com/tejusbharadwaj/spotprice/internal/fallback"
	"github.com/tejusbharadwaj/spotprice/internal/interval"
	"github.com/tejusbharadwaj/spotprice/internal/models"
	"github.com/tejusbharadwaj/spotprice/internal/source"
	"github.com/tejusbharadwaj/spotprice/internal/store"
	"github.com/tejusbharadwaj/spotprice/internal/timestamp"
)

// Deps are the collaborators of a Coordinator. Repository, Metrics and
// OnResult are optional.
type Deps struct {
	Store        *store.Store
	Gate         *FetchGate
	Sources      map[models.SourceKind]source.Adapter
	Rates        currency.RateProvider
	Orchestrator *fallback.Orchestrator
	Repository   database.SnapshotRepository
	Metrics      *Metrics
	Logger       *logrus.Logger
	OnResult     func(*models.PipelineResult)
}

type options struct {
	intervalMinutes   int
	maxCacheAge       time.Duration
	threshold         float64
	publicationHour   int
	publicationMinute int
}

type Coordinator struct {
	Deps
	opts       options
	areas      map[string]models.AreaSettings
	adapters   map[string][]source.Adapter
	normalizer *timestamp.Normalizer
	now        func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewCoordinator validates cfg and resolves every area's source list.
func NewCoordinator(cfg *config.Config, deps Deps) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Store == nil || deps.Gate == nil || deps.Rates == nil || deps.Orchestrator == nil || deps.Logger == nil {
		return nil, fmt.Errorf("%w: coordinator is missing a dependency", models.ErrConfiguration)
	}
	hour, minute, err := cfg.Pipeline.PublicationClock()
	if err != nil {
		return nil, err
	}

	c := &Coordinator{
		Deps: deps,
		opts: options{
			intervalMinutes:   cfg.Pipeline.IntervalMinutes,
			maxCacheAge:       cfg.Pipeline.MaxCacheAge,
			threshold:         cfg.Pipeline.CompletenessThreshold,
			publicationHour:   hour,
			publicationMinute: minute,
		},
		areas:      make(map[string]models.AreaSettings, len(cfg.Areas)),
		adapters:   make(map[string][]source.Adapter, len(cfg.Areas)),
		normalizer: timestamp.NewNormalizer(deps.Logger),
		now:        time.Now,
		locks:      make(map[string]*sync.Mutex),
	}

	for _, a := range cfg.Areas {
		key := strings.ToUpper(a.Name)
		settings := a.Settings(cfg.Pipeline.IntervalMinutes)
		settings.Area = key
		c.areas[key] = settings
		for _, kind := range a.SourceKinds() {
			adapter, ok := deps.Sources[kind]
			if !ok {
				return nil, fmt.Errorf("%w: area %s: source %s is not registered", models.ErrConfiguration, a.Name, kind)
			}
			c.adapters[key] = append(c.adapters[key], adapter)
		}
	}
	return c, nil
}

// SetClock replaces the time source of the coordinator and its store.
func (c *Coordinator) SetClock(now func() time.Time) {
	c.now = now
	c.Store.SetClock(now)
	c.normalizer.Clock = now
}

// Areas lists the configured areas.
func (c *Coordinator) Areas() []string {
	areas := make([]string, 0, len(c.areas))
	for a := range c.areas {
		areas = append(areas, a)
	}
	sort.Strings(areas)
	return areas
}

// Settings returns the conversion settings of area.
func (c *Coordinator) Settings(area string) (models.AreaSettings, bool) {
	s, ok := c.areas[strings.ToUpper(area)]
	return s, ok
}

func (c *Coordinator) lock(area string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[area]
	if !ok {
		l = &sync.Mutex{}
		c.locks[area] = l
	}
	return l
}

// Fetch runs one cycle for area. With force the rate gate and cache are
// bypassed.
func (c *Coordinator) Fetch(ctx context.Context, area string, force bool) *models.PipelineResult {
	start := c.now()
	key := strings.ToUpper(area)

	settings, ok := c.areas[key]
	if !ok {
		return c.failed(models.AreaSettings{Area: area}, nil, start,
			fmt.Errorf("%w: unknown area %q", models.ErrConfiguration, area))
	}
	loc, err := time.LoadLocation(settings.Timezone)
	if err != nil {
		return c.failed(settings, nil, start,
			fmt.Errorf("%w: area %s timezone %q: %v", models.ErrConfiguration, key, settings.Timezone, err))
	}

	l := c.lock(key)
	l.Lock()
	defer l.Unlock()

	log := c.Logger.WithFields(logrus.Fields{
		"area":     key,
		"cycle_id": uuid.NewString(),
	})

	c.rollover(ctx, key, start)

	cached := c.Store.GetData(key, c.opts.maxCacheAge)
	if cached != nil {
		cached = c.reconcile(ctx, cached, settings, log)
	}

	outcome := OutcomeCached
	var result *models.PipelineResult
	defer func() {
		c.Metrics.cycle(key, outcome, c.now().Sub(start))
		c.publish(result)
	}()

	reason := c.fetchReason(cached, start, loc, settings)
	if !force && reason == "" {
		result = c.build(cached, start, loc, true, "")
		return result
	}

	if !force {
		if ok, wait := c.Gate.Allow(key, start); !ok {
			log.WithFields(logrus.Fields{
				"reason": reason,
				"wait":   wait.String(),
			}).Debug("Fetch skipped by rate gate")
			if cached != nil {
				result = c.build(cached, start, loc, true, "")
				return result
			}
			outcome = OutcomeRateLimited
			result = c.failed(settings, nil, start,
				fmt.Errorf("%w: no cached data for %s, next fetch in %s", models.ErrRateLimited, key, wait.Round(time.Second)))
			return result
		}
	}

	log.WithFields(logrus.Fields{"reason": reason, "force": force}).Info("Fetching prices")
	data, err := c.fetchFresh(ctx, key, settings, loc, start)
	c.Gate.Record(key, start, err == nil)

	if err != nil {
		if cached != nil && store.CalculateValidity(cached, start, interval.CurrentKey(start, loc, settings.IntervalMinutes), loc).HasCurrentInterval {
			log.WithError(err).Warn("Fetch failed, serving cached prices")
			result = c.build(cached, start, loc, true, "")
			return result
		}
		outcome = OutcomeError
		result = c.failed(settings, cached, start, err)
		return result
	}

	c.Store.Store(key, data.Source, data, start)
	stored := c.Store.GetData(key, 0)
	c.persist(ctx, stored, log)

	outcome = OutcomeFresh
	log.WithFields(logrus.Fields{
		"source":   data.Source,
		"today":    len(data.TodayIntervalPrices),
		"tomorrow": len(data.TomorrowIntervalPrices),
		"fallback": data.FallbackSources,
	}).Info("Stored fresh prices")
	result = c.build(stored, start, loc, false, "")
	return result
}

// Rollover moves every area onto the current local day.
func (c *Coordinator) Rollover(ctx context.Context) {
	now := c.now()
	for _, area := range c.Areas() {
		l := c.lock(area)
		l.Lock()
		c.rollover(ctx, area, now)
		l.Unlock()
	}
}

// Warm loads persisted snapshots of configured areas into the store.
func (c *Coordinator) Warm(ctx context.Context) (int, error) {
	if c.Repository == nil {
		return 0, nil
	}
	snapshots, err := c.Repository.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load snapshots: %w", err)
	}
	n := 0
	for _, s := range snapshots {
		key := strings.ToUpper(s.Area)
		if _, ok := c.areas[key]; !ok {
			continue
		}
		s.Area = key
		c.Store.Restore(s)
		n++
	}
	c.Logger.WithField("snapshots", n).Info("Warmed price cache from storage")
	return n, nil
}

// rollover runs with the area lock held.
func (c *Coordinator) rollover(ctx context.Context, area string, now time.Time) {
	action, err := c.Store.Rollover(area, now)
	if err != nil {
		c.Logger.WithField("area", area).WithError(err).Warn("Rollover failed")
		return
	}
	switch action {
	case store.RolloverMigrated:
		c.persist(ctx, c.Store.GetData(area, 0), c.Logger.WithField("area", area))
	case store.RolloverEvicted:
		if c.Repository != nil {
			if err := c.Repository.Delete(ctx, area); err != nil {
				c.Logger.WithField("area", area).WithError(err).Warn("Failed to delete snapshot")
			}
		}
	}
}

// fetchReason returns why cached data needs replacing, or "" when it does
// not.
func (c *Coordinator) fetchReason(cached *models.IntervalPriceData, now time.Time, loc *time.Location, settings models.AreaSettings) string {
	if cached == nil {
		return "no cached data"
	}
	currentKey := interval.CurrentKey(now, loc, settings.IntervalMinutes)
	v := store.CalculateValidity(cached, now, currentKey, loc)
	switch {
	case !v.HasCurrentInterval:
		return "current interval missing"
	case c.inPublicationWindow(now, loc) && v.TomorrowIntervalCount == 0:
		if v.TomorrowStale {
			return "tomorrow prices are stale"
		}
		return "tomorrow prices missing"
	case !v.HasMinimumData:
		return "today incomplete"
	}
	return ""
}

func (c *Coordinator) inPublicationWindow(now time.Time, loc *time.Location) bool {
	local := now.In(loc)
	h, m := local.Hour(), local.Minute()
	return h > c.opts.publicationHour || (h == c.opts.publicationHour && m >= c.opts.publicationMinute)
}

func (c *Coordinator) persist(ctx context.Context, data *models.IntervalPriceData, log *logrus.Entry) {
	if c.Repository == nil || data == nil {
		return
	}
	if err := c.Repository.Save(ctx, data); err != nil {
		log.WithError(err).Warn("Failed to persist snapshot")
	}
}

func (c *Coordinator) publish(r *models.PipelineResult) {
	if r != nil && c.OnResult != nil {
		c.OnResult(r)
	}
}
