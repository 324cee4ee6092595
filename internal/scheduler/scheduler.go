package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/spotprice/internal/config"
	"github.com/tejusbharadwaj/spotprice/internal/models"
)

// Runner is the part of the pipeline the scheduler drives.
type Runner interface {
	Areas() []string
	Settings(area string) (models.AreaSettings, bool)
	Fetch(ctx context.Context, area string, force bool) *models.PipelineResult
	Rollover(ctx context.Context)
}

type Scheduler struct {
	ctx     context.Context
	runner  Runner
	cfg     config.ScheduleConfig
	timeout time.Duration
	logger  *logrus.Logger
	cron    *cron.Cron
}

func NewScheduler(ctx context.Context, runner Runner, cfg config.ScheduleConfig, timeout time.Duration, logger *logrus.Logger) *Scheduler {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Scheduler{
		ctx:     ctx,
		runner:  runner,
		cfg:     cfg,
		timeout: timeout,
		logger:  logger,
		cron:    cron.New(),
	}
}

// Start registers the refresh job and, when enabled, one midnight rollover
// job per distinct area timezone.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.Refresh, s.Refresh); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", s.cfg.Refresh, err)
	}
	if s.cfg.Rollover {
		for _, tz := range s.timezones() {
			if _, err := s.cron.AddFunc(fmt.Sprintf("CRON_TZ=%s 0 0 * * *", tz), s.rollover); err != nil {
				return fmt.Errorf("failed to schedule rollover for %s: %w", tz, err)
			}
		}
	}
	s.cron.Start()
	s.logger.WithFields(logrus.Fields{
		"refresh": s.cfg.Refresh,
		"jobs":    len(s.cron.Entries()),
	}).Info("Scheduler started")
	return nil
}

// Refresh runs one fetch cycle for every area.
func (s *Scheduler) Refresh() {
	for _, area := range s.runner.Areas() {
		if s.ctx.Err() != nil {
			return
		}
		ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
		r := s.runner.Fetch(ctx, area, false)
		cancel()

		entry := s.logger.WithField("area", area)
		if r.Error != "" {
			entry.WithField("error", r.Error).Warn("Scheduled fetch failed")
			continue
		}
		entry.WithFields(logrus.Fields{
			"cached":      r.UsingCachedData,
			"source":      r.Source,
			"valid_until": r.DataValidity.DataValidUntil.Format(time.RFC3339),
		}).Debug("Scheduled fetch done")
	}
}

func (s *Scheduler) rollover() {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	s.runner.Rollover(ctx)
}

func (s *Scheduler) timezones() []string {
	seen := map[string]bool{}
	var out []string
	for _, area := range s.runner.Areas() {
		settings, ok := s.runner.Settings(area)
		if !ok || seen[settings.Timezone] {
			continue
		}
		seen[settings.Timezone] = true
		out = append(out, settings.Timezone)
	}
	sort.Strings(out)
	return out
}

// Stop the scheduler and wait for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
