package scheduler

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejusbharadwaj/spotprice/internal/config"
	"github.com/tejusbharadwaj/spotprice/internal/models"
)

type fakeRunner struct {
	mu        sync.Mutex
	settings  map[string]models.AreaSettings
	fetched   []string
	rollovers int
	fail      map[string]bool
}

func (f *fakeRunner) Areas() []string {
	var out []string
	for a := range f.settings {
		out = append(out, a)
	}
	return out
}

func (f *fakeRunner) Settings(area string) (models.AreaSettings, bool) {
	s, ok := f.settings[area]
	return s, ok
}

func (f *fakeRunner) Fetch(_ context.Context, area string, force bool) *models.PipelineResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, area)
	r := &models.PipelineResult{}
	if f.fail[area] {
		r.Error = "all sources failed"
	}
	return r
}

func (f *fakeRunner) Rollover(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rollovers++
}

func newRunner() *fakeRunner {
	return &fakeRunner{
		settings: map[string]models.AreaSettings{
			"SE3": {Area: "SE3", Timezone: "Europe/Stockholm"},
			"SE4": {Area: "SE4", Timezone: "Europe/Stockholm"},
			"FI":  {Area: "FI", Timezone: "Europe/Helsinki"},
		},
		fail: map[string]bool{"FI": true},
	}
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestRefreshFetchesEveryArea(t *testing.T) {
	r := newRunner()
	s := NewScheduler(context.Background(), r, config.ScheduleConfig{Refresh: "*/15 * * * *"}, time.Second, quietLogger())

	s.Refresh()
	assert.ElementsMatch(t, []string{"SE3", "SE4", "FI"}, r.fetched)
}

func TestRefreshStopsWhenCancelled(t *testing.T) {
	r := newRunner()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewScheduler(ctx, r, config.ScheduleConfig{Refresh: "*/15 * * * *"}, time.Second, quietLogger())

	s.Refresh()
	assert.Empty(t, r.fetched)
}

func TestStartSchedulesRolloverPerTimezone(t *testing.T) {
	tests := []struct {
		name     string
		rollover bool
		jobs     int
	}{
		{"refresh and two timezones", true, 3},
		{"refresh only", false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScheduler(context.Background(), newRunner(), config.ScheduleConfig{
				Refresh:  "*/15 * * * *",
				Rollover: tt.rollover,
			}, time.Second, quietLogger())
			require.NoError(t, s.Start())
			defer s.Stop()
			assert.Len(t, s.cron.Entries(), tt.jobs)
		})
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := NewScheduler(context.Background(), newRunner(), config.ScheduleConfig{Refresh: "every now and then"}, time.Second, quietLogger())
	assert.Error(t, s.Start())
}

func TestRolloverDelegates(t *testing.T) {
	r := newRunner()
	s := NewScheduler(context.Background(), r, config.ScheduleConfig{}, 0, quietLogger())
	s.rollover()
	assert.Equal(t, 1, r.rollovers)
}
