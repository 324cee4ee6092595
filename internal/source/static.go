package source

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tejusbharadwaj/spotprice/internal/config"
	"github.com/tejusbharadwaj/spotprice/internal/models"
)

// Static serves configured or injected prices without any I/O. Per-area
// fixtures take precedence over the configured repeating pattern.
type Static struct {
	cfg config.StaticConfig
	now func() time.Time

	mu       sync.RWMutex
	fixtures map[string]*models.SourceResult
}

func NewStatic(cfg config.StaticConfig) *Static {
	return &Static{cfg: cfg, now: time.Now, fixtures: map[string]*models.SourceResult{}}
}

func (s *Static) Kind() models.SourceKind { return models.SourceStatic }

// SetFixture makes Fetch return result for area.
func (s *Static) SetFixture(area string, result *models.SourceResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fixtures[strings.ToUpper(area)] = result
}

func (s *Static) Fetch(ctx context.Context, area string) (*models.SourceResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, transportErr(ctx, err)
	}

	s.mu.RLock()
	fixture, ok := s.fixtures[strings.ToUpper(area)]
	s.mu.RUnlock()
	if ok {
		out := *fixture
		out.IntervalRaw = make(models.RawIntervalMap, len(fixture.IntervalRaw))
		for k, v := range fixture.IntervalRaw {
			out.IntervalRaw[k] = v
		}
		return &out, nil
	}

	if len(s.cfg.Prices) == 0 {
		return nil, fmt.Errorf("%w: static source has no prices for %s", models.ErrTransport, area)
	}
	width := s.cfg.IntervalMinutes
	if width <= 0 {
		width = 60
	}

	// Three UTC days centred on today cover today and tomorrow everywhere.
	start := s.now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -1)
	end := start.AddDate(0, 0, 3)
	raw := models.RawIntervalMap{}
	for i, t := 0, start; t.Before(end); i, t = i+1, t.Add(time.Duration(width)*time.Minute) {
		raw[utcKey(t)] = s.cfg.Prices[i%len(s.cfg.Prices)]
	}

	return &models.SourceResult{
		Source:                s.Kind(),
		Area:                  area,
		IntervalRaw:           raw,
		Currency:              strings.ToUpper(s.cfg.Currency),
		Timezone:              "UTC",
		SourceUnit:            s.cfg.Unit,
		SourceIntervalMinutes: width,
	}, nil
}
