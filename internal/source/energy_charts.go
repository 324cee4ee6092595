package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/spotprice/internal/config"
	"github.com/tejusbharadwaj/spotprice/internal/models"
)

type energyChartsResponse struct {
	UnixSeconds []int64    `json:"unix_seconds"`
	Price       []*float64 `json:"price"`
	Unit        string     `json:"unit"`
}

// EnergyCharts reads day-ahead prices from the Energy-Charts API.
type EnergyCharts struct {
	cfg    config.EnergyChartsConfig
	client *http.Client
	logger *logrus.Logger
	now    func() time.Time
}

func NewEnergyCharts(cfg config.EnergyChartsConfig, client *http.Client, logger *logrus.Logger) *EnergyCharts {
	return &EnergyCharts{cfg: cfg, client: client, logger: logger, now: time.Now}
}

func (e *EnergyCharts) Kind() models.SourceKind { return models.SourceEnergyCharts }

// Fetch requests yesterday through the day after tomorrow (UTC) so every
// target timezone's today and tomorrow are covered.
func (e *EnergyCharts) Fetch(ctx context.Context, area string) (*models.SourceResult, error) {
	day := e.now().UTC().Truncate(24 * time.Hour)
	url := fmt.Sprintf("%s/price?bzn=%s&start=%s&end=%s",
		strings.TrimRight(e.cfg.BaseURL, "/"),
		e.cfg.Zone(area),
		day.AddDate(0, 0, -1).Format("2006-01-02T15:04Z"),
		day.AddDate(0, 0, 2).Format("2006-01-02T15:04Z"))

	body, err := get(ctx, e.client, url)
	if err != nil {
		return nil, err
	}

	var resp energyChartsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: energy-charts response: %v", models.ErrParse, err)
	}
	if len(resp.UnixSeconds) != len(resp.Price) {
		return nil, fmt.Errorf("%w: mismatched arrays: %d timestamps, %d prices",
			models.ErrParse, len(resp.UnixSeconds), len(resp.Price))
	}

	raw := make(models.RawIntervalMap, len(resp.UnixSeconds))
	instants := make([]time.Time, 0, len(resp.UnixSeconds))
	for i, ts := range resp.UnixSeconds {
		t := time.Unix(ts, 0).UTC()
		instants = append(instants, t)
		if resp.Price[i] != nil {
			raw[utcKey(t)] = *resp.Price[i]
		}
	}
	sort.Slice(instants, func(i, j int) bool { return instants[i].Before(instants[j]) })

	currency, unit := parseUnit(resp.Unit)
	e.logger.WithFields(logrus.Fields{
		"area":   area,
		"source": e.Kind(),
		"points": len(raw),
	}).Debug("Fetched energy-charts prices")

	return &models.SourceResult{
		Source:                e.Kind(),
		Area:                  area,
		IntervalRaw:           raw,
		Currency:              currency,
		Timezone:              "UTC",
		SourceUnit:            unit,
		SourceIntervalMinutes: inferInterval(instants, 60),
		RawData:               resp,
	}, nil
}

// parseUnit splits "EUR / MWh" into currency and energy unit.
func parseUnit(s string) (string, string) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return "EUR", "MWh"
	}
	return strings.ToUpper(strings.TrimSpace(parts[0])), strings.TrimSpace(parts[1])
}
