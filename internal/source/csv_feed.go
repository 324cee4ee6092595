package source

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/spotprice/internal/config"
	"github.com/tejusbharadwaj/spotprice/internal/interval"
	"github.com/tejusbharadwaj/spotprice/internal/models"
	"github.com/tejusbharadwaj/spotprice/internal/timestamp"
)

// CSVFeed reads "timestamp,price" rows from a vendor feed over HTTP or from
// a file. Timestamps may be naive, in which case they are read in the
// configured timezone; the adapter re-keys every row to UTC.
type CSVFeed struct {
	cfg        config.CSVFeedConfig
	client     *http.Client
	logger     *logrus.Logger
	normalizer *timestamp.Normalizer
}

func NewCSVFeed(cfg config.CSVFeedConfig, client *http.Client, logger *logrus.Logger) *CSVFeed {
	return &CSVFeed{cfg: cfg, client: client, logger: logger, normalizer: timestamp.NewNormalizer(logger)}
}

func (c *CSVFeed) Kind() models.SourceKind { return models.SourceCSVFeed }

func (c *CSVFeed) Fetch(ctx context.Context, area string) (*models.SourceResult, error) {
	loc, err := time.LoadLocation(c.cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: csv feed timezone %q: %v", models.ErrConfiguration, c.cfg.Timezone, err)
	}

	body, err := c.read(ctx, area)
	if err != nil {
		return nil, err
	}

	rows, err := csv.NewReader(bytes.NewReader(body)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: csv feed: %v", models.ErrParse, err)
	}

	records := make([]timestamp.Row, 0, len(rows))
	skipped := 0
	for i, row := range rows {
		if len(row) < 2 {
			skipped++
			continue
		}
		if i == 0 && strings.EqualFold(strings.TrimSpace(row[0]), "timestamp") {
			continue
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
		if err != nil {
			skipped++
			continue
		}
		records = append(records, timestamp.Row{Key: strings.TrimSpace(row[0]), Price: price})
	}

	prices, stats, err := c.normalizer.ParseRows(records, loc, nil)
	skipped += stats.Skipped
	if err != nil || len(prices) == 0 {
		return nil, &models.ParseError{Key: area, Reason: "csv feed has no usable rows"}
	}
	if skipped > 0 {
		c.logger.WithFields(logrus.Fields{
			"area":    area,
			"source":  c.Kind(),
			"skipped": skipped,
		}).Warn("Skipped malformed csv feed rows")
	}

	raw := make(models.RawIntervalMap, len(prices))
	for _, t := range interval.SortedInstants(prices) {
		raw[utcKey(t)] = prices[t]
	}

	return &models.SourceResult{
		Source:                c.Kind(),
		Area:                  area,
		IntervalRaw:           raw,
		Currency:              strings.ToUpper(c.cfg.Currency),
		Timezone:              loc.String(),
		SourceUnit:            c.cfg.Unit,
		SourceIntervalMinutes: c.cfg.IntervalMinutes,
		RawData:               string(body),
	}, nil
}

func (c *CSVFeed) read(ctx context.Context, area string) ([]byte, error) {
	if c.cfg.URL != "" {
		return get(ctx, c.client, expandArea(c.cfg.URL, area))
	}
	if c.cfg.Path == "" {
		return nil, fmt.Errorf("%w: csv feed has neither url nor path", models.ErrConfiguration)
	}
	f, err := os.Open(expandArea(c.cfg.Path, area))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrTransport, err)
	}
	defer f.Close()

	body, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrTransport, err)
	}
	return body, nil
}
