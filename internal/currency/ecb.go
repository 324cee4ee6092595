package currency

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/spotprice/internal/models"
)

// DefaultECBURL is the ECB daily euro reference rate feed.
const DefaultECBURL = "https://www.ecb.europa.eu/stats/eurofxref/eurofxref-daily.xml"

type ecbEnvelope struct {
	Cube struct {
		Days []struct {
			Time  string `xml:"time,attr"`
			Rates []struct {
				Currency string  `xml:"currency,attr"`
				Rate     float64 `xml:"rate,attr"`
			} `xml:"Cube"`
		} `xml:"Cube"`
	} `xml:"Cube"`
}

// ECBProvider fetches euro reference rates and caches them for TTL. When a
// refresh fails the previous table keeps being served.
type ECBProvider struct {
	url    string
	ttl    time.Duration
	client *http.Client
	logger *logrus.Logger
	now    func() time.Time

	mu        sync.Mutex
	table     RateTable
	fetchedAt time.Time
}

func NewECBProvider(url string, ttl time.Duration, client *http.Client, logger *logrus.Logger) *ECBProvider {
	if url == "" {
		url = DefaultECBURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &ECBProvider{url: url, ttl: ttl, client: client, logger: logger, now: time.Now}
}

func (p *ECBProvider) Rates(ctx context.Context) (RateTable, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.fetchedAt.IsZero() && p.now().Sub(p.fetchedAt) < p.ttl {
		return p.table, nil
	}

	table, err := p.fetch(ctx)
	if err != nil {
		if !p.fetchedAt.IsZero() {
			p.logger.WithError(err).Warn("Exchange rate refresh failed, serving previous rates")
			return p.table, nil
		}
		return RateTable{}, err
	}
	p.table = table
	p.fetchedAt = p.now()
	p.logger.WithFields(logrus.Fields{
		"currencies": len(table.Rates),
		"date":       table.Timestamp.Format("2006-01-02"),
	}).Info("Exchange rates refreshed")
	return table, nil
}

func (p *ECBProvider) fetch(ctx context.Context) (RateTable, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return RateTable{}, fmt.Errorf("%w: %v", models.ErrTransport, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return RateTable{}, fmt.Errorf("%w: %v", models.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return RateTable{}, fmt.Errorf("%w: exchange rates returned %d", models.ErrTransport, resp.StatusCode)
	}

	var env ecbEnvelope
	if err := xml.NewDecoder(resp.Body).Decode(&env); err != nil {
		return RateTable{}, fmt.Errorf("%w: decode exchange rates: %v", models.ErrParse, err)
	}
	if len(env.Cube.Days) == 0 {
		return RateTable{}, fmt.Errorf("%w: exchange rate feed has no data", models.ErrParse)
	}

	day := env.Cube.Days[0]
	table := RateTable{Base: "EUR", Rates: make(map[string]float64, len(day.Rates))}
	if ts, err := time.Parse("2006-01-02", day.Time); err == nil {
		table.Timestamp = ts
	}
	for _, r := range day.Rates {
		table.Rates[r.Currency] = r.Rate
	}
	return table, nil
}
