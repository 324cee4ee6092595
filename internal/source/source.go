//go:generate go run github.com/golang/mock/mockgen -destination=./mocks/adapter.go -package=mocks . Adapter

// Package source contains the raw price source adapters.
//
// Every adapter returns a models.SourceResult whose IntervalRaw keys are UTC
// RFC3339 instants. The set of adapters is closed: New switches over
// models.SourceKind, so adding a source means adding a kind and a case.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/spotprice/internal/config"
	"github.com/tejusbharadwaj/spotprice/internal/models"
)

// Adapter fetches one area's raw prices from a single upstream.
type Adapter interface {
	// Kind identifies the adapter in results and metrics.
	Kind() models.SourceKind

	// Fetch returns the raw interval map for area. Errors wrap
	// models.ErrTransport, models.ErrTimeout or models.ErrParse.
	Fetch(ctx context.Context, area string) (*models.SourceResult, error)
}

// New returns the adapter registered for kind.
func New(kind models.SourceKind, cfg config.SourcesConfig, client *http.Client, logger *logrus.Logger) (Adapter, error) {
	if client == nil {
		client = http.DefaultClient
	}
	switch kind {
	case models.SourceEnergyCharts:
		return NewEnergyCharts(cfg.EnergyCharts, client, logger), nil
	case models.SourceCSVFeed:
		return NewCSVFeed(cfg.CSVFeed, client, logger), nil
	case models.SourceStatic:
		return NewStatic(cfg.Static), nil
	default:
		return nil, fmt.Errorf("%w: unknown source %q", models.ErrConfiguration, kind)
	}
}

// NewRegistry builds one adapter per known kind.
func NewRegistry(cfg config.SourcesConfig, client *http.Client, logger *logrus.Logger) (map[models.SourceKind]Adapter, error) {
	registry := make(map[models.SourceKind]Adapter, len(models.KnownSources))
	for _, kind := range models.KnownSources {
		a, err := New(kind, cfg, client, logger)
		if err != nil {
			return nil, err
		}
		registry[kind] = a
	}
	return registry, nil
}

// get performs a GET and returns the body of a 200 response.
func get(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrTransport, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, transportErr(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: got %d from %s", models.ErrTransport, resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportErr(ctx, err)
	}
	return body, nil
}

func transportErr(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", models.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", models.ErrTransport, err)
}

func expandArea(template, area string) string {
	return strings.ReplaceAll(template, "{area}", area)
}

func utcKey(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// inferInterval returns the smallest gap between consecutive instants in
// minutes, or def when fewer than two instants are given.
func inferInterval(sorted []time.Time, def int) int {
	best := 0
	for i := 1; i < len(sorted); i++ {
		gap := int(sorted[i].Sub(sorted[i-1]) / time.Minute)
		if gap > 0 && (best == 0 || gap < best) {
			best = gap
		}
	}
	if best == 0 {
		return def
	}
	return best
}
