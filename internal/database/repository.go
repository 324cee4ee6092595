//go:generate go run github.com/golang/mock/mockgen -destination=./mocks/repository.go -package=mocks . SnapshotRepository

// Package database persists per-area price snapshots so a restarted service
// can serve cached prices before its first fetch.
//
// Architecture:
//   - One record per area, replaced on every successful fetch or rollover
//   - Only source-of-truth fields are stored; validity and statistics are
//     recomputed by the store after loading
//   - Interchangeable backends: memory, PostgreSQL (lib/pq), SQLite
//     (modernc.org/sqlite) and Redis (go-redis)
//
// Example usage:
//
//	repo, err := database.Open(ctx, cfg.Storage)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer repo.Close()
//
//	snapshots, err := repo.LoadAll(ctx)
package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tejusbharadwaj/spotprice/internal/config"
	"github.com/tejusbharadwaj/spotprice/internal/models"
)

// ErrSnapshotNotFound is returned by Load when an area has no snapshot.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// SnapshotRepository defines the persistence operations for area snapshots.
//
// Implementations must be safe for concurrent use; the coordinator saves
// from several area locks at once.
type SnapshotRepository interface {
	// Save inserts or replaces the snapshot of data.Area.
	Save(ctx context.Context, data *models.IntervalPriceData) error

	// Load returns the snapshot of area or ErrSnapshotNotFound.
	Load(ctx context.Context, area string) (*models.IntervalPriceData, error)

	// LoadAll returns every stored snapshot, in no particular order.
	LoadAll(ctx context.Context) ([]*models.IntervalPriceData, error)

	// Delete removes the snapshot of area. Deleting a missing area is not
	// an error.
	Delete(ctx context.Context, area string) error

	// Close releases any resources held by the repository.
	Close() error
}

// Open creates the repository selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StorageConfig) (SnapshotRepository, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "memory":
		return NewMemoryRepo(), nil
	case "postgres":
		return NewPostgresRepo(ctx, cfg.Postgres.DSN(), cfg.Postgres.MaxConnections)
	case "sqlite":
		return NewSQLiteRepo(ctx, cfg.SQLite.Path)
	case "redis":
		return NewRedisRepo(ctx, cfg.Redis)
	default:
		return nil, fmt.Errorf("%w: storage driver %q", models.ErrConfiguration, cfg.Driver)
	}
}

func encodeSnapshot(data *models.IntervalPriceData) ([]byte, error) {
	if data == nil || data.Area == "" {
		return nil, errors.New("snapshot needs an area")
	}
	return json.Marshal(data)
}

func decodeSnapshot(payload []byte) (*models.IntervalPriceData, error) {
	var data models.IntervalPriceData
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &data, nil
}

func areaKey(area string) string {
	return strings.ToUpper(area)
}
