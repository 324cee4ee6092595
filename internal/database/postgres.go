package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/tejusbharadwaj/spotprice/internal/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS price_snapshots (
    area       TEXT PRIMARY KEY,
    source     TEXT NOT NULL,
    data_date  TEXT NOT NULL,
    fetched_at TIMESTAMPTZ NOT NULL,
    payload    JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// PostgresRepo implements SnapshotRepository on PostgreSQL.
//
// Features:
//   - Upsert keyed by area
//   - JSONB payload so snapshots stay queryable from psql
//   - Connection pooling through database/sql
type PostgresRepo struct {
	db *sql.DB
}

// NewPostgresRepo connects, verifies connectivity and creates the snapshot
// table when missing.
//
// The connection string uses the lib/pq keyword format:
// "host=localhost port=5432 user=u password=p dbname=db sslmode=disable"
func NewPostgresRepo(ctx context.Context, connStr string, maxConns int) (*PostgresRepo, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}

	// Verify connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create snapshot table: %w", err)
	}

	return &PostgresRepo{db: db}, nil
}

// Save upserts the snapshot of data.Area.
func (s *PostgresRepo) Save(ctx context.Context, data *models.IntervalPriceData) error {
	payload, err := encodeSnapshot(data)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO price_snapshots (area, source, data_date, fetched_at, payload, updated_at)
        VALUES ($1, $2, $3, $4, $5, NOW())
        ON CONFLICT (area) DO UPDATE SET
            source = EXCLUDED.source,
            data_date = EXCLUDED.data_date,
            fetched_at = EXCLUDED.fetched_at,
            payload = EXCLUDED.payload,
            updated_at = NOW()
    `, areaKey(data.Area), string(data.Source), data.DataDate.String(), data.FetchedAt, payload)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (s *PostgresRepo) Load(ctx context.Context, area string) (*models.IntervalPriceData, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM price_snapshots WHERE area = $1", areaKey(area),
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(payload)
}

func (s *PostgresRepo) LoadAll(ctx context.Context) ([]*models.IntervalPriceData, error) {
	return loadAll(ctx, s.db, "SELECT payload FROM price_snapshots")
}

func (s *PostgresRepo) Delete(ctx context.Context, area string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM price_snapshots WHERE area = $1", areaKey(area))
	return err
}

// Close releases all database resources.
func (s *PostgresRepo) Close() error {
	return s.db.Close()
}

func loadAll(ctx context.Context, db *sql.DB, query string) ([]*models.IntervalPriceData, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*models.IntervalPriceData
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		data, err := decodeSnapshot(payload)
		if err != nil {
			return nil, err
		}
		results = append(results, data)
	}
	return results, rows.Err()
}

// Compile-time interface implementation check
var _ SnapshotRepository = (*PostgresRepo)(nil)
