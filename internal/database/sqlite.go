package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/tejusbharadwaj/spotprice/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS price_snapshots (
    area       TEXT PRIMARY KEY,
    source     TEXT NOT NULL,
    data_date  TEXT NOT NULL,
    fetched_at INTEGER NOT NULL,
    payload    BLOB NOT NULL,
    updated_at INTEGER NOT NULL
)`

// SQLiteRepo implements SnapshotRepository on an embedded SQLite file.
type SQLiteRepo struct {
	db *sql.DB
}

// NewSQLiteRepo opens (or creates) the database at path in WAL mode.
func NewSQLiteRepo(ctx context.Context, path string) (*SQLiteRepo, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serialises writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create snapshot table: %w", err)
	}
	return &SQLiteRepo{db: db}, nil
}

func (s *SQLiteRepo) Save(ctx context.Context, data *models.IntervalPriceData) error {
	payload, err := encodeSnapshot(data)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO price_snapshots (area, source, data_date, fetched_at, payload, updated_at)
        VALUES (?, ?, ?, ?, ?, strftime('%s','now'))
        ON CONFLICT (area) DO UPDATE SET
            source = excluded.source,
            data_date = excluded.data_date,
            fetched_at = excluded.fetched_at,
            payload = excluded.payload,
            updated_at = excluded.updated_at
    `, areaKey(data.Area), string(data.Source), data.DataDate.String(), data.FetchedAt.Unix(), payload)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteRepo) Load(ctx context.Context, area string) (*models.IntervalPriceData, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM price_snapshots WHERE area = ?", areaKey(area),
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(payload)
}

func (s *SQLiteRepo) LoadAll(ctx context.Context) ([]*models.IntervalPriceData, error) {
	return loadAll(ctx, s.db, "SELECT payload FROM price_snapshots")
}

func (s *SQLiteRepo) Delete(ctx context.Context, area string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM price_snapshots WHERE area = ?", areaKey(area))
	return err
}

func (s *SQLiteRepo) Close() error {
	return s.db.Close()
}

var _ SnapshotRepository = (*SQLiteRepo)(nil)
