package database

import (
	"context"
	"sync"

	"github.com/tejusbharadwaj/spotprice/internal/models"
)

// MemoryRepo keeps encoded snapshots in a map. It round-trips through the
// same encoding as the durable backends.
type MemoryRepo struct {
	mu        sync.RWMutex
	snapshots map[string][]byte
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{snapshots: make(map[string][]byte)}
}

func (m *MemoryRepo) Save(_ context.Context, data *models.IntervalPriceData) error {
	payload, err := encodeSnapshot(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[areaKey(data.Area)] = payload
	return nil
}

func (m *MemoryRepo) Load(_ context.Context, area string) (*models.IntervalPriceData, error) {
	m.mu.RLock()
	payload, ok := m.snapshots[areaKey(area)]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	return decodeSnapshot(payload)
}

func (m *MemoryRepo) LoadAll(_ context.Context) ([]*models.IntervalPriceData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.IntervalPriceData, 0, len(m.snapshots))
	for _, payload := range m.snapshots {
		data, err := decodeSnapshot(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}

func (m *MemoryRepo) Delete(_ context.Context, area string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, areaKey(area))
	return nil
}

func (m *MemoryRepo) Close() error { return nil }

var _ SnapshotRepository = (*MemoryRepo)(nil)
