package repository

import (
	"context"
	"sync"

	"macsleuth/internal/domain"
)

// MemoryStore keeps the snapshot in process. Used for dry runs and tests.
type MemoryStore struct {
	mu    sync.Mutex
	snap  *domain.Snapshot
	saves int
}

// NewMemoryStore creates a store holding snap, or an empty snapshot if nil
func NewMemoryStore(snap *domain.Snapshot) *MemoryStore {
	if snap == nil {
		snap = domain.NewSnapshot()
	}
	return &MemoryStore{snap: snap}
}

// Load returns the held snapshot
func (m *MemoryStore) Load(ctx context.Context) (*domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap, nil
}

// Save replaces the held snapshot
func (m *MemoryStore) Save(ctx context.Context, snap *domain.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = snap
	m.saves++
	return nil
}

// Saves returns how many times Save succeeded
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
