package statestore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/webdash/storefront/internal/domain"
)

// MemoryStore keeps serialized snapshots in a map. Values are stored as JSON
// so readers never share slices with writers.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (m *MemoryStore) Load(_ context.Context, key string) domain.State {
	m.mu.RLock()
	data, ok := m.blobs[key]
	m.mu.RUnlock()
	if !ok {
		return domain.EmptyState()
	}

	var state domain.State
	if err := json.Unmarshal(data, &state); err != nil {
		return domain.EmptyState()
	}
	return state.Normalize()
}

func (m *MemoryStore) Persist(_ context.Context, key string, state domain.State) error {
	data, err := json.Marshal(state.Normalize())
	if err != nil {
		return fmt.Errorf("marshal state failed: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = data
	return nil
}

// SetRaw stores an arbitrary blob, e.g. to simulate corruption.
func (m *MemoryStore) SetRaw(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = data
}
