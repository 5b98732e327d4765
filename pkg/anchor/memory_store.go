package anchor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/FTHTrading/boutique-sub000/pkg/gate"
)

// MemoryStore is an in-memory anchor store for tests and dry-run use.
type MemoryStore struct {
	mu      sync.RWMutex
	anchors map[string][]byte
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{anchors: make(map[string][]byte)}
}

// Save stores a deep copy of the anchor.
func (m *MemoryStore) Save(ctx context.Context, a *Anchor) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.anchors[a.ID] = raw
	return nil
}

// Get returns a copy of the stored anchor.
func (m *MemoryStore) Get(ctx context.Context, id string) (*Anchor, error) {
	m.mu.RLock()
	raw, ok := m.anchors[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: anchor %s", gate.ErrNotFound, id)
	}
	var a Anchor
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, err
	}
	return &a, nil
}
