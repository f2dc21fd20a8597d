package store

import (
	"context"
	"sync"
)

// MemoryBackend keeps entities in process memory.
type MemoryBackend struct {
	mu       sync.RWMutex
	entities map[string]map[string]Entity // type -> id -> entity
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entities: make(map[string]map[string]Entity)}
}

func (m *MemoryBackend) Get(_ context.Context, key Key) (Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entities[key.Type][key.ID].Clone(), nil
}

func (m *MemoryBackend) Put(_ context.Context, key Key, entity Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID := m.entities[key.Type]
	if byID == nil {
		byID = make(map[string]Entity)
		m.entities[key.Type] = byID
	}
	byID[key.ID] = entity.Clone()
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, key Key) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID := m.entities[key.Type]
	if _, ok := byID[key.ID]; !ok {
		return false, nil
	}
	delete(byID, key.ID)
	return true, nil
}

func (m *MemoryBackend) Scan(_ context.Context, entityType string) ([]Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byID := m.entities[entityType]
	out := make([]Entity, 0, len(byID))
	for _, e := range byID {
		out = append(out, e.Clone())
	}
	return out, nil
}

func (m *MemoryBackend) Close() error { return nil }
