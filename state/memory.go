package state

import (
	"context"
	"sync"
)

// MemoryStore keeps the snapshot in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	snap Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(_ context.Context) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.snap.Initialized() {
		return Snapshot{}, ErrUninitialized
	}
	return m.snap, nil
}

func (m *MemoryStore) Commit(_ context.Context, preconditions []Token, writes []Write) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.snap.Validate(preconditions); err != nil {
		return Snapshot{}, err
	}
	next, err := m.snap.Apply(writes)
	if err != nil {
		return Snapshot{}, err
	}
	m.snap = next
	return next, nil
}

func (m *MemoryStore) Close() error { return nil }
