package storage

import (
	"context"
	"sync"

	"NYCU-SDC/workflow-editor-backend/internal"
)

// Memory keeps slots in process memory. Contents are lost on restart.
type Memory struct {
	mu    sync.RWMutex
	slots map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{slots: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.slots[key]
	if !ok {
		return nil, internal.ErrSlotNotFound
	}
	return append([]byte(nil), value...), nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.slots[key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.slots[key]; !ok {
		return internal.ErrSlotNotFound
	}
	delete(m.slots, key)
	return nil
}
