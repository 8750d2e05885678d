package store

import (
	"context"
	"sync"
)

// Memory is a Backend that keeps everything in process. Used in tests and
// when CACHE_BACKEND=memory.
type Memory struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]map[string][]byte)}
}

var _ Backend = (*Memory)(nil)

func (m *Memory) GetAll(_ context.Context, namespace string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]byte, len(m.data[namespace]))
	for k, v := range m.data[namespace] {
		out[k] = append([]byte(nil), v...)
	}
	return out, nil
}

func (m *Memory) SetAll(_ context.Context, namespace string, entries map[string][]byte) error {
	cp := make(map[string][]byte, len(entries))
	for k, v := range entries {
		cp[k] = append([]byte(nil), v...)
	}
	m.mu.Lock()
	m.data[namespace] = cp
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }
