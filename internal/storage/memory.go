// internal/storage/memory.go
package storage

import (
	"context"
	"sync"

	"aquacare-relay/internal/data"
)

// MemoryStore keeps thresholds and the latest sensor values in process. It backs
// local development and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	thresholds map[data.Metric]data.Bounds
	latest     map[string]interface{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		thresholds: make(map[data.Metric]data.Bounds),
		latest:     make(map[string]interface{}),
	}
}

func (s *MemoryStore) Bounds(_ context.Context, metric data.Metric) (data.Bounds, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.thresholds[metric]
	return b, ok, nil
}

func (s *MemoryStore) SetBounds(_ context.Context, metric data.Metric, b data.Bounds) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thresholds[metric] = b
	return nil
}

func (s *MemoryStore) Update(_ context.Context, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range fields {
		s.latest[k] = v
	}
	return nil
}

// Latest returns a copy so callers cannot race with later updates.
func (s *MemoryStore) Latest(_ context.Context) (map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make(map[string]interface{}, len(s.latest))
	for k, v := range s.latest {
		result[k] = v
	}
	return result, nil
}
