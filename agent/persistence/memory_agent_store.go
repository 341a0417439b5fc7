package persistence

import (
	"context"
	"sort"
	"sync"
)

// MemoryAgentStore is an in-memory implementation of AgentStore.
// It keeps live agent instances, so restored records are Live when an agent was saved.
// Data is lost when the process exits.
type MemoryAgentStore struct {
	records map[string]Record
	mu      sync.RWMutex
	closed  bool
}

// NewMemoryAgentStore creates a new in-memory agent store
func NewMemoryAgentStore() *MemoryAgentStore {
	return &MemoryAgentStore{records: make(map[string]Record)}
}

// Close closes the store
func (s *MemoryAgentStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.records = nil
	return nil
}

// Ping checks if the store is healthy
func (s *MemoryAgentStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Save stores the record, keeping the live instance if present
func (s *MemoryAgentStore) Save(ctx context.Context, rec Record) error {
	if err := validateRecord(&rec); err != nil {
		return err
	}
	rec.Definition = rec.Definition.Clone()
	rec.Live = false

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.records[rec.Name] = rec
	return nil
}

// Restore returns the saved record. Live is true when an instance was saved.
func (s *MemoryAgentStore) Restore(ctx context.Context, name string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	rec, ok := s.records[name]
	if !ok {
		return nil, ErrNotFound
	}
	rec.Definition = rec.Definition.Clone()
	rec.Live = rec.Agent != nil
	return &rec, nil
}

// Remove deletes the record
func (s *MemoryAgentStore) Remove(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if _, ok := s.records[name]; !ok {
		return ErrNotFound
	}
	delete(s.records, name)
	return nil
}

// List returns the saved names
func (s *MemoryAgentStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	names := make([]string, 0, len(s.records))
	for name := range s.records {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
