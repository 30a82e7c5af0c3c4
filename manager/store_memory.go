package manager

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory registry, used by tests and dry runs.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]ServerRecord
}

// NewMemoryStore creates an empty in-memory registry.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]ServerRecord),
	}
}

// List returns all records in deterministic name order.
func (s *MemoryStore) List(ctx context.Context) ([]ServerRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.items))
	for name := range s.items {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ServerRecord, 0, len(names))
	for _, name := range names {
		out = append(out, s.items[name].Clone())
	}
	return out, nil
}

// Get returns one record by name.
func (s *MemoryStore) Get(ctx context.Context, name string) (ServerRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return ServerRecord{}, false, err
	}

	clean := strings.TrimSpace(name)
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.items[clean]
	if !ok {
		return ServerRecord{}, false, nil
	}
	return rec.Clone(), true, nil
}

// Upsert inserts or updates one record.
func (s *MemoryStore) Upsert(ctx context.Context, rec ServerRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	clean := strings.TrimSpace(rec.Name)
	if clean == "" {
		return errors.New("manager: server name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Name = clean
	if rec.Status == "" {
		rec.Status = StatusInstalled
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		if prev, ok := s.items[clean]; ok && !prev.CreatedAt.IsZero() {
			rec.CreatedAt = prev.CreatedAt
		} else {
			rec.CreatedAt = now
		}
	}
	rec.UpdatedAt = now
	s.items[clean] = rec.Clone()
	return nil
}

// Delete removes one record by name.
func (s *MemoryStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	clean := strings.TrimSpace(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, clean)
	return nil
}

var _ Store = (*MemoryStore)(nil)
