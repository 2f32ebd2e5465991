package tpp

import (
	"context"
	"sort"
	"sync"

	dErrors "xs2acms/pkg/domain-errors"
)

// InMemoryStore backs tests and local development with the same version
// discipline as the Postgres store.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*StopListEntry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*StopListEntry)}
}

func (s *InMemoryStore) key(authorisationNumber, instanceID string) string {
	return authorisationNumber + "|" + instanceID
}

func (s *InMemoryStore) Save(_ context.Context, entry *StopListEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.key(entry.TppAuthorisationNumber, entry.InstanceID)
	if _, exists := s.records[k]; exists {
		return dErrors.New(dErrors.CodeConflict, "stop list entry already exists")
	}
	cp := *entry
	s.records[k] = &cp
	return nil
}

func (s *InMemoryStore) FindByAuthorisationNumber(_ context.Context, authorisationNumber, instanceID string) (*StopListEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[s.key(authorisationNumber, instanceID)]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "stop list entry not found")
	}
	cp := *rec
	return &cp, nil
}

func (s *InMemoryStore) UpdateIfVersion(_ context.Context, entry *StopListEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.key(entry.TppAuthorisationNumber, entry.InstanceID)
	rec, ok := s.records[k]
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "stop list entry not found")
	}
	if rec.Version != entry.Version {
		return dErrors.New(dErrors.CodeStatusConflict, "stop list entry was modified concurrently")
	}
	cp := *entry
	cp.Version = entry.Version + 1
	s.records[k] = &cp
	entry.Version = cp.Version
	return nil
}

func (s *InMemoryStore) CountBlockedWithExpiry(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, rec := range s.records {
		if rec.Status == StatusBlocked && rec.BlockingExpiresAt != nil {
			count++
		}
	}
	return count, nil
}

func (s *InMemoryStore) FindBlockedWithExpiry(_ context.Context, offset, limit int) ([]*StopListEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*StopListEntry
	for _, rec := range s.records {
		if rec.Status == StatusBlocked && rec.BlockingExpiresAt != nil {
			cp := *rec
			matched = append(matched, &cp)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	if offset >= len(matched) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (s *InMemoryStore) SaveAll(_ context.Context, batch []*StopListEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range batch {
		cp := *entry
		cp.Version++
		s.records[s.key(entry.TppAuthorisationNumber, entry.InstanceID)] = &cp
	}
	return nil
}
