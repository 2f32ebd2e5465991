package authorisation

import (
	"context"
	"sort"
	"sync"

	dErrors "xs2acms/pkg/domain-errors"
)

// InMemoryStore backs tests and local development. It applies the same
// version discipline as the Postgres store.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Authorisation
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*Authorisation)}
}

func (s *InMemoryStore) Save(_ context.Context, auth *Authorisation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[auth.ExternalID]; exists {
		return dErrors.New(dErrors.CodeConflict, "authorisation already exists")
	}
	cp := *auth
	s.records[auth.ExternalID] = &cp
	return nil
}

func (s *InMemoryStore) FindByExternalID(_ context.Context, externalID string) (*Authorisation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[externalID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeResourceUnknown, "authorisation not found")
	}
	cp := *rec
	return &cp, nil
}

func (s *InMemoryStore) FindByParent(_ context.Context, parentExternalID string, typ Type) ([]*Authorisation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Authorisation
	for _, rec := range s.records {
		if rec.ParentExternalID == parentExternalID && rec.Type == typ {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })
	return out, nil
}

func (s *InMemoryStore) UpdateIfVersion(_ context.Context, auth *Authorisation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[auth.ExternalID]
	if !ok {
		return dErrors.New(dErrors.CodeResourceUnknown, "authorisation not found")
	}
	if rec.Version != auth.Version {
		return dErrors.New(dErrors.CodeStatusConflict, "authorisation was modified concurrently")
	}
	cp := *auth
	cp.Version = auth.Version + 1
	s.records[auth.ExternalID] = &cp
	auth.Version = cp.Version
	return nil
}

func (s *InMemoryStore) CountByStatusIn(_ context.Context, statuses []ScaStatus) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, rec := range s.records {
		if statusIn(rec.ScaStatus, statuses) {
			count++
		}
	}
	return count, nil
}

func (s *InMemoryStore) FindByStatusIn(_ context.Context, statuses []ScaStatus, offset, limit int) ([]*Authorisation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*Authorisation
	for _, rec := range s.records {
		if statusIn(rec.ScaStatus, statuses) {
			cp := *rec
			matched = append(matched, &cp)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ExternalID < matched[j].ExternalID })
	if offset >= len(matched) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (s *InMemoryStore) SaveAll(_ context.Context, batch []*Authorisation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, auth := range batch {
		if rec, exists := s.records[auth.ExternalID]; exists && rec.ScaStatus.IsFinalised() {
			continue
		}
		cp := *auth
		cp.Version++
		s.records[auth.ExternalID] = &cp
	}
	return nil
}

func statusIn(status ScaStatus, statuses []ScaStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}
