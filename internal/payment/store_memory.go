package payment

import (
	"context"
	"sort"
	"sync"

	dErrors "xs2acms/pkg/domain-errors"
)

// InMemoryStore backs tests and local development.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Payment
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*Payment)}
}

func (s *InMemoryStore) Save(_ context.Context, p *Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.records[p.ExternalID] = &cp
	return nil
}

func (s *InMemoryStore) FindByExternalID(_ context.Context, externalID string) (*Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[externalID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeResourceUnknown, "payment not found")
	}
	cp := *rec
	return &cp, nil
}

func (s *InMemoryStore) UpdateStatusIfVersion(_ context.Context, externalID string, expectedVersion int64, status TransactionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[externalID]
	if !ok {
		return dErrors.New(dErrors.CodeResourceUnknown, "payment not found")
	}
	if rec.Version != expectedVersion {
		return dErrors.New(dErrors.CodeStatusConflict, "payment was modified concurrently")
	}
	if rec.Status.IsFinalised() {
		return dErrors.New(dErrors.CodeStatusConflict, "payment status is finalised")
	}
	rec.Status = status
	rec.Version++
	return nil
}

func (s *InMemoryStore) CountByStatusIn(_ context.Context, statuses []TransactionStatus) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, rec := range s.records {
		if statusIn(rec.Status, statuses) {
			count++
		}
	}
	return count, nil
}

func (s *InMemoryStore) FindByStatusIn(_ context.Context, statuses []TransactionStatus, offset, limit int) ([]*Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*Payment
	for _, rec := range s.records {
		if statusIn(rec.Status, statuses) {
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

func (s *InMemoryStore) SaveAll(_ context.Context, batch []*Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range batch {
		if rec, exists := s.records[p.ExternalID]; exists && rec.Status.IsFinalised() {
			continue
		}
		cp := *p
		cp.Version++
		s.records[p.ExternalID] = &cp
	}
	return nil
}

func statusIn(status TransactionStatus, statuses []TransactionStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}
