package consent

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	dErrors "xs2acms/pkg/domain-errors"
)

// InMemoryStore backs tests and local development.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Consent
	usage   map[string]int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[string]*Consent),
		usage:   make(map[string]int),
	}
}

func (s *InMemoryStore) Save(_ context.Context, c *Consent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, exists := s.records[c.ExternalID]; exists {
		if rec.Version != c.Version || rec.Status.IsFinalised() {
			return dErrors.New(dErrors.CodeStatusConflict, "consent is finalised or was modified concurrently")
		}
		cp := *c
		cp.Version = rec.Version + 1
		s.records[c.ExternalID] = &cp
		return nil
	}
	cp := *c
	s.records[c.ExternalID] = &cp
	return nil
}

func (s *InMemoryStore) FindByExternalID(_ context.Context, externalID string) (*Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[externalID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeResourceUnknown, "consent not found")
	}
	cp := *rec
	return &cp, nil
}

func (s *InMemoryStore) UpdateStatusIfVersion(_ context.Context, externalID string, expectedVersion int64, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[externalID]
	if !ok {
		return dErrors.New(dErrors.CodeResourceUnknown, "consent not found")
	}
	if rec.Version != expectedVersion {
		return dErrors.New(dErrors.CodeStatusConflict, "consent was modified concurrently")
	}
	if rec.Status.IsFinalised() {
		return dErrors.New(dErrors.CodeStatusConflict, "consent status is finalised")
	}
	rec.Status = status
	rec.Version++
	return nil
}

func (s *InMemoryStore) CountByStatusIn(_ context.Context, statuses []Status) (int, error) {
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

func (s *InMemoryStore) FindByStatusIn(_ context.Context, statuses []Status, offset, limit int) ([]*Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*Consent
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

func (s *InMemoryStore) SaveAll(_ context.Context, batch []*Consent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range batch {
		if rec, exists := s.records[c.ExternalID]; exists && rec.Status.IsFinalised() {
			continue
		}
		cp := *c
		cp.Version++
		s.records[c.ExternalID] = &cp
	}
	return nil
}

func (s *InMemoryStore) IncrementUsage(_ context.Context, consentExternalID, requestURI string, usageDate time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := usageKey(consentExternalID, requestURI, usageDate)
	s.usage[key]++
	return s.usage[key], nil
}

func (s *InMemoryStore) UsageCount(_ context.Context, consentExternalID string, usageDate time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	prefix := fmt.Sprintf("%s|", consentExternalID)
	day := usageDate.Format("2006-01-02")
	for key, count := range s.usage {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix && key[len(key)-10:] == day {
			total += count
		}
	}
	return total, nil
}

func usageKey(consentExternalID, requestURI string, usageDate time.Time) string {
	return fmt.Sprintf("%s|%s|%s", consentExternalID, requestURI, usageDate.Format("2006-01-02"))
}

func statusIn(status Status, statuses []Status) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}
