package consent

import (
	"context"
	"time"
)

// Store is the persistence collaborator for consents.
type Store interface {
	Save(ctx context.Context, c *Consent) error
	FindByExternalID(ctx context.Context, externalID string) (*Consent, error)
	UpdateStatusIfVersion(ctx context.Context, externalID string, expectedVersion int64, status Status) error

	CountByStatusIn(ctx context.Context, statuses []Status) (int, error)
	FindByStatusIn(ctx context.Context, statuses []Status, offset, limit int) ([]*Consent, error)
	SaveAll(ctx context.Context, batch []*Consent) error
}

// UsageStore persists per-day usage counters with a forced-increment write
// discipline; increments must never be lost to races.
type UsageStore interface {
	IncrementUsage(ctx context.Context, consentExternalID, requestURI string, usageDate time.Time) (int, error)
	UsageCount(ctx context.Context, consentExternalID string, usageDate time.Time) (int, error)
}
