package tpp

import "context"

// Store persists stop list entries. Writes are guarded by the entry's
// version so concurrent block and unblock requests cannot silently
// overwrite each other.
type Store interface {
	Save(ctx context.Context, entry *StopListEntry) error
	FindByAuthorisationNumber(ctx context.Context, authorisationNumber, instanceID string) (*StopListEntry, error)
	UpdateIfVersion(ctx context.Context, entry *StopListEntry) error

	CountBlockedWithExpiry(ctx context.Context) (int, error)
	FindBlockedWithExpiry(ctx context.Context, offset, limit int) ([]*StopListEntry, error)
	SaveAll(ctx context.Context, entries []*StopListEntry) error
}
