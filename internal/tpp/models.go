package tpp

import "time"

// StopListStatus is the lifecycle state of a TPP stop list entry.
type StopListStatus string

const (
	StatusEnabled StopListStatus = "ENABLED"
	StatusBlocked StopListStatus = "BLOCKED"
)

// StopListEntry records whether a TPP is allowed to use the service.
// A block may carry an expiration; once that passes the entry behaves as
// enabled even before the unblock sweep rewrites it.
type StopListEntry struct {
	ID                     string
	TppAuthorisationNumber string
	Status                 StopListStatus
	BlockingExpiresAt      *time.Time
	InstanceID             string
	Version                int64
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// BlockActive reports whether the entry blocks requests at the given time.
func (e *StopListEntry) BlockActive(now time.Time) bool {
	if e.Status != StatusBlocked {
		return false
	}
	if e.BlockingExpiresAt == nil {
		return true
	}
	return now.Before(*e.BlockingExpiresAt)
}

// BlockExpired reports whether a timed block has lapsed and the entry is
// due for the unblock sweep.
func (e *StopListEntry) BlockExpired(now time.Time) bool {
	return e.Status == StatusBlocked && e.BlockingExpiresAt != nil && !now.Before(*e.BlockingExpiresAt)
}
