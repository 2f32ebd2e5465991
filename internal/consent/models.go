package consent

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle status of a consent.
type Status string

const (
	StatusReceived            Status = "RECEIVED"
	StatusPartiallyAuthorised Status = "PARTIALLY_AUTHORISED"
	StatusValid               Status = "VALID"
	StatusRejected            Status = "REJECTED"
	StatusExpired             Status = "EXPIRED"
	StatusRevokedByPsu        Status = "REVOKED_BY_PSU"
	StatusTerminatedByTpp     Status = "TERMINATED_BY_TPP"
)

// IsFinalised reports whether the status is terminal. VALID is terminal only
// once a non-recurring consent has been used; that case belongs to the
// scheduler, not to request handling.
func (s Status) IsFinalised() bool {
	switch s {
	case StatusRejected, StatusExpired, StatusRevokedByPsu, StatusTerminatedByTpp:
		return true
	}
	return false
}

// PsuData identifies one PSU attached to the consent. Multilevel consents
// carry one entry per required authoriser.
type PsuData struct {
	PsuID string
}

// Consent is a granted or pending account-access permission scope.
type Consent struct {
	ID         uuid.UUID
	ExternalID string
	Status     Status

	RecurringIndicator    bool
	ValidUntil            time.Time
	ExpireDate            time.Time
	FrequencyPerDay       int
	MultilevelScaRequired bool

	PsuData []PsuData

	// ConsentData is the encrypted access blob; only the crypto identifier
	// service can read it.
	ConsentData []byte

	LastUsedAt           *time.Time
	SigningBasketBlocked bool

	TppAuthorisationNumber string
	InstanceID             string
	Version                int64
	CreatedAt              time.Time
}

// ExpiredByDate reports whether the consent's validity window has passed.
// A consent valid until today is still usable today; expiry is strictly
// less-than.
func (c *Consent) ExpiredByDate(today time.Time) bool {
	return c.ValidUntil.Before(truncateToDay(today))
}

// UsedNonRecurringExpired reports whether a one-off consent was used on a
// previous day. The scheduler owns this transition; request handling never
// applies it directly.
func (c *Consent) UsedNonRecurringExpired(today time.Time) bool {
	if c.RecurringIndicator || c.LastUsedAt == nil {
		return false
	}
	return c.LastUsedAt.Before(truncateToDay(today))
}

// ConfirmationExpired reports whether a consent still awaiting authorisation
// outlived its confirmation window.
func (c *Consent) ConfirmationExpired(now time.Time, window time.Duration) bool {
	if c.Status != StatusReceived && c.Status != StatusPartiallyAuthorised {
		return false
	}
	return c.CreatedAt.Add(window).Before(now)
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// UsageRecord counts accesses per request URI per day. Regulatory frequency
// limits make undercounting unacceptable, so increments use a forced-write
// discipline in the store instead of plain optimistic reads.
type UsageRecord struct {
	ConsentExternalID string
	RequestURI        string
	UsageDate         time.Time
	UsageCount        int
}
