package payment

import (
	"time"

	"github.com/google/uuid"
)

// TransactionStatus is the ISO 20022 transaction status subset the engine
// cares about.
type TransactionStatus string

const (
	StatusReceived            TransactionStatus = "RCVD"
	StatusPartiallyAuthorised TransactionStatus = "PATC"
	StatusAccepted            TransactionStatus = "ACCP"
	StatusRejected            TransactionStatus = "RJCT"
	StatusCancelled           TransactionStatus = "CANC"
	StatusExpired             TransactionStatus = "EXPD"
)

// IsFinalised reports whether the payment accepts further status writes.
func (s TransactionStatus) IsFinalised() bool {
	switch s {
	case StatusAccepted, StatusRejected, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Payment is a pending or executed payment initiation.
type Payment struct {
	ID         uuid.UUID
	ExternalID string
	Status     TransactionStatus

	MultilevelScaRequired bool
	PsuIDs                []string

	PaymentData []byte

	TppAuthorisationNumber string
	InstanceID             string
	Version                int64
	CreatedAt              time.Time
}

// ConfirmationExpired reports whether a payment still awaiting authorisation
// outlived its confirmation window.
func (p *Payment) ConfirmationExpired(now time.Time, window time.Duration) bool {
	if p.Status != StatusReceived && p.Status != StatusPartiallyAuthorised {
		return false
	}
	return p.CreatedAt.Add(window).Before(now)
}
