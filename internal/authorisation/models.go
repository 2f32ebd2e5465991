package authorisation

import (
	"time"

	"github.com/google/uuid"
)

// ScaStatus is the SCA lifecycle status of a single authorisation.
type ScaStatus string

const (
	ScaStatusReceived          ScaStatus = "RECEIVED"
	ScaStatusPsuIdentified     ScaStatus = "PSUIDENTIFIED"
	ScaStatusPsuAuthenticated  ScaStatus = "PSUAUTHENTICATED"
	ScaStatusScaMethodSelected ScaStatus = "SCAMETHODSELECTED"
	ScaStatusStarted           ScaStatus = "STARTED"
	ScaStatusFinalised         ScaStatus = "FINALISED"
	ScaStatusFailed            ScaStatus = "FAILED"
	ScaStatusExempted          ScaStatus = "EXEMPTED"
)

// IsFinalised reports whether the status is terminal. Terminal authorisations
// accept no further writes.
func (s ScaStatus) IsFinalised() bool {
	switch s {
	case ScaStatusFinalised, ScaStatusFailed, ScaStatusExempted:
		return true
	}
	return false
}

// IsSuccess reports whether the status counts toward multilevel completion.
func (s ScaStatus) IsSuccess() bool {
	return s == ScaStatusFinalised || s == ScaStatusExempted
}

// ScaApproach is the SCA delivery approach, fixed per authorisation at
// creation time.
type ScaApproach string

const (
	ApproachRedirect  ScaApproach = "REDIRECT"
	ApproachDecoupled ScaApproach = "DECOUPLED"
	ApproachEmbedded  ScaApproach = "EMBEDDED"
)

// Type discriminates which kind of parent resource owns the authorisation.
type Type string

const (
	TypeConsent         Type = "CONSENT"
	TypePisCreation     Type = "PIS_CREATION"
	TypePisCancellation Type = "PIS_CANCELLATION"
)

// Event is a PSU interaction step applied to the state machine.
type Event string

const (
	EventIdentifyPSU     Event = "IDENTIFY_PSU"
	EventAuthenticatePSU Event = "AUTHENTICATE_PSU"
	EventSelectMethod    Event = "SELECT_METHOD"
	EventSubmitChallenge Event = "SUBMIT_CHALLENGE"
	EventConfirm         Event = "CONFIRM"
	EventFail            Event = "FAIL"
	EventExempt          Event = "EXEMPT"
)

// ScaMethod is one authentication method the ASPSP offers a PSU.
type ScaMethod struct {
	ID   string
	Name string
}

// Authorisation is one SCA attempt owned by exactly one consent or payment.
type Authorisation struct {
	ID               uuid.UUID
	ExternalID       string
	ParentExternalID string
	Type             Type
	ScaApproach      ScaApproach
	ScaStatus        ScaStatus
	PsuID            string

	AuthenticationMethodID string
	AvailableMethods       []ScaMethod

	RedirectURLExpiresAt *time.Time
	ExpiresAt            *time.Time

	InstanceID string
	Version    int64
}

// RedirectExpired reports whether the redirect URL window has elapsed. A nil
// timestamp means the URL never expires via this mechanism.
func (a *Authorisation) RedirectExpired(now time.Time) bool {
	return a.RedirectURLExpiresAt != nil && a.RedirectURLExpiresAt.Before(now)
}

// Expired reports whether the confirmation window for the whole
// authorisation has elapsed.
func (a *Authorisation) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && a.ExpiresAt.Before(now)
}
