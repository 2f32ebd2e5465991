// Package approach holds the three SCA delivery strategies. The approach for
// a resource is resolved once at creation time from the bank profile and
// stored on the authorisation; it never changes mid-flow.
package approach

import (
	"context"
	"time"

	"github.com/google/uuid"

	"xs2acms/internal/authorisation"
	dErrors "xs2acms/pkg/domain-errors"
)

// Service is the common capability surface of the redirect, decoupled and
// embedded strategies. Strategies mutate the record in memory; persistence
// stays with the engine service so a failed step never leaves partial state.
type Service interface {
	// CreateAuthorisation allocates a new authorisation record for the
	// parent resource. The record is not yet persisted.
	CreateAuthorisation(ctx context.Context, parentExternalID string, typ authorisation.Type, psuID string, now time.Time) (*authorisation.Authorisation, *authorisation.Result, error)

	// UpdateAuthorisation applies the given state-machine event to the
	// record. A returned result with a terminal failure status must still be
	// persisted by the caller; any other error leaves the record untouched.
	UpdateAuthorisation(ctx context.Context, auth *authorisation.Authorisation, req authorisation.UpdateRequest, event authorisation.Event) (*authorisation.Result, error)

	ApproachType() authorisation.ScaApproach
}

// CredentialValidator is the external PSU verification collaborator (the
// bank's SPI in the original deployment).
type CredentialValidator interface {
	Authenticate(ctx context.Context, psuID, password string) error
	ValidateChallenge(ctx context.Context, psuID, methodID, challengeData string) error
	Methods(ctx context.Context, psuID string) ([]authorisation.ScaMethod, error)
}

// ScaChannel pushes decoupled challenges to the PSU's device. Delivery is
// out of scope; implementations only need to accept the hand-off.
type ScaChannel interface {
	Push(ctx context.Context, auth *authorisation.Authorisation) error
}

// Resolver dispatches to the strategy matching a stored approach tag.
type Resolver struct {
	services map[authorisation.ScaApproach]Service
}

func NewResolver(services ...Service) *Resolver {
	byApproach := make(map[authorisation.ScaApproach]Service, len(services))
	for _, svc := range services {
		byApproach[svc.ApproachType()] = svc
	}
	return &Resolver{services: byApproach}
}

// For returns the strategy registered for the approach.
func (r *Resolver) For(approach authorisation.ScaApproach) (Service, error) {
	svc, ok := r.services[approach]
	if !ok {
		return nil, dErrors.New(dErrors.CodeInternal, "no service registered for approach "+string(approach))
	}
	return svc, nil
}

// newRecord builds the base authorisation shared by all strategies.
func newRecord(parentExternalID string, typ authorisation.Type, psuID string, approach authorisation.ScaApproach, status authorisation.ScaStatus, redirectExpiry, authExpiry time.Duration, now time.Time) *authorisation.Authorisation {
	auth := &authorisation.Authorisation{
		ID:               uuid.New(),
		ExternalID:       uuid.NewString(),
		ParentExternalID: parentExternalID,
		Type:             typ,
		ScaApproach:      approach,
		ScaStatus:        status,
		PsuID:            psuID,
	}
	if redirectExpiry > 0 {
		t := now.Add(redirectExpiry)
		auth.RedirectURLExpiresAt = &t
	}
	if authExpiry > 0 {
		t := now.Add(authExpiry)
		auth.ExpiresAt = &t
	}
	return auth
}

// checkPsu enforces that the PSU in the request matches the recorded one.
// A mismatch is reported as resource-unknown, not as a credential error.
func checkPsu(auth *authorisation.Authorisation, psuID string) error {
	if psuID == "" || auth.PsuID == "" || auth.PsuID == psuID {
		return nil
	}
	return dErrors.New(dErrors.CodeResourceUnknown, "psu does not match authorisation")
}
