package httptransport

import (
	"context"
	"time"

	"xs2acms/internal/authorisation"
	"xs2acms/internal/consent"
	consentservice "xs2acms/internal/consent/service"
	"xs2acms/internal/payment"
	paymentservice "xs2acms/internal/payment/service"
)

// Consumer-side views of the domain services. Handlers depend on these
// instead of the concrete types so tests can stub a single surface.

type ConsentService interface {
	Create(ctx context.Context, req consentservice.CreateRequest) (*consent.Consent, error)
	Get(ctx context.Context, externalID string) (*consent.Consent, error)
	RevokeByPsu(ctx context.Context, externalID string) error
	TerminateByTpp(ctx context.Context, externalID string) error
	RecordUsage(ctx context.Context, externalID, requestURI string) error
}

type PaymentService interface {
	Create(ctx context.Context, req paymentservice.CreateRequest) (*payment.Payment, error)
	Get(ctx context.Context, externalID string) (*payment.Payment, error)
}

type AuthorisationService interface {
	CreateAuthorisation(ctx context.Context, typ authorisation.Type, parentExternalID, psuID string) (*authorisation.Result, error)
	UpdateAuthorisation(ctx context.Context, req authorisation.UpdateRequest) (*authorisation.Result, error)
	GetScaStatus(ctx context.Context, authorisationID string) (authorisation.ScaStatus, error)
	UpdateScaStatus(ctx context.Context, authorisationID string, status authorisation.ScaStatus) error
	ListByParent(ctx context.Context, typ authorisation.Type, parentExternalID string) ([]*authorisation.Authorisation, error)
}

type StopListService interface {
	Block(ctx context.Context, authorisationNumber, instanceID string, duration time.Duration) error
	Unblock(ctx context.Context, authorisationNumber, instanceID string) error
	IsBlocked(ctx context.Context, authorisationNumber, instanceID string) (bool, error)
}
