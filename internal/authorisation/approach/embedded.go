package approach

import (
	"context"
	"log/slog"
	"time"

	"xs2acms/internal/authorisation"
	"xs2acms/internal/profile"
	dErrors "xs2acms/pkg/domain-errors"
)

// Embedded performs every SCA step inline. It is the only strategy that can
// legitimately walk the full transition table within request/response pairs.
type Embedded struct {
	profile   *profile.Profile
	validator CredentialValidator
	logger    *slog.Logger
}

func NewEmbedded(p *profile.Profile, validator CredentialValidator, logger *slog.Logger) *Embedded {
	return &Embedded{profile: p, validator: validator, logger: logger}
}

func (e *Embedded) ApproachType() authorisation.ScaApproach {
	return authorisation.ApproachEmbedded
}

func (e *Embedded) CreateAuthorisation(_ context.Context, parentExternalID string, typ authorisation.Type, psuID string, now time.Time) (*authorisation.Authorisation, *authorisation.Result, error) {
	auth := newRecord(parentExternalID, typ, psuID, authorisation.ApproachEmbedded,
		authorisation.ScaStatusReceived, 0, e.profile.AuthorisationExpiry, now)

	return auth, &authorisation.Result{
		AuthorisationID:  auth.ExternalID,
		ParentExternalID: parentExternalID,
		ScaStatus:        auth.ScaStatus,
		ScaApproach:      authorisation.ApproachEmbedded,
	}, nil
}

func (e *Embedded) UpdateAuthorisation(ctx context.Context, auth *authorisation.Authorisation, req authorisation.UpdateRequest, event authorisation.Event) (*authorisation.Result, error) {
	if err := checkPsu(auth, req.PsuID); err != nil {
		return nil, err
	}

	next, err := authorisation.Transition(auth.ScaStatus, event, auth.ScaApproach)
	if err != nil {
		return nil, err
	}

	switch event {
	case authorisation.EventIdentifyPSU:
		if req.PsuID == "" {
			return nil, dErrors.New(dErrors.CodeBadRequest, "psu identification data is required")
		}
		auth.PsuID = req.PsuID
		auth.ScaStatus = next
		return result(auth, "", nil), nil

	case authorisation.EventAuthenticatePSU:
		if err := e.validator.Authenticate(ctx, auth.PsuID, req.Password); err != nil {
			return e.fail(ctx, auth, "PSU authentication failed",
				dErrors.Wrap(err, dErrors.CodePsuCredentialsInvalid, "psu credentials rejected"))
		}
		methods, err := e.validator.Methods(ctx, auth.PsuID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load sca methods")
		}
		auth.ScaStatus = next
		auth.AvailableMethods = methods
		return result(auth, "Please select an authentication method", nil), nil

	case authorisation.EventSelectMethod:
		if !e.methodOffered(auth, req.AuthenticationMethodID) {
			return nil, dErrors.New(dErrors.CodeBadRequest, "unknown authentication method")
		}
		auth.ScaStatus = next
		auth.AuthenticationMethodID = req.AuthenticationMethodID
		return result(auth, "Challenge sent", nil), nil

	case authorisation.EventSubmitChallenge:
		auth.ScaStatus = next
		return result(auth, "Please enter the received code", nil), nil

	case authorisation.EventConfirm:
		if err := e.validator.ValidateChallenge(ctx, auth.PsuID, auth.AuthenticationMethodID, req.ScaAuthenticationData); err != nil {
			return e.fail(ctx, auth, "Challenge validation failed",
				dErrors.Wrap(err, dErrors.CodePsuCredentialsInvalid, "challenge data rejected"))
		}
		auth.ScaStatus = next
		return result(auth, "Authorisation confirmed", nil), nil

	case authorisation.EventFail, authorisation.EventExempt:
		auth.ScaStatus = next
		return result(auth, "", nil), nil
	}

	return nil, dErrors.New(dErrors.CodeInvalidTransition, "unhandled event "+string(event))
}

// fail force-transitions the authorisation and hands back both the failure
// result (so the caller persists FAILED) and the credential error.
func (e *Embedded) fail(ctx context.Context, auth *authorisation.Authorisation, psuMessage string, cause error) (*authorisation.Result, error) {
	next, err := authorisation.Transition(auth.ScaStatus, authorisation.EventFail, auth.ScaApproach)
	if err != nil {
		return nil, err
	}
	auth.ScaStatus = next
	e.logger.InfoContext(ctx, "embedded authorisation failed",
		"authorisation_id", auth.ExternalID)
	return result(auth, psuMessage, []string{"PSU_CREDENTIALS_INVALID"}), cause
}

func (e *Embedded) methodOffered(auth *authorisation.Authorisation, methodID string) bool {
	for _, m := range auth.AvailableMethods {
		if m.ID == methodID {
			return true
		}
	}
	return false
}
