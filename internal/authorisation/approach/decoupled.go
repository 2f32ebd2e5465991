package approach

import (
	"context"
	"log/slog"
	"time"

	"xs2acms/internal/authorisation"
	"xs2acms/internal/profile"
	dErrors "xs2acms/pkg/domain-errors"
)

// Decoupled delegates challenge issuance and validation to an external SCA
// channel (typically the bank's mobile app). The authorisation starts at
// STARTED because the challenge is pushed out-of-band at creation time; the
// TPP then polls the SCA status until the channel reports an outcome.
type Decoupled struct {
	profile *profile.Profile
	channel ScaChannel
	logger  *slog.Logger
}

func NewDecoupled(p *profile.Profile, channel ScaChannel, logger *slog.Logger) *Decoupled {
	return &Decoupled{profile: p, channel: channel, logger: logger}
}

func (d *Decoupled) ApproachType() authorisation.ScaApproach {
	return authorisation.ApproachDecoupled
}

func (d *Decoupled) CreateAuthorisation(ctx context.Context, parentExternalID string, typ authorisation.Type, psuID string, now time.Time) (*authorisation.Authorisation, *authorisation.Result, error) {
	auth := newRecord(parentExternalID, typ, psuID, authorisation.ApproachDecoupled,
		authorisation.ScaStatusStarted, 0, d.profile.AuthorisationExpiry, now)

	if err := d.channel.Push(ctx, auth); err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to push decoupled challenge")
	}

	return auth, &authorisation.Result{
		AuthorisationID:  auth.ExternalID,
		ParentExternalID: parentExternalID,
		ScaStatus:        auth.ScaStatus,
		ScaApproach:      authorisation.ApproachDecoupled,
		PsuMessage:       "Please confirm the authorisation in your banking app",
	}, nil
}

func (d *Decoupled) UpdateAuthorisation(ctx context.Context, auth *authorisation.Authorisation, req authorisation.UpdateRequest, event authorisation.Event) (*authorisation.Result, error) {
	if err := checkPsu(auth, req.PsuID); err != nil {
		return nil, err
	}

	switch event {
	case authorisation.EventConfirm, authorisation.EventFail, authorisation.EventExempt:
		next, err := authorisation.Transition(auth.ScaStatus, event, auth.ScaApproach)
		if err != nil {
			return nil, err
		}
		auth.ScaStatus = next
		msg := ""
		if next == authorisation.ScaStatusFinalised {
			msg = "Authorisation confirmed"
		}
		return result(auth, msg, nil), nil
	}

	// A request that implies no actionable channel outcome is an error, not
	// a silent no-op; silent no-ops would make the state machine unauditable.
	d.logger.WarnContext(ctx, "decoupled update carried no actionable payload",
		"authorisation_id", auth.ExternalID, "event", string(event))
	return nil, dErrors.New(dErrors.CodeInvalidTransition,
		string(event)+" is not supported by the decoupled approach")
}
