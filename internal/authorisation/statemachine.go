package authorisation

import (
	dErrors "xs2acms/pkg/domain-errors"
)

// Transition applies an SCA event to the current status and returns the next
// status. It is a pure function: callers must not persist anything when an
// error comes back.
//
// Method selection only exists in the embedded flow. Redirect delegates the
// whole challenge to the external hand-off and decoupled pushes it
// out-of-band, so SELECT_METHOD is invalid for both.
func Transition(current ScaStatus, event Event, approach ScaApproach) (ScaStatus, error) {
	if current.IsFinalised() {
		return current, dErrors.New(dErrors.CodeInvalidTransition,
			"authorisation is finalised, no further transitions allowed")
	}

	switch event {
	case EventFail:
		return ScaStatusFailed, nil

	case EventExempt:
		if current == ScaStatusReceived {
			return ScaStatusExempted, nil
		}

	case EventIdentifyPSU:
		if current == ScaStatusReceived {
			return ScaStatusPsuIdentified, nil
		}

	case EventAuthenticatePSU:
		if current == ScaStatusPsuIdentified {
			return ScaStatusPsuAuthenticated, nil
		}

	case EventSelectMethod:
		if current == ScaStatusPsuAuthenticated && approach == ApproachEmbedded {
			return ScaStatusScaMethodSelected, nil
		}

	case EventSubmitChallenge:
		if current == ScaStatusScaMethodSelected {
			return ScaStatusStarted, nil
		}
		// Single-factor flows skip method selection entirely.
		if current == ScaStatusPsuAuthenticated {
			return ScaStatusStarted, nil
		}

	case EventConfirm:
		if current == ScaStatusStarted {
			return ScaStatusFinalised, nil
		}

	default:
		return current, dErrors.New(dErrors.CodeInvalidTransition, "unknown event "+string(event))
	}

	return current, dErrors.New(dErrors.CodeInvalidTransition,
		string(event)+" is not valid in status "+string(current))
}
