package authorisation

// UpdateRequest is one PSU interaction step against an existing
// authorisation. Which fields are set determines the state-machine event the
// processor chain applies.
type UpdateRequest struct {
	AuthorisationID string
	PsuID           string

	// Password authenticates the PSU in the embedded flow.
	Password string

	// AuthenticationMethodID selects one of the offered SCA methods.
	AuthenticationMethodID string

	// ScaAuthenticationData is the challenge response (e.g. an OTP).
	ScaAuthenticationData string

	// ConfirmationCode closes out a redirect authorisation via the
	// confirmation callback.
	ConfirmationCode string
}

// Result is what an authorisation step hands back to the caller and to the
// outbound notification path.
type Result struct {
	AuthorisationID  string
	ParentExternalID string
	ScaStatus        ScaStatus
	ScaApproach      ScaApproach

	// RedirectURL is only set by the redirect approach on creation.
	RedirectURL string

	AvailableMethods []ScaMethod

	PsuMessage  string
	TppMessages []string
}
