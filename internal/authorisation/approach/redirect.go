package approach

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"xs2acms/internal/authorisation"
	"xs2acms/internal/profile"
	dErrors "xs2acms/pkg/domain-errors"
)

// Redirect hands SCA off to the bank's online banking via a signed link.
// It never validates challenges locally; the only inputs it accepts are PSU
// identification data and the confirmation code from the callback.
type Redirect struct {
	profile *profile.Profile
	links   *LinkBuilder
	logger  *slog.Logger
	now     func() time.Time
}

type RedirectOption func(*Redirect)

func WithRedirectClock(now func() time.Time) RedirectOption {
	return func(r *Redirect) {
		r.now = now
	}
}

func NewRedirect(p *profile.Profile, links *LinkBuilder, logger *slog.Logger, opts ...RedirectOption) *Redirect {
	r := &Redirect{profile: p, links: links, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redirect) ApproachType() authorisation.ScaApproach {
	return authorisation.ApproachRedirect
}

func (r *Redirect) CreateAuthorisation(_ context.Context, parentExternalID string, typ authorisation.Type, psuID string, now time.Time) (*authorisation.Authorisation, *authorisation.Result, error) {
	auth := newRecord(parentExternalID, typ, psuID, authorisation.ApproachRedirect,
		authorisation.ScaStatusReceived, r.profile.RedirectURLExpiry, r.profile.AuthorisationExpiry, now)

	link, err := r.links.Build(auth.ExternalID, *auth.RedirectURLExpiresAt)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build redirect link")
	}

	return auth, &authorisation.Result{
		AuthorisationID:  auth.ExternalID,
		ParentExternalID: parentExternalID,
		ScaStatus:        auth.ScaStatus,
		ScaApproach:      authorisation.ApproachRedirect,
		RedirectURL:      link,
		PsuMessage:       "Please authenticate via your online banking",
	}, nil
}

func (r *Redirect) UpdateAuthorisation(ctx context.Context, auth *authorisation.Authorisation, req authorisation.UpdateRequest, event authorisation.Event) (*authorisation.Result, error) {
	if err := checkPsu(auth, req.PsuID); err != nil {
		return nil, err
	}

	switch event {
	case authorisation.EventIdentifyPSU:
		next, err := authorisation.Transition(auth.ScaStatus, event, auth.ScaApproach)
		if err != nil {
			return nil, err
		}
		auth.ScaStatus = next
		auth.PsuID = req.PsuID
		return result(auth, "", nil), nil

	case authorisation.EventConfirm:
		if auth.RedirectExpired(r.now()) {
			return nil, dErrors.New(dErrors.CodeStatusConflict, "redirect url has expired")
		}
		if _, err := r.links.Verify(req.ConfirmationCode, auth.ExternalID); err != nil {
			r.logger.WarnContext(ctx, "redirect confirmation rejected",
				"authorisation_id", auth.ExternalID)
			next, tErr := authorisation.Transition(auth.ScaStatus, authorisation.EventFail, auth.ScaApproach)
			if tErr != nil {
				return nil, tErr
			}
			auth.ScaStatus = next
			return result(auth, "Authorisation failed", []string{"PSU_CREDENTIALS_INVALID"}),
				dErrors.New(dErrors.CodePsuCredentialsInvalid, "confirmation code rejected")
		}
		next, err := authorisation.Transition(auth.ScaStatus, event, auth.ScaApproach)
		if err != nil {
			return nil, err
		}
		auth.ScaStatus = next
		return result(auth, "Authorisation confirmed", nil), nil

	case authorisation.EventFail, authorisation.EventExempt:
		next, err := authorisation.Transition(auth.ScaStatus, event, auth.ScaApproach)
		if err != nil {
			return nil, err
		}
		auth.ScaStatus = next
		return result(auth, "", nil), nil
	}

	// Credentials, method selection and challenge data belong to the
	// external hand-off, never to this service.
	return nil, dErrors.New(dErrors.CodeInvalidTransition,
		string(event)+" is not supported by the redirect approach")
}

func result(auth *authorisation.Authorisation, psuMessage string, tppMessages []string) *authorisation.Result {
	return &authorisation.Result{
		AuthorisationID:  auth.ExternalID,
		ParentExternalID: auth.ParentExternalID,
		ScaStatus:        auth.ScaStatus,
		ScaApproach:      auth.ScaApproach,
		AvailableMethods: auth.AvailableMethods,
		PsuMessage:       psuMessage,
		TppMessages:      tppMessages,
	}
}

// LinkBuilder signs and verifies redirect link tokens. The token binds the
// link to one authorisation and expires with the redirect window.
type LinkBuilder struct {
	template string
	secret   []byte
}

func NewLinkBuilder(template, secret string) *LinkBuilder {
	return &LinkBuilder{template: template, secret: []byte(secret)}
}

// Build renders the redirect URL for an authorisation, appending a signed
// token that the confirmation callback must echo back.
func (b *LinkBuilder) Build(authorisationID string, expiresAt time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   authorisationID,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	})
	signed, err := token.SignedString(b.secret)
	if err != nil {
		return "", err
	}
	link := strings.Replace(b.template, "{authorisation-id}", authorisationID, 1)
	return link + "?token=" + signed, nil
}

// Verify checks the callback token signature, expiry and authorisation
// binding. It returns the token subject on success.
func (b *LinkBuilder) Verify(tokenString, authorisationID string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, dErrors.New(dErrors.CodeCryptoFailure, "unexpected signing method")
		}
		return b.secret, nil
	})
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeCryptoFailure, "invalid confirmation token")
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject != authorisationID {
		return "", dErrors.New(dErrors.CodeCryptoFailure, "confirmation token is bound to another authorisation")
	}
	return claims.Subject, nil
}
