// Package processor decouples "what changed in the request" from "which
// strategy method to invoke". New request shapes get a new handler instead
// of more branching inside each strategy.
package processor

import (
	"context"

	"xs2acms/internal/authorisation"
	"xs2acms/internal/authorisation/approach"
	dErrors "xs2acms/pkg/domain-errors"
)

// Request is an authorisation update paired with the loaded record.
type Request struct {
	authorisation.UpdateRequest
	Auth *authorisation.Authorisation
}

type handler struct {
	name    string
	applies func(*Request) bool
	handle  func(context.Context, approach.Service, *Request) (*authorisation.Result, error)
}

// Chain evaluates a statically ordered list of handlers; the first one whose
// precondition matches wins. A handler failure short-circuits the chain.
type Chain struct {
	resolver *approach.Resolver
	handlers []handler
}

func NewChain(resolver *approach.Resolver) *Chain {
	c := &Chain{resolver: resolver}
	c.handlers = []handler{
		{
			name:    "confirmation",
			applies: func(r *Request) bool { return r.ConfirmationCode != "" },
			handle:  confirmationHandler,
		},
		{
			name:    "challenge-data",
			applies: func(r *Request) bool { return r.ScaAuthenticationData != "" },
			handle:  challengeDataHandler,
		},
		{
			name:    "method-selection",
			applies: func(r *Request) bool { return r.AuthenticationMethodID != "" },
			handle:  methodSelectionHandler,
		},
		{
			name:    "authentication",
			applies: func(r *Request) bool { return r.Password != "" },
			handle:  authenticationHandler,
		},
		{
			name:    "identification",
			applies: func(r *Request) bool { return r.PsuID != "" },
			handle:  identificationHandler,
		},
	}
	return c
}

// Process picks the handler for the request shape and runs it against the
// strategy fixed on the authorisation record.
func (c *Chain) Process(ctx context.Context, req *Request) (*authorisation.Result, error) {
	svc, err := c.resolver.For(req.Auth.ScaApproach)
	if err != nil {
		return nil, err
	}
	for _, h := range c.handlers {
		if h.applies(req) {
			return h.handle(ctx, svc, req)
		}
	}
	return nil, dErrors.New(dErrors.CodeBadRequest, "request carries no actionable authorisation data")
}

func confirmationHandler(ctx context.Context, svc approach.Service, req *Request) (*authorisation.Result, error) {
	return svc.UpdateAuthorisation(ctx, req.Auth, req.UpdateRequest, authorisation.EventConfirm)
}

// challengeDataHandler moves a pending challenge to STARTED first when the
// record has not reached it yet, then confirms with the submitted data.
func challengeDataHandler(ctx context.Context, svc approach.Service, req *Request) (*authorisation.Result, error) {
	if req.Auth.ScaStatus != authorisation.ScaStatusStarted {
		if _, err := svc.UpdateAuthorisation(ctx, req.Auth, req.UpdateRequest, authorisation.EventSubmitChallenge); err != nil {
			return nil, err
		}
	}
	return svc.UpdateAuthorisation(ctx, req.Auth, req.UpdateRequest, authorisation.EventConfirm)
}

func methodSelectionHandler(ctx context.Context, svc approach.Service, req *Request) (*authorisation.Result, error) {
	return svc.UpdateAuthorisation(ctx, req.Auth, req.UpdateRequest, authorisation.EventSelectMethod)
}

// authenticationHandler identifies the PSU first when the record is still
// fresh, so a combined identification+password request works in one step.
func authenticationHandler(ctx context.Context, svc approach.Service, req *Request) (*authorisation.Result, error) {
	if req.Auth.ScaStatus == authorisation.ScaStatusReceived && req.PsuID != "" {
		if _, err := svc.UpdateAuthorisation(ctx, req.Auth, req.UpdateRequest, authorisation.EventIdentifyPSU); err != nil {
			return nil, err
		}
	}
	return svc.UpdateAuthorisation(ctx, req.Auth, req.UpdateRequest, authorisation.EventAuthenticatePSU)
}

func identificationHandler(ctx context.Context, svc approach.Service, req *Request) (*authorisation.Result, error) {
	return svc.UpdateAuthorisation(ctx, req.Auth, req.UpdateRequest, authorisation.EventIdentifyPSU)
}
