package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"xs2acms/internal/authorisation"
	"xs2acms/internal/events"
	"xs2acms/internal/payment"
	dErrors "xs2acms/pkg/domain-errors"
)

// AuthorisationReader is the slice of the authorisation store the payment
// service needs for multilevel aggregation.
type AuthorisationReader interface {
	FindByParent(ctx context.Context, parentExternalID string, typ authorisation.Type) ([]*authorisation.Authorisation, error)
}

// Service owns payment lifecycle decisions spanning authorisations.
type Service struct {
	store     payment.Store
	auths     AuthorisationReader
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(store payment.Store, auths AuthorisationReader, publisher events.Publisher, opts ...Option) *Service {
	s := &Service{
		store:     store,
		auths:     auths,
		publisher: publisher,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRequest is the inbound payment registration payload.
type CreateRequest struct {
	// ExternalID lets the transport layer mint the id up front so the
	// payment data blob can be sealed against it before anything persists.
	// Empty means the service assigns one.
	ExternalID string

	MultilevelScaRequired  bool
	PsuIDs                 []string
	PaymentData            []byte
	TppAuthorisationNumber string
	InstanceID             string
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*payment.Payment, error) {
	if len(req.PsuIDs) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "at least one psu is required")
	}
	externalID := req.ExternalID
	if externalID == "" {
		externalID = uuid.NewString()
	}
	p := &payment.Payment{
		ID:                     uuid.New(),
		ExternalID:             externalID,
		Status:                 payment.StatusReceived,
		MultilevelScaRequired:  req.MultilevelScaRequired,
		PsuIDs:                 req.PsuIDs,
		PaymentData:            req.PaymentData,
		TppAuthorisationNumber: req.TppAuthorisationNumber,
		InstanceID:             req.InstanceID,
		CreatedAt:              s.now(),
	}
	if err := s.store.Save(ctx, p); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save payment")
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, externalID string) (*payment.Payment, error) {
	return s.store.FindByExternalID(ctx, externalID)
}

// OnAuthorisationFinalised recomputes the payment status after an initiation
// authorisation finished. Cancellation authorisations flow through
// OnCancellationFinalised instead.
func (s *Service) OnAuthorisationFinalised(ctx context.Context, parentExternalID string) (payment.TransactionStatus, error) {
	status, err := s.recomputeStatus(ctx, parentExternalID)
	if dErrors.HasCode(err, dErrors.CodeStatusConflict) {
		status, err = s.recomputeStatus(ctx, parentExternalID)
	}
	return status, err
}

func (s *Service) recomputeStatus(ctx context.Context, parentExternalID string) (payment.TransactionStatus, error) {
	p, err := s.store.FindByExternalID(ctx, parentExternalID)
	if err != nil {
		return "", err
	}
	if p.Status.IsFinalised() {
		return p.Status, nil
	}

	auths, err := s.auths.FindByParent(ctx, parentExternalID, authorisation.TypePisCreation)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to load authorisations")
	}

	required := 1
	if p.MultilevelScaRequired {
		required = len(p.PsuIDs)
	}

	// One vote per PSU; a failed attempt superseded by a newer authorisation
	// for the same PSU does not reject the payment.
	type vote struct {
		succeeded bool
		failed    bool
		open      bool
	}
	votes := make(map[string]*vote)
	for _, a := range auths {
		key := a.PsuID
		if key == "" {
			key = a.ExternalID
		}
		v := votes[key]
		if v == nil {
			v = &vote{}
			votes[key] = v
		}
		switch {
		case a.ScaStatus.IsSuccess():
			v.succeeded = true
		case a.ScaStatus == authorisation.ScaStatusFailed:
			v.failed = true
		default:
			v.open = true
		}
	}

	succeeded := 0
	next := p.Status
	for _, v := range votes {
		switch {
		case v.succeeded:
			succeeded++
		case v.failed && !v.open:
			next = payment.StatusRejected
		}
	}
	if next != payment.StatusRejected {
		switch {
		case succeeded >= required:
			next = payment.StatusAccepted
		case succeeded > 0:
			next = payment.StatusPartiallyAuthorised
		}
	}
	if next == p.Status {
		return next, nil
	}
	if err := s.store.UpdateStatusIfVersion(ctx, p.ExternalID, p.Version, next); err != nil {
		return "", err
	}
	s.publishStatus(ctx, p.ExternalID, next)
	return next, nil
}

// OnCancellationFinalised cancels the payment once its cancellation
// authorisation succeeded.
func (s *Service) OnCancellationFinalised(ctx context.Context, parentExternalID string) error {
	p, err := s.store.FindByExternalID(ctx, parentExternalID)
	if err != nil {
		return err
	}

	auths, err := s.auths.FindByParent(ctx, parentExternalID, authorisation.TypePisCancellation)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load cancellation authorisations")
	}
	for _, a := range auths {
		if a.ScaStatus.IsSuccess() {
			if err := s.store.UpdateStatusIfVersion(ctx, p.ExternalID, p.Version, payment.StatusCancelled); err != nil {
				return err
			}
			s.publishStatus(ctx, p.ExternalID, payment.StatusCancelled)
			return nil
		}
	}
	return nil
}

func (s *Service) publishStatus(ctx context.Context, externalID string, status payment.TransactionStatus) {
	if s.publisher == nil {
		return
	}
	event := events.StatusEvent{
		ParentExternalID: externalID,
		ResourceType:     string(authorisation.TypePisCreation),
		ResourceStatus:   string(status),
		Terminal:         status.IsFinalised(),
		OccurredAt:       s.now(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to publish payment status event",
			"payment_id", externalID, "error", err.Error())
	}
}
