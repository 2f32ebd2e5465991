package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"xs2acms/internal/authorisation"
	"xs2acms/internal/authorisation/approach"
	"xs2acms/internal/authorisation/processor"
	"xs2acms/internal/consent"
	"xs2acms/internal/events"
	"xs2acms/internal/payment"
	"xs2acms/internal/platform/metrics"
	"xs2acms/internal/profile"
	dErrors "xs2acms/pkg/domain-errors"
)

// ConsentCallbacks is the slice of the consent service the engine needs:
// a parent lookup before opening an authorisation and the finalisation hook
// that recomputes the consent status afterwards.
type ConsentCallbacks interface {
	Get(ctx context.Context, externalID string) (*consent.Consent, error)
	OnAuthorisationFinalised(ctx context.Context, parentExternalID string) (consent.Status, error)
}

// PaymentCallbacks mirrors ConsentCallbacks for payments, with a separate
// hook for cancellation authorisations.
type PaymentCallbacks interface {
	Get(ctx context.Context, externalID string) (*payment.Payment, error)
	OnAuthorisationFinalised(ctx context.Context, parentExternalID string) (payment.TransactionStatus, error)
	OnCancellationFinalised(ctx context.Context, parentExternalID string) error
}

// Service is the authorisation engine. It owns persistence and the parent
// notifications; per-approach behaviour stays inside the strategies and the
// processor chain only decides which strategy method a request maps to.
type Service struct {
	store     authorisation.Store
	resolver  *approach.Resolver
	chain     *processor.Chain
	profile   *profile.Profile
	consents  ConsentCallbacks
	payments  PaymentCallbacks
	publisher events.Publisher
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(
	store authorisation.Store,
	resolver *approach.Resolver,
	prof *profile.Profile,
	consents ConsentCallbacks,
	payments PaymentCallbacks,
	publisher events.Publisher,
	opts ...Option,
) *Service {
	s := &Service{
		store:     store,
		resolver:  resolver,
		chain:     processor.NewChain(resolver),
		profile:   prof,
		consents:  consents,
		payments:  payments,
		publisher: publisher,
		tracer:    otel.Tracer("xs2acms/authorisation"),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateAuthorisation opens a new authorisation for a consent or payment.
// The parent must exist and must not be finalised. When the request names a
// PSU, that PSU's earlier unfinished authorisations on the same parent are
// closed first so only one flow per PSU is ever live.
func (s *Service) CreateAuthorisation(ctx context.Context, typ authorisation.Type, parentExternalID, psuID string) (*authorisation.Result, error) {
	ctx, span := s.tracer.Start(ctx, "authorisation.Create",
		trace.WithAttributes(attribute.String("authorisation.type", string(typ))))
	defer span.End()

	if err := s.ensureParentAuthorisable(ctx, typ, parentExternalID); err != nil {
		return nil, err
	}

	if psuID != "" {
		if err := s.closePreviousAuthorisations(ctx, typ, parentExternalID, psuID); err != nil {
			return nil, err
		}
	}

	scaApproach := s.profile.ApproachFor(typ)
	strategy, err := s.resolver.For(scaApproach)
	if err != nil {
		return nil, err
	}

	auth, result, err := strategy.CreateAuthorisation(ctx, parentExternalID, typ, psuID, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, auth); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save authorisation")
	}

	if s.metrics != nil {
		s.metrics.AuthorisationsCreated.WithLabelValues(string(scaApproach)).Inc()
	}
	s.logger.InfoContext(ctx, "authorisation created",
		slog.String("authorisation_id", auth.ExternalID),
		slog.String("parent_id", parentExternalID),
		slog.String("approach", string(scaApproach)))
	s.publishStatus(ctx, auth, result)
	return result, nil
}

// UpdateAuthorisation applies one PSU interaction step. The processor chain
// picks the strategy call from the request shape; the engine persists the
// outcome and fires parent notifications when the flow reaches a terminal
// state. A terminal record rejects further updates.
func (s *Service) UpdateAuthorisation(ctx context.Context, req authorisation.UpdateRequest) (*authorisation.Result, error) {
	ctx, span := s.tracer.Start(ctx, "authorisation.Update",
		trace.WithAttributes(attribute.String("authorisation.id", req.AuthorisationID)))
	defer span.End()

	auth, err := s.store.FindByExternalID(ctx, req.AuthorisationID)
	if err != nil {
		return nil, err
	}
	if auth.ScaStatus.IsFinalised() {
		return nil, dErrors.New(dErrors.CodeStatusConflict, "authorisation status is already finalised")
	}

	result, procErr := s.chain.Process(ctx, &processor.Request{UpdateRequest: req, Auth: auth})
	if procErr != nil && result == nil {
		if dErrors.HasCode(procErr, dErrors.CodeInvalidTransition) && s.metrics != nil {
			s.metrics.TransitionsRejected.Inc()
		}
		return nil, procErr
	}

	// A strategy may return a terminal failure result together with the
	// credential error that caused it. The failure must be persisted either
	// way; the error still propagates to the caller.
	if err := s.store.UpdateIfVersion(ctx, auth); err != nil {
		return nil, err
	}
	s.afterPersist(ctx, auth, result)
	if procErr != nil {
		return result, procErr
	}
	return result, nil
}

// GetScaStatus reports the stored SCA status for an authorisation.
func (s *Service) GetScaStatus(ctx context.Context, authorisationID string) (authorisation.ScaStatus, error) {
	auth, err := s.store.FindByExternalID(ctx, authorisationID)
	if err != nil {
		return "", err
	}
	return auth.ScaStatus, nil
}

// Get loads a full authorisation record.
func (s *Service) Get(ctx context.Context, authorisationID string) (*authorisation.Authorisation, error) {
	return s.store.FindByExternalID(ctx, authorisationID)
}

// ListByParent returns all authorisations opened for a parent resource.
func (s *Service) ListByParent(ctx context.Context, typ authorisation.Type, parentExternalID string) ([]*authorisation.Authorisation, error) {
	return s.store.FindByParent(ctx, parentExternalID, typ)
}

// UpdateScaStatus writes a status directly, bypassing the event machinery.
// Redirect deployments use it when the external SCA system reports progress
// that happened outside this engine. Only the terminal guard applies.
func (s *Service) UpdateScaStatus(ctx context.Context, authorisationID string, status authorisation.ScaStatus) error {
	ctx, span := s.tracer.Start(ctx, "authorisation.UpdateScaStatus",
		trace.WithAttributes(attribute.String("authorisation.id", authorisationID)))
	defer span.End()

	switch status {
	case authorisation.ScaStatusReceived, authorisation.ScaStatusPsuIdentified,
		authorisation.ScaStatusPsuAuthenticated, authorisation.ScaStatusScaMethodSelected,
		authorisation.ScaStatusStarted, authorisation.ScaStatusFinalised,
		authorisation.ScaStatusFailed, authorisation.ScaStatusExempted:
	default:
		return dErrors.New(dErrors.CodeBadRequest, "unknown sca status "+string(status))
	}

	auth, err := s.store.FindByExternalID(ctx, authorisationID)
	if err != nil {
		return err
	}
	if auth.ScaStatus.IsFinalised() {
		return dErrors.New(dErrors.CodeStatusConflict, "authorisation status is already finalised")
	}

	auth.ScaStatus = status
	if err := s.store.UpdateIfVersion(ctx, auth); err != nil {
		return err
	}
	s.afterPersist(ctx, auth, nil)
	return nil
}

// ensureParentAuthorisable loads the parent for its type and rejects new
// authorisations on finalised resources.
func (s *Service) ensureParentAuthorisable(ctx context.Context, typ authorisation.Type, parentExternalID string) error {
	switch typ {
	case authorisation.TypeConsent:
		c, err := s.consents.Get(ctx, parentExternalID)
		if err != nil {
			return err
		}
		if c.Status.IsFinalised() {
			return dErrors.New(dErrors.CodeStatusConflict, "consent status is already finalised")
		}
	case authorisation.TypePisCreation, authorisation.TypePisCancellation:
		p, err := s.payments.Get(ctx, parentExternalID)
		if err != nil {
			return err
		}
		if typ == authorisation.TypePisCreation && p.Status.IsFinalised() {
			return dErrors.New(dErrors.CodeStatusConflict, "payment status is already finalised")
		}
	default:
		return dErrors.New(dErrors.CodeBadRequest, "unknown authorisation type "+string(typ))
	}
	return nil
}

// closePreviousAuthorisations fails every unfinished authorisation the same
// PSU already holds on the parent.
func (s *Service) closePreviousAuthorisations(ctx context.Context, typ authorisation.Type, parentExternalID, psuID string) error {
	siblings, err := s.store.FindByParent(ctx, parentExternalID, typ)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load previous authorisations")
	}
	var stale []*authorisation.Authorisation
	for _, sib := range siblings {
		if sib.PsuID == psuID && !sib.ScaStatus.IsFinalised() {
			sib.ScaStatus = authorisation.ScaStatusFailed
			stale = append(stale, sib)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	if err := s.store.SaveAll(ctx, stale); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to close previous authorisations")
	}
	s.logger.InfoContext(ctx, "closed previous authorisations",
		slog.String("parent_id", parentExternalID),
		slog.Int("count", len(stale)))
	return nil
}

// afterPersist runs the side effects of a successful status write: metrics,
// the status event and the parent finalisation hooks.
func (s *Service) afterPersist(ctx context.Context, auth *authorisation.Authorisation, result *authorisation.Result) {
	if s.metrics != nil {
		switch auth.ScaStatus {
		case authorisation.ScaStatusFinalised:
			s.metrics.AuthorisationsFinalised.Inc()
		case authorisation.ScaStatusFailed:
			s.metrics.AuthorisationsFailed.Inc()
		}
	}
	s.publishStatus(ctx, auth, result)
	if !auth.ScaStatus.IsFinalised() {
		return
	}
	s.notifyParent(ctx, auth)
}

func (s *Service) notifyParent(ctx context.Context, auth *authorisation.Authorisation) {
	var err error
	switch auth.Type {
	case authorisation.TypeConsent:
		_, err = s.consents.OnAuthorisationFinalised(ctx, auth.ParentExternalID)
	case authorisation.TypePisCreation:
		_, err = s.payments.OnAuthorisationFinalised(ctx, auth.ParentExternalID)
	case authorisation.TypePisCancellation:
		err = s.payments.OnCancellationFinalised(ctx, auth.ParentExternalID)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "parent finalisation hook failed",
			slog.String("authorisation_id", auth.ExternalID),
			slog.String("parent_id", auth.ParentExternalID),
			slog.String("error", err.Error()))
	}
}

func (s *Service) publishStatus(ctx context.Context, auth *authorisation.Authorisation, result *authorisation.Result) {
	if s.publisher == nil {
		return
	}
	event := events.StatusEvent{
		AuthorisationID:  auth.ExternalID,
		ParentExternalID: auth.ParentExternalID,
		ResourceType:     string(auth.Type),
		ScaStatus:        string(auth.ScaStatus),
		Terminal:         auth.ScaStatus.IsFinalised(),
		OccurredAt:       s.now(),
	}
	if result != nil {
		event.PsuMessage = result.PsuMessage
		event.TppMessages = result.TppMessages
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to publish authorisation status event",
			slog.String("authorisation_id", auth.ExternalID),
			slog.String("error", err.Error()))
	}
}
