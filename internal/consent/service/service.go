package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"xs2acms/internal/authorisation"
	"xs2acms/internal/consent"
	"xs2acms/internal/events"
	dErrors "xs2acms/pkg/domain-errors"
)

// AuthorisationReader is the slice of the authorisation store the consent
// service needs for multilevel aggregation.
type AuthorisationReader interface {
	FindByParent(ctx context.Context, parentExternalID string, typ authorisation.Type) ([]*authorisation.Authorisation, error)
}

// Service owns consent lifecycle decisions that span authorisations:
// multilevel aggregation, TPP/PSU terminal transitions and usage counting.
type Service struct {
	store     consent.Store
	usage     consent.UsageStore
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

func New(store consent.Store, usage consent.UsageStore, auths AuthorisationReader, publisher events.Publisher, opts ...Option) *Service {
	s := &Service{
		store:     store,
		usage:     usage,
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

// CreateRequest is the inbound consent creation payload after DTO mapping.
type CreateRequest struct {
	// ExternalID lets the transport layer mint the id up front so the
	// consent data blob can be sealed against it before anything persists.
	// Empty means the service assigns one.
	ExternalID string

	RecurringIndicator     bool
	ValidUntil             time.Time
	FrequencyPerDay        int
	MultilevelScaRequired  bool
	PsuData                []consent.PsuData
	ConsentData            []byte
	TppAuthorisationNumber string
	InstanceID             string
}

// Create persists a new consent in RECEIVED.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*consent.Consent, error) {
	if len(req.PsuData) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "at least one psu is required")
	}
	now := s.now()
	externalID := req.ExternalID
	if externalID == "" {
		externalID = uuid.NewString()
	}
	c := &consent.Consent{
		ID:                     uuid.New(),
		ExternalID:             externalID,
		Status:                 consent.StatusReceived,
		RecurringIndicator:     req.RecurringIndicator,
		ValidUntil:             req.ValidUntil,
		ExpireDate:             req.ValidUntil,
		FrequencyPerDay:        req.FrequencyPerDay,
		MultilevelScaRequired:  req.MultilevelScaRequired,
		PsuData:                req.PsuData,
		ConsentData:            req.ConsentData,
		TppAuthorisationNumber: req.TppAuthorisationNumber,
		InstanceID:             req.InstanceID,
		CreatedAt:              now,
	}
	if err := s.store.Save(ctx, c); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save consent")
	}
	return c, nil
}

func (s *Service) Get(ctx context.Context, externalID string) (*consent.Consent, error) {
	return s.store.FindByExternalID(ctx, externalID)
}

// OnAuthorisationFinalised recomputes the consent status after one of its
// authorisations reached a terminal state. A consent requiring multiple PSUs
// only becomes VALID once every required authorisation succeeded; partial
// completion is PARTIALLY_AUTHORISED. One concurrent-conflict retry keeps
// two simultaneously finalising PSUs from losing an update.
func (s *Service) OnAuthorisationFinalised(ctx context.Context, parentExternalID string) (consent.Status, error) {
	status, err := s.recomputeStatus(ctx, parentExternalID)
	if dErrors.HasCode(err, dErrors.CodeStatusConflict) {
		status, err = s.recomputeStatus(ctx, parentExternalID)
	}
	return status, err
}

func (s *Service) recomputeStatus(ctx context.Context, parentExternalID string) (consent.Status, error) {
	c, err := s.store.FindByExternalID(ctx, parentExternalID)
	if err != nil {
		return "", err
	}
	if c.Status.IsFinalised() {
		return c.Status, nil
	}

	auths, err := s.auths.FindByParent(ctx, parentExternalID, authorisation.TypeConsent)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to load authorisations")
	}

	next := aggregateStatus(c, auths)
	if next == c.Status {
		return next, nil
	}
	if err := s.store.UpdateStatusIfVersion(ctx, c.ExternalID, c.Version, next); err != nil {
		return "", err
	}
	s.publishStatus(ctx, c.ExternalID, next)
	return next, nil
}

// aggregateStatus folds the authorisation outcomes into the consent status.
// Each PSU gets one vote: a failed attempt that was superseded by a newer
// authorisation for the same PSU does not count against the consent.
func aggregateStatus(c *consent.Consent, auths []*authorisation.Authorisation) consent.Status {
	required := 1
	if c.MultilevelScaRequired {
		required = len(c.PsuData)
	}

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
	for _, v := range votes {
		switch {
		case v.succeeded:
			succeeded++
		case v.failed && !v.open:
			return consent.StatusRejected
		}
	}

	switch {
	case succeeded >= required:
		return consent.StatusValid
	case succeeded > 0:
		return consent.StatusPartiallyAuthorised
	default:
		return c.Status
	}
}

// RevokeByPsu, TerminateByTpp and Reject are the direct terminal
// transitions. Expiry is deliberately absent: only the scheduler expires.

func (s *Service) RevokeByPsu(ctx context.Context, externalID string) error {
	return s.terminalWrite(ctx, externalID, consent.StatusRevokedByPsu)
}

func (s *Service) TerminateByTpp(ctx context.Context, externalID string) error {
	return s.terminalWrite(ctx, externalID, consent.StatusTerminatedByTpp)
}

func (s *Service) Reject(ctx context.Context, externalID string) error {
	return s.terminalWrite(ctx, externalID, consent.StatusRejected)
}

func (s *Service) terminalWrite(ctx context.Context, externalID string, status consent.Status) error {
	c, err := s.store.FindByExternalID(ctx, externalID)
	if err != nil {
		return err
	}
	if c.Status.IsFinalised() {
		return dErrors.New(dErrors.CodeStatusConflict, "consent status is already finalised")
	}
	if err := s.store.UpdateStatusIfVersion(ctx, externalID, c.Version, status); err != nil {
		return err
	}
	s.publishStatus(ctx, externalID, status)
	return nil
}

// RecordUsage enforces the daily access-frequency limit and marks the
// consent used. The counter increment is atomic in the store; a conflicting
// LastUsedAt write is retried once.
func (s *Service) RecordUsage(ctx context.Context, externalID, requestURI string) error {
	c, err := s.store.FindByExternalID(ctx, externalID)
	if err != nil {
		return err
	}
	if c.Status != consent.StatusValid {
		return dErrors.New(dErrors.CodeStatusConflict, "consent is not valid")
	}

	now := s.now()
	count, err := s.usage.IncrementUsage(ctx, externalID, requestURI, now)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to count usage")
	}
	if c.FrequencyPerDay > 0 && count > c.FrequencyPerDay {
		return dErrors.New(dErrors.CodeConflict, "daily access frequency exceeded")
	}

	c.LastUsedAt = &now
	if err := s.store.Save(ctx, c); err != nil {
		if !dErrors.HasCode(err, dErrors.CodeStatusConflict) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record usage")
		}
		// Another writer bumped the version; refetch and try once more.
		c, err = s.store.FindByExternalID(ctx, externalID)
		if err != nil {
			return err
		}
		c.LastUsedAt = &now
		if err := s.store.Save(ctx, c); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record usage")
		}
	}
	return nil
}

func (s *Service) publishStatus(ctx context.Context, externalID string, status consent.Status) {
	if s.publisher == nil {
		return
	}
	event := events.StatusEvent{
		ParentExternalID: externalID,
		ResourceType:     string(authorisation.TypeConsent),
		ResourceStatus:   string(status),
		Terminal:         status.IsFinalised() || status == consent.StatusValid,
		OccurredAt:       s.now(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to publish consent status event",
			"consent_id", externalID, "error", err.Error())
	}
}
