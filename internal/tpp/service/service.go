package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"xs2acms/internal/tpp"
	dErrors "xs2acms/pkg/domain-errors"
)

// Service manages the TPP stop list. Blocking takes effect on the next
// request; a timed block lapses as soon as its expiry passes, without
// waiting for the unblock sweep.
type Service struct {
	store  tpp.Store
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(store tpp.Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Block puts a TPP on the stop list. A zero duration blocks indefinitely.
func (s *Service) Block(ctx context.Context, authorisationNumber, instanceID string, duration time.Duration) error {
	if authorisationNumber == "" {
		return dErrors.New(dErrors.CodeBadRequest, "tpp authorisation number is required")
	}
	now := s.now()
	var expiresAt *time.Time
	if duration > 0 {
		t := now.Add(duration)
		expiresAt = &t
	}

	entry, err := s.store.FindByAuthorisationNumber(ctx, authorisationNumber, instanceID)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeNotFound) {
			return err
		}
		entry = &tpp.StopListEntry{
			ID:                     uuid.NewString(),
			TppAuthorisationNumber: authorisationNumber,
			InstanceID:             instanceID,
			CreatedAt:              now,
		}
		entry.Status = tpp.StatusBlocked
		entry.BlockingExpiresAt = expiresAt
		entry.UpdatedAt = now
		if err := s.store.Save(ctx, entry); err != nil {
			return err
		}
		s.logger.InfoContext(ctx, "tpp blocked",
			slog.String("tpp_authorisation_number", authorisationNumber),
			slog.Bool("timed", expiresAt != nil))
		return nil
	}

	entry.Status = tpp.StatusBlocked
	entry.BlockingExpiresAt = expiresAt
	entry.UpdatedAt = now
	if err := s.store.UpdateIfVersion(ctx, entry); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "tpp blocked",
		slog.String("tpp_authorisation_number", authorisationNumber),
		slog.Bool("timed", expiresAt != nil))
	return nil
}

// Unblock re-enables a TPP. Unblocking an unknown TPP is a no-op.
func (s *Service) Unblock(ctx context.Context, authorisationNumber, instanceID string) error {
	entry, err := s.store.FindByAuthorisationNumber(ctx, authorisationNumber, instanceID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil
		}
		return err
	}
	if entry.Status == tpp.StatusEnabled {
		return nil
	}
	entry.Status = tpp.StatusEnabled
	entry.BlockingExpiresAt = nil
	entry.UpdatedAt = s.now()
	if err := s.store.UpdateIfVersion(ctx, entry); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "tpp unblocked",
		slog.String("tpp_authorisation_number", authorisationNumber))
	return nil
}

// IsBlocked is the request-time check. A TPP with no entry is allowed, and
// a lapsed timed block no longer counts even before the sweep rewrites it.
func (s *Service) IsBlocked(ctx context.Context, authorisationNumber, instanceID string) (bool, error) {
	entry, err := s.store.FindByAuthorisationNumber(ctx, authorisationNumber, instanceID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return false, nil
		}
		return false, err
	}
	return entry.BlockActive(s.now()), nil
}
