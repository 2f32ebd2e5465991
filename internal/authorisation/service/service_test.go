package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"xs2acms/internal/authorisation"
	"xs2acms/internal/authorisation/approach"
	"xs2acms/internal/consent"
	consentservice "xs2acms/internal/consent/service"
	"xs2acms/internal/events"
	"xs2acms/internal/payment"
	paymentservice "xs2acms/internal/payment/service"
	"xs2acms/internal/profile"
	dErrors "xs2acms/pkg/domain-errors"
)

type EngineSuite struct {
	suite.Suite
	ctx       context.Context
	store     *authorisation.InMemoryStore
	validator *approach.StaticValidator
	publisher *events.MemoryPublisher
	consents  *consentservice.Service
	payments  *paymentservice.Service
	svc       *Service
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = authorisation.NewInMemoryStore()
	s.validator = approach.NewStaticValidator()
	s.publisher = events.NewMemoryPublisher()

	prof := profile.Default()
	for typ := range prof.DefaultApproach {
		prof.DefaultApproach[typ] = authorisation.ApproachEmbedded
	}

	logger := slog.Default()
	resolver := approach.NewResolver(
		approach.NewEmbedded(prof, s.validator, logger),
		approach.NewDecoupled(prof, approach.NewMemoryChannel(), logger),
	)

	s.consents = consentservice.New(consent.NewInMemoryStore(), consent.NewInMemoryStore(), s.store, s.publisher)
	s.payments = paymentservice.New(payment.NewInMemoryStore(), s.store, s.publisher)
	s.svc = New(s.store, resolver, prof, s.consents, s.payments, s.publisher)
}

func (s *EngineSuite) createConsent(psus ...string) *consent.Consent {
	data := make([]consent.PsuData, len(psus))
	for i, p := range psus {
		data[i] = consent.PsuData{PsuID: p}
	}
	c, err := s.consents.Create(s.ctx, consentservice.CreateRequest{
		ValidUntil:            time.Now().AddDate(0, 1, 0),
		FrequencyPerDay:       4,
		MultilevelScaRequired: len(psus) > 1,
		PsuData:               data,
	})
	s.Require().NoError(err)
	return c
}

func (s *EngineSuite) authorise(parentID, psuID string) *authorisation.Result {
	s.validator.Register(psuID, "secret", "123456",
		authorisation.ScaMethod{ID: "SMS_OTP", Name: "SMS one-time password"})

	result, err := s.svc.CreateAuthorisation(s.ctx, authorisation.TypeConsent, parentID, psuID)
	s.Require().NoError(err)
	s.Equal(authorisation.ScaStatusReceived, result.ScaStatus)

	result, err = s.svc.UpdateAuthorisation(s.ctx, authorisation.UpdateRequest{
		AuthorisationID: result.AuthorisationID,
		PsuID:           psuID,
		Password:        "secret",
	})
	s.Require().NoError(err)
	s.Equal(authorisation.ScaStatusPsuAuthenticated, result.ScaStatus)
	s.Require().Len(result.AvailableMethods, 1)

	result, err = s.svc.UpdateAuthorisation(s.ctx, authorisation.UpdateRequest{
		AuthorisationID:        result.AuthorisationID,
		PsuID:                  psuID,
		AuthenticationMethodID: "SMS_OTP",
	})
	s.Require().NoError(err)
	s.Equal(authorisation.ScaStatusScaMethodSelected, result.ScaStatus)

	result, err = s.svc.UpdateAuthorisation(s.ctx, authorisation.UpdateRequest{
		AuthorisationID:       result.AuthorisationID,
		PsuID:                 psuID,
		ScaAuthenticationData: "123456",
	})
	s.Require().NoError(err)
	s.Equal(authorisation.ScaStatusFinalised, result.ScaStatus)
	return result
}

func (s *EngineSuite) TestEmbeddedFlowFinalisesConsent() {
	c := s.createConsent("psu-1")
	s.authorise(c.ExternalID, "psu-1")

	got, err := s.consents.Get(s.ctx, c.ExternalID)
	s.Require().NoError(err)
	s.Equal(consent.StatusValid, got.Status)

	var terminal bool
	for _, e := range s.publisher.Events() {
		if e.ScaStatus == string(authorisation.ScaStatusFinalised) {
			terminal = e.Terminal
		}
	}
	s.True(terminal)
}

func (s *EngineSuite) TestMultilevelScaRequiresAllPsus() {
	c := s.createConsent("psu-1", "psu-2")

	s.authorise(c.ExternalID, "psu-1")
	got, err := s.consents.Get(s.ctx, c.ExternalID)
	s.Require().NoError(err)
	s.Equal(consent.StatusPartiallyAuthorised, got.Status)

	s.authorise(c.ExternalID, "psu-2")
	got, err = s.consents.Get(s.ctx, c.ExternalID)
	s.Require().NoError(err)
	s.Equal(consent.StatusValid, got.Status)
}

func (s *EngineSuite) TestWrongPasswordFailsAuthorisation() {
	c := s.createConsent("psu-1")
	s.validator.Register("psu-1", "secret", "123456")

	result, err := s.svc.CreateAuthorisation(s.ctx, authorisation.TypeConsent, c.ExternalID, "psu-1")
	s.Require().NoError(err)

	_, err = s.svc.UpdateAuthorisation(s.ctx, authorisation.UpdateRequest{
		AuthorisationID: result.AuthorisationID,
		PsuID:           "psu-1",
		Password:        "wrong",
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodePsuCredentialsInvalid))

	// The failure was persisted, not just reported.
	status, err := s.svc.GetScaStatus(s.ctx, result.AuthorisationID)
	s.Require().NoError(err)
	s.Equal(authorisation.ScaStatusFailed, status)

	got, err := s.consents.Get(s.ctx, c.ExternalID)
	s.Require().NoError(err)
	s.Equal(consent.StatusRejected, got.Status)
}

func (s *EngineSuite) TestFinalisedAuthorisationRejectsUpdates() {
	c := s.createConsent("psu-1")
	result := s.authorise(c.ExternalID, "psu-1")

	_, err := s.svc.UpdateAuthorisation(s.ctx, authorisation.UpdateRequest{
		AuthorisationID: result.AuthorisationID,
		PsuID:           "psu-1",
		Password:        "secret",
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeStatusConflict))
}

func (s *EngineSuite) TestCreateOnFinalisedParentRejected() {
	c := s.createConsent("psu-1")
	s.Require().NoError(s.consents.Reject(s.ctx, c.ExternalID))

	_, err := s.svc.CreateAuthorisation(s.ctx, authorisation.TypeConsent, c.ExternalID, "psu-1")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeStatusConflict))
}

func (s *EngineSuite) TestCreateOnUnknownParentRejected() {
	_, err := s.svc.CreateAuthorisation(s.ctx, authorisation.TypeConsent, "missing", "psu-1")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeResourceUnknown))
}

func (s *EngineSuite) TestNewAuthorisationClosesPreviousOne() {
	c := s.createConsent("psu-1", "psu-2")
	s.validator.Register("psu-1", "secret", "123456")

	first, err := s.svc.CreateAuthorisation(s.ctx, authorisation.TypeConsent, c.ExternalID, "psu-1")
	s.Require().NoError(err)

	second, err := s.svc.CreateAuthorisation(s.ctx, authorisation.TypeConsent, c.ExternalID, "psu-1")
	s.Require().NoError(err)
	s.NotEqual(first.AuthorisationID, second.AuthorisationID)

	status, err := s.svc.GetScaStatus(s.ctx, first.AuthorisationID)
	s.Require().NoError(err)
	s.Equal(authorisation.ScaStatusFailed, status)

	// A different PSU's in-flight authorisation is untouched.
	other, err := s.svc.CreateAuthorisation(s.ctx, authorisation.TypeConsent, c.ExternalID, "psu-2")
	s.Require().NoError(err)
	status, err = s.svc.GetScaStatus(s.ctx, second.AuthorisationID)
	s.Require().NoError(err)
	s.Equal(authorisation.ScaStatusReceived, status)
	status, err = s.svc.GetScaStatus(s.ctx, other.AuthorisationID)
	s.Require().NoError(err)
	s.Equal(authorisation.ScaStatusReceived, status)
}

func (s *EngineSuite) TestPaymentCancellationFinalisation() {
	p, err := s.payments.Create(s.ctx, paymentservice.CreateRequest{
		PsuIDs: []string{"psu-1"},
	})
	s.Require().NoError(err)
	s.validator.Register("psu-1", "secret", "123456")

	result, err := s.svc.CreateAuthorisation(s.ctx, authorisation.TypePisCancellation, p.ExternalID, "psu-1")
	s.Require().NoError(err)

	result, err = s.svc.UpdateAuthorisation(s.ctx, authorisation.UpdateRequest{
		AuthorisationID: result.AuthorisationID,
		PsuID:           "psu-1",
		Password:        "secret",
	})
	s.Require().NoError(err)

	result, err = s.svc.UpdateAuthorisation(s.ctx, authorisation.UpdateRequest{
		AuthorisationID:       result.AuthorisationID,
		PsuID:                 "psu-1",
		ScaAuthenticationData: "123456",
	})
	s.Require().NoError(err)
	s.Equal(authorisation.ScaStatusFinalised, result.ScaStatus)

	got, err := s.payments.Get(s.ctx, p.ExternalID)
	s.Require().NoError(err)
	s.Equal(payment.StatusCancelled, got.Status)
}

func (s *EngineSuite) TestUpdateScaStatusDirectWrite() {
	c := s.createConsent("psu-1")
	result, err := s.svc.CreateAuthorisation(s.ctx, authorisation.TypeConsent, c.ExternalID, "psu-1")
	s.Require().NoError(err)

	s.Require().NoError(s.svc.UpdateScaStatus(s.ctx, result.AuthorisationID, authorisation.ScaStatusPsuAuthenticated))

	status, err := s.svc.GetScaStatus(s.ctx, result.AuthorisationID)
	s.Require().NoError(err)
	s.Equal(authorisation.ScaStatusPsuAuthenticated, status)

	err = s.svc.UpdateScaStatus(s.ctx, result.AuthorisationID, "NOT_A_STATUS")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))

	s.Require().NoError(s.svc.UpdateScaStatus(s.ctx, result.AuthorisationID, authorisation.ScaStatusFailed))
	err = s.svc.UpdateScaStatus(s.ctx, result.AuthorisationID, authorisation.ScaStatusFinalised)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeStatusConflict))
}

func (s *EngineSuite) TestRequestWithoutActionableDataRejected() {
	c := s.createConsent("psu-1")
	result, err := s.svc.CreateAuthorisation(s.ctx, authorisation.TypeConsent, c.ExternalID, "psu-1")
	s.Require().NoError(err)

	_, err = s.svc.UpdateAuthorisation(s.ctx, authorisation.UpdateRequest{
		AuthorisationID: result.AuthorisationID,
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}
