package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"xs2acms/internal/tpp"
)

type StopListSuite struct {
	suite.Suite
	store *tpp.InMemoryStore
	svc   *Service
	now   time.Time
}

func TestStopListSuite(t *testing.T) {
	suite.Run(t, new(StopListSuite))
}

func (s *StopListSuite) SetupTest() {
	s.store = tpp.NewInMemoryStore()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.svc = New(s.store, WithClock(func() time.Time { return s.now }))
}

func (s *StopListSuite) TestUnknownTppIsAllowed() {
	blocked, err := s.svc.IsBlocked(context.Background(), "PSDDE-BAFIN-000001", "")
	s.Require().NoError(err)
	s.False(blocked)
}

func (s *StopListSuite) TestIndefiniteBlock() {
	s.Require().NoError(s.svc.Block(context.Background(), "PSDDE-BAFIN-000001", "", 0))

	blocked, err := s.svc.IsBlocked(context.Background(), "PSDDE-BAFIN-000001", "")
	s.Require().NoError(err)
	s.True(blocked)

	// Indefinite blocks never lapse.
	s.now = s.now.Add(1000 * time.Hour)
	blocked, err = s.svc.IsBlocked(context.Background(), "PSDDE-BAFIN-000001", "")
	s.Require().NoError(err)
	s.True(blocked)
}

func (s *StopListSuite) TestTimedBlockLapsesWithoutSweep() {
	s.Require().NoError(s.svc.Block(context.Background(), "PSDDE-BAFIN-000001", "", time.Hour))

	blocked, err := s.svc.IsBlocked(context.Background(), "PSDDE-BAFIN-000001", "")
	s.Require().NoError(err)
	s.True(blocked)

	s.now = s.now.Add(time.Hour)
	blocked, err = s.svc.IsBlocked(context.Background(), "PSDDE-BAFIN-000001", "")
	s.Require().NoError(err)
	s.False(blocked)
}

func (s *StopListSuite) TestReblockExtendsExpiry() {
	ctx := context.Background()
	s.Require().NoError(s.svc.Block(ctx, "PSDDE-BAFIN-000001", "", time.Hour))
	s.Require().NoError(s.svc.Block(ctx, "PSDDE-BAFIN-000001", "", 3*time.Hour))

	s.now = s.now.Add(2 * time.Hour)
	blocked, err := s.svc.IsBlocked(ctx, "PSDDE-BAFIN-000001", "")
	s.Require().NoError(err)
	s.True(blocked)
}

func (s *StopListSuite) TestUnblock() {
	ctx := context.Background()
	s.Require().NoError(s.svc.Block(ctx, "PSDDE-BAFIN-000001", "", 0))
	s.Require().NoError(s.svc.Unblock(ctx, "PSDDE-BAFIN-000001", ""))

	blocked, err := s.svc.IsBlocked(ctx, "PSDDE-BAFIN-000001", "")
	s.Require().NoError(err)
	s.False(blocked)

	entry, err := s.store.FindByAuthorisationNumber(ctx, "PSDDE-BAFIN-000001", "")
	s.Require().NoError(err)
	s.Equal(tpp.StatusEnabled, entry.Status)
	s.Nil(entry.BlockingExpiresAt)
}

func (s *StopListSuite) TestUnblockUnknownIsNoOp() {
	s.Require().NoError(s.svc.Unblock(context.Background(), "PSDDE-BAFIN-999999", ""))
}

func (s *StopListSuite) TestBlockRequiresAuthorisationNumber() {
	err := s.svc.Block(context.Background(), "", "", 0)
	s.Require().Error(err)
}
