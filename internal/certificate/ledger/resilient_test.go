package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"certledger/internal/certificate/ledger"
	"certledger/internal/certificate/ledger/mocks"
	"certledger/pkg/platform/circuit"
)

type ResilientSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	next    *mocks.MockGateway
	breaker *circuit.Breaker
	now     time.Time
	gw      *ledger.Resilient
}

func TestResilientSuite(t *testing.T) {
	suite.Run(t, new(ResilientSuite))
}

func (s *ResilientSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.next = mocks.NewMockGateway(s.ctrl)
	s.now = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.breaker = circuit.New("ledger",
		circuit.WithFailureThreshold(2),
		circuit.WithSuccessThreshold(1),
		circuit.WithCooldown(time.Second),
		circuit.WithClock(func() time.Time { return s.now }),
	)
	s.gw = ledger.NewResilient(s.next, ledger.WithBreaker(s.breaker))
}

func (s *ResilientSuite) TearDownTest() {
	s.ctrl.Finish()
}

func unavailable() error {
	return ledger.NewError(ledger.CategoryUnavailable, "submit", "down", nil)
}

func (s *ResilientSuite) TestOpensAfterConsecutiveUnavailable() {
	ctx := context.Background()
	s.next.EXPECT().Submit(gomock.Any(), gomock.Any()).Return(nil, unavailable()).Times(2)

	for range 2 {
		_, err := s.gw.Submit(ctx, submission(testFP))
		s.True(ledger.IsRetryable(err))
	}
	s.Equal(circuit.StateOpen, s.gw.BreakerState())

	// fails fast without reaching the wrapped gateway
	_, err := s.gw.Submit(ctx, submission(testFP))
	s.True(ledger.IsRetryable(err))
	s.ErrorIs(err, ledger.ErrCircuitOpen)
}

func (s *ResilientSuite) TestProbeClosesAfterCooldown() {
	ctx := context.Background()
	s.next.EXPECT().QueryByFingerprint(gomock.Any(), "h", testFP).Return(nil, unavailable()).Times(2)
	for range 2 {
		_, _ = s.gw.QueryByFingerprint(ctx, "h", testFP)
	}
	s.Require().Equal(circuit.StateOpen, s.gw.BreakerState())

	s.now = s.now.Add(2 * time.Second)
	s.next.EXPECT().QueryByFingerprint(gomock.Any(), "h", testFP).Return(&ledger.OnChainRecord{Fingerprint: testFP}, nil)
	rec, err := s.gw.QueryByFingerprint(ctx, "h", testFP)
	s.Require().NoError(err)
	s.Equal(testFP, rec.Fingerprint)
	s.Equal(circuit.StateClosed, s.gw.BreakerState())
}

func (s *ResilientSuite) TestNotFoundAndRejectedDoNotTrip() {
	ctx := context.Background()
	s.next.EXPECT().QueryByFingerprint(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, ledger.NewError(ledger.CategoryNotFound, "query", "missing", nil)).Times(3)
	s.next.EXPECT().Submit(gomock.Any(), gomock.Any()).
		Return(nil, ledger.NewError(ledger.CategoryRejected, "submit", "bad payload", nil)).Times(3)

	for range 3 {
		_, err := s.gw.QueryByFingerprint(ctx, "h", testFP)
		s.True(ledger.IsNotFound(err))
		_, err = s.gw.Submit(ctx, submission(testFP))
		s.True(ledger.IsRejected(err))
	}
	s.Equal(circuit.StateClosed, s.gw.BreakerState())
}
