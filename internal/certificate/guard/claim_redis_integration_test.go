//go:build integration

package guard_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"certledger/internal/certificate/guard"
	"certledger/internal/certificate/models"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/testutil"
	"certledger/pkg/testutil/containers"
)

type RedisClaimerSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	ctx   context.Context
}

func TestRedisClaimerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisClaimerSuite))
}

func (s *RedisClaimerSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *RedisClaimerSuite) SetupTest() {
	s.ctx = context.Background()
	s.Require().NoError(s.redis.FlushAll(s.ctx))
}

func (s *RedisClaimerSuite) TestSecondClaimWaitsThenConflicts() {
	key := models.NewTripleKey(testutil.TestIDs.Issuer1, testutil.TestIDs.Holder1, "Diploma")
	first := guard.NewRedisClaimer(s.redis.Client)
	second := guard.NewRedisClaimer(s.redis.Client, guard.WithWait(200*time.Millisecond))

	release, err := first.Claim(s.ctx, key)
	s.Require().NoError(err)

	start := time.Now()
	_, err = second.Claim(s.ctx, key)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.GreaterOrEqual(time.Since(start), 200*time.Millisecond)

	release()
	releaseSecond, err := second.Claim(s.ctx, key)
	s.Require().NoError(err)
	releaseSecond()
}

func (s *RedisClaimerSuite) TestWaiterAcquiresAfterRelease() {
	key := models.NewTripleKey(testutil.TestIDs.Issuer1, testutil.TestIDs.Holder2, "Diploma")
	claimer := guard.NewRedisClaimer(s.redis.Client, guard.WithWait(2*time.Second))

	release, err := claimer.Claim(s.ctx, key)
	s.Require().NoError(err)
	go func() {
		time.Sleep(100 * time.Millisecond)
		release()
	}()

	releaseWaiter, err := claimer.Claim(s.ctx, key)
	s.Require().NoError(err)
	releaseWaiter()
}

func (s *RedisClaimerSuite) TestExpiredLeaseIsNotReleasedByFormerHolder() {
	key := models.NewTripleKey(testutil.TestIDs.Issuer2, testutil.TestIDs.Holder1, "Diploma")
	short := guard.NewRedisClaimer(s.redis.Client, guard.WithLease(100*time.Millisecond))
	other := guard.NewRedisClaimer(s.redis.Client, guard.WithWait(time.Second))

	staleRelease, err := short.Claim(s.ctx, key)
	s.Require().NoError(err)
	time.Sleep(150 * time.Millisecond)

	release, err := other.Claim(s.ctx, key)
	s.Require().NoError(err)
	defer release()

	staleRelease()

	contender := guard.NewRedisClaimer(s.redis.Client, guard.WithWait(100*time.Millisecond))
	_, err = contender.Claim(s.ctx, key)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict), "stale holder must not drop the new lease")
}
