package guard

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"certledger/internal/certificate/models"
	dErrors "certledger/pkg/domain-errors"
)

const (
	redisClaimKeyPrefix = "certledger:claim:"

	defaultClaimLease = time.Minute
	defaultClaimWait  = 2 * time.Second
	claimPollInterval = 50 * time.Millisecond
)

// releaseScript deletes the claim only if this holder still owns it, so an
// expired lease re-taken by another process is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisClaimer serializes triples across processes with SET NX PX leases.
type RedisClaimer struct {
	client redis.UniversalClient
	lease  time.Duration
	wait   time.Duration
}

type RedisClaimerOption func(*RedisClaimer)

// WithLease bounds how long a crashed holder can block a triple. It must
// exceed the ledger receipt timeout.
func WithLease(d time.Duration) RedisClaimerOption {
	return func(c *RedisClaimer) {
		if d > 0 {
			c.lease = d
		}
	}
}

// WithWait bounds how long Claim polls a held triple before giving up.
func WithWait(d time.Duration) RedisClaimerOption {
	return func(c *RedisClaimer) {
		if d > 0 {
			c.wait = d
		}
	}
}

func NewRedisClaimer(client redis.UniversalClient, opts ...RedisClaimerOption) *RedisClaimer {
	c := &RedisClaimer{
		client: client,
		lease:  defaultClaimLease,
		wait:   defaultClaimWait,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Claim takes the triple's lease, polling while another holder has it.
// A triple still held after the wait fails with a conflict error.
func (c *RedisClaimer) Claim(ctx context.Context, key models.TripleKey) (func(), error) {
	redisKey := claimKey(key)
	token := uuid.NewString()

	deadline := time.NewTimer(c.wait)
	defer deadline.Stop()
	ticker := time.NewTicker(claimPollInterval)
	defer ticker.Stop()

	for {
		ok, err := c.client.SetNX(ctx, redisKey, token, c.lease).Result()
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to claim certificate triple")
		}
		if ok {
			return func() { c.release(redisKey, token) }, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, dErrors.New(dErrors.CodeConflict, "issuance for this certificate is already in progress")
		case <-ticker.C:
		}
	}
}

func (c *RedisClaimer) release(redisKey, token string) {
	// The caller's context may already be cancelled; release on a fresh one.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = releaseScript.Run(ctx, c.client, []string{redisKey}, token).Err()
}

// claimKey hashes the triple so identities never appear in Redis keys.
func claimKey(key models.TripleKey) string {
	sum := sha256.Sum256([]byte(key.String()))
	return fmt.Sprintf("%s%s", redisClaimKeyPrefix, hex.EncodeToString(sum[:]))
}
