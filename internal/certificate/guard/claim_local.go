package guard

import (
	"context"

	"certledger/internal/certificate/models"
	"certledger/pkg/platform/sync"
)

// LocalClaimer serializes triples within one process. Each triple has its own
// lock, so a slow ledger submission only holds back requests for that triple.
type LocalClaimer struct {
	mu *sync.KeyedMutex
}

func NewLocalClaimer() *LocalClaimer {
	return &LocalClaimer{mu: sync.NewKeyedMutex()}
}

// Claim blocks until no other request holds the triple, or ctx ends.
func (c *LocalClaimer) Claim(ctx context.Context, key models.TripleKey) (func(), error) {
	return c.mu.Acquire(ctx, key.String())
}
