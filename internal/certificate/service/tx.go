package service

import (
	"context"
	"sync"
	"time"

	dErrors "certledger/pkg/domain-errors"
)

// TxStores are the stores bound to one transaction.
type TxStores struct {
	Certificates Store
	Pending      PendingStore
	Outbox       OutboxAppender
}

// StoreTx provides a transactional boundary across the certificate store,
// the pending-write log and the outbox. Implementations may wrap a database
// transaction or, in memory, a coarse lock.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(stores TxStores) error) error
}

// defaultTxTimeout is the maximum duration for a store transaction.
const defaultTxTimeout = 5 * time.Second

// inMemoryTx serializes transactions over in-memory stores. Writes made
// before a failing step are not rolled back; each in-memory step is
// individually atomic and callers order steps so a partial run is safe to retry.
type inMemoryTx struct {
	mu      sync.Mutex
	stores  TxStores
	timeout time.Duration
}

// NewInMemoryTx wraps in-memory stores in a lock-based transaction runner.
func NewInMemoryTx(certificates Store, pending PendingStore, outbox OutboxAppender) StoreTx {
	return &inMemoryTx{
		stores:  TxStores{Certificates: certificates, Pending: pending, Outbox: outbox},
		timeout: defaultTxTimeout,
	}
}

func (t *inMemoryTx) RunInTx(ctx context.Context, fn func(stores TxStores) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return fn(t.stores)
}
