package main

import (
	"context"
	"database/sql"
	"time"

	"gorm.io/gorm"

	certservice "certledger/internal/certificate/service"
	certstore "certledger/internal/certificate/store"
	dErrors "certledger/pkg/domain-errors"
	outboxpostgres "certledger/pkg/platform/outbox/store/postgres"
	outboxsqlite "certledger/pkg/platform/outbox/store/sqlite"
)

const defaultCertificateTxTimeout = 5 * time.Second

// certificatePostgresTx binds the certificate store, the pending-write log
// and the outbox to one database transaction.
type certificatePostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newCertificatePostgresTx(db *sql.DB) *certificatePostgresTx {
	return &certificatePostgresTx{db: db}
}

func (t *certificatePostgresTx) RunInTx(ctx context.Context, fn func(stores certservice.TxStores) error) error {
	ctx, cancel, err := txContext(ctx, t.timeout)
	if err != nil {
		return err
	}
	defer cancel()

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // rollback after commit is no-op; error already captured
	}()

	stores := certservice.TxStores{
		Certificates: certstore.NewPostgresTx(tx),
		Pending:      certstore.NewPostgresPendingTx(tx),
		Outbox:       outboxpostgres.NewTx(tx),
	}
	if err := fn(stores); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	return nil
}

// certificateSQLiteTx does the same through a gorm transaction.
type certificateSQLiteTx struct {
	db      *gorm.DB
	timeout time.Duration
}

func newCertificateSQLiteTx(db *gorm.DB) *certificateSQLiteTx {
	return &certificateSQLiteTx{db: db}
}

func (t *certificateSQLiteTx) RunInTx(ctx context.Context, fn func(stores certservice.TxStores) error) error {
	ctx, cancel, err := txContext(ctx, t.timeout)
	if err != nil {
		return err
	}
	defer cancel()

	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(certservice.TxStores{
			Certificates: certstore.NewSQLite(tx),
			Pending:      certstore.NewSQLitePending(tx),
			Outbox:       outboxsqlite.New(tx),
		})
	})
}

func txContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if timeout == 0 {
		timeout = defaultCertificateTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, cancel, nil
}
