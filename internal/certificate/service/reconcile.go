package service

import (
	"context"
	"errors"
	"time"

	"certledger/internal/certificate/ledger"
	"certledger/internal/certificate/models"
	"certledger/internal/certificate/tracer"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/requestcontext"
)

// CompletePendingWrite finishes the store write for a pending entry left by
// an interrupted issuance. The ledger is consulted first so an entry is only
// ever completed for a fingerprint the ledger still reports.
func (s *Service) CompletePendingWrite(ctx context.Context, pw *models.PendingWrite) (outcome models.ReconcileOutcome, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanReconcile,
		tracer.String(tracer.AttrFingerprint, pw.Fingerprint.Short()),
		tracer.String(tracer.AttrTxRef, pw.TxRef),
	)
	defer func() {
		span.SetAttributes(tracer.String(tracer.AttrOutcome, string(outcome)))
		span.End(err)
	}()

	now := requestcontext.Now(ctx).UTC()
	record := pw.Record

	if _, err = s.ledger.QueryByFingerprint(ctx, record.HolderID.String(), pw.Fingerprint.String()); err != nil {
		if ledger.IsNotFound(err) {
			// Left unresolved for an operator: a ledger that forgets an
			// acknowledged transaction is not something to paper over.
			_ = s.pending.RecordAttempt(ctx, pw.ID, "fingerprint missing on ledger", now)
			s.logger.ErrorContext(ctx, "pending_write_missing_on_ledger",
				"pending_id", pw.ID.String(),
				"fingerprint", pw.Fingerprint.String(),
				"tx_ref", pw.TxRef,
			)
			return models.ReconcileMissingOnLedger, nil
		}
		_ = s.pending.RecordAttempt(ctx, pw.ID, err.Error(), now)
		return models.ReconcileFailed, dErrors.Wrap(err, dErrors.CodeLedgerUnavailable, "ledger unavailable during reconciliation")
	}

	var created bool
	err = s.tx.RunInTx(ctx, func(stores TxStores) error {
		var err error
		created, err = createOrAdopt(ctx, stores.Certificates, &record)
		if err != nil {
			return err
		}
		if err := stores.Pending.Resolve(ctx, pw.ID, now); err != nil {
			return err
		}
		if created {
			return s.appendEvent(ctx, stores.Outbox, models.EventCertificateIssued, &record, now)
		}
		return nil
	})
	switch {
	case errors.Is(err, errForeignRecord):
		// Another issuance stored this fingerprint; the ledger entry is
		// already represented, so the pending write has nothing left to do.
		if err = s.pending.Resolve(ctx, pw.ID, now); err != nil {
			return models.ReconcileFailed, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve pending write")
		}
		return models.ReconcileAlreadyPresent, nil
	case err != nil:
		_ = s.pending.RecordAttempt(ctx, pw.ID, err.Error(), now)
		return models.ReconcileFailed, dErrors.Wrap(err, dErrors.CodeInternal, "failed to complete pending write")
	}

	s.logger.InfoContext(ctx, "pending_write_reconciled",
		"pending_id", pw.ID.String(),
		"fingerprint", pw.Fingerprint.Short(),
		"created", created,
	)
	if created {
		return models.ReconcileCompleted, nil
	}
	return models.ReconcileAlreadyPresent, nil
}

// ClaimPendingWrites leases up to limit unresolved entries to the caller.
func (s *Service) ClaimPendingWrites(ctx context.Context, limit int, lease time.Duration) ([]*models.PendingWrite, error) {
	entries, err := s.pending.ClaimUnresolved(ctx, limit, requestcontext.Now(ctx).UTC(), lease)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to claim pending writes")
	}
	return entries, nil
}

// CountPendingWrites reports how many ledger-committed records still await
// their store write.
func (s *Service) CountPendingWrites(ctx context.Context) (int, error) {
	n, err := s.pending.CountUnresolved(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count pending writes")
	}
	return n, nil
}
