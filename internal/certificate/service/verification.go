package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"certledger/internal/certificate/bulk"
	"certledger/internal/certificate/ledger"
	"certledger/internal/certificate/models"
	"certledger/internal/certificate/tracer"
	"certledger/pkg/domain"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/platform/sentinel"
	"certledger/pkg/requestcontext"
	"certledger/pkg/validation"
)

// BulkVerifyResult is the outcome of BulkVerifyCertificates.
type BulkVerifyResult struct {
	Summary bulk.Summary
	Results []bulk.Result[models.VerificationOutcome]
}

// VerifyCertificate cross-checks a stored certificate against the ledger and
// persists the resulting verification status. A NOT_VERIFIED outcome is a
// successful call; only lookup and infrastructure failures return an error.
func (s *Service) VerifyCertificate(ctx context.Context, fingerprint string) (*models.VerificationOutcome, error) {
	fp, err := parseFingerprint(fingerprint)
	if err != nil {
		return nil, err
	}
	return s.verify(ctx, fp)
}

// BulkVerifyCertificates verifies every fingerprint independently. Items that
// end NOT_VERIFIED are reported as failed with kind IdentityMismatch or
// NotFound; their new status is still persisted.
func (s *Service) BulkVerifyCertificates(ctx context.Context, fingerprints []string) (*BulkVerifyResult, error) {
	fps := make([]models.Fingerprint, len(fingerprints))
	for i, raw := range fingerprints {
		fp, err := parseFingerprint(raw)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, "fingerprints["+strconv.Itoa(i)+"]: "+err.Error())
		}
		fps[i] = fp
	}

	ctx, span := s.tracer.Start(ctx, tracer.SpanBulkVerify,
		tracer.Int(tracer.AttrBatchSize, len(fps)),
	)
	var err error
	defer func() { span.End(err) }()

	results, err := bulk.Run(ctx, fps,
		models.Fingerprint.String,
		func(ctx context.Context, fp models.Fingerprint) (models.VerificationOutcome, error) {
			out, err := s.verify(ctx, fp)
			if err != nil {
				return models.VerificationOutcome{}, err
			}
			if err := notVerifiedError(out); err != nil {
				return models.VerificationOutcome{}, err
			}
			return *out, nil
		},
		bulk.WithLimits(bulk.DefaultMinItems, s.maxBatch),
		bulk.WithConcurrency(s.bulkConcurrency),
		bulk.WithPreflight(s.store.Ping),
	)
	if err != nil {
		return nil, err
	}

	summary := bulk.Summarize(results)
	if s.metrics != nil {
		s.metrics.ObserveBulk("verify", summary.Total, summary.Succeeded, summary.Failed)
	}
	s.logger.InfoContext(ctx, "bulk_verify_completed",
		"total", summary.Total,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"request_id", requestcontext.RequestID(ctx),
	)
	return &BulkVerifyResult{Summary: summary, Results: results}, nil
}

func (s *Service) verify(ctx context.Context, fp models.Fingerprint) (outcome *models.VerificationOutcome, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanVerify,
		tracer.String(tracer.AttrFingerprint, fp.Short()),
	)
	defer func() { span.End(err) }()

	record, err := s.findCertificate(ctx, fp)
	if err != nil {
		return nil, err
	}

	status, reason, onChain, err := s.crossCheck(ctx, record)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(tracer.String(tracer.AttrOutcome, string(status)))

	now := requestcontext.Now(ctx).UTC().Truncate(time.Microsecond)
	var updated *models.Certificate
	err = s.tx.RunInTx(ctx, func(stores TxStores) error {
		c, err := stores.Certificates.UpdateVerification(ctx, fp, status, reason, now)
		if err != nil {
			return err
		}
		updated = c
		return s.appendEvent(ctx, stores.Outbox, models.EventCertificateVerified, c, now)
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "certificate not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record verification")
	}

	if s.metrics != nil {
		s.metrics.IncVerified(string(status), string(reason))
	}
	s.logger.InfoContext(ctx, "certificate_verified",
		"fingerprint", fp.Short(),
		"status", status,
		"reason", reason,
		"request_id", requestcontext.RequestID(ctx),
	)

	outcome = &models.VerificationOutcome{
		Fingerprint:    fp,
		Valid:          status == models.VerificationVerified,
		Status:         status,
		Reason:         reason,
		IssuanceStatus: updated.IssuanceStatus,
		LedgerTxRef:    updated.LedgerTxRef,
		CheckedAt:      now,
		Certificate:    updated,
	}
	if onChain != nil {
		outcome.OnChainHolder = domain.HolderID(onChain.HolderID)
	}
	return outcome, nil
}

// crossCheck queries the ledger with the stored holder and classifies the
// answer. Ledger failures leave the stored status untouched.
func (s *Service) crossCheck(ctx context.Context, record *models.Certificate) (models.VerificationStatus, models.VerificationReason, *ledger.OnChainRecord, error) {
	onChain, err := s.ledger.QueryByFingerprint(ctx, record.HolderID.String(), record.Fingerprint.String())
	switch {
	case err == nil:
	case ledger.IsNotFound(err):
		return models.VerificationNotVerified, models.ReasonNotFoundOnLedger, nil, nil
	case ctx.Err() != nil:
		return "", "", nil, dErrors.Wrap(err, dErrors.CodeTimeout, "ledger query cancelled")
	case ledger.IsRejected(err):
		return "", "", nil, dErrors.Wrap(err, dErrors.CodeLedgerRejected, "ledger refused the query")
	default:
		return "", "", nil, dErrors.Wrap(err, dErrors.CodeLedgerUnavailable, "ledger unavailable, retry later")
	}

	if !domain.HolderID(onChain.HolderID).Equal(record.HolderID) {
		s.logger.WarnContext(ctx, "certificate_identity_mismatch",
			"fingerprint", record.Fingerprint.Short(),
			"tx_ref", onChain.TxRef,
		)
		return models.VerificationNotVerified, models.ReasonIdentityMismatch, onChain, nil
	}
	return models.VerificationVerified, models.ReasonNone, onChain, nil
}

// notVerifiedError turns a NOT_VERIFIED outcome into the per-item error kind
// reported by bulk verification.
func notVerifiedError(out *models.VerificationOutcome) error {
	if out.Status != models.VerificationNotVerified {
		return nil
	}
	if out.Reason == models.ReasonIdentityMismatch {
		return dErrors.New(dErrors.CodeIdentityMismatch, "on-chain holder does not match the stored holder")
	}
	return dErrors.New(dErrors.CodeNotFound, "certificate not found on ledger")
}

func parseFingerprint(raw string) (models.Fingerprint, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", dErrors.New(dErrors.CodeValidation, "fingerprint is required")
	}
	if !validation.IsFingerprint(v) {
		return "", dErrors.New(dErrors.CodeValidation, "fingerprint must be a 64 character lowercase hex digest")
	}
	return models.Fingerprint(v), nil
}
