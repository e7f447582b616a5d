package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"certledger/internal/certificate/bulk"
	"certledger/internal/certificate/fingerprint"
	"certledger/internal/certificate/ledger"
	"certledger/internal/certificate/models"
	"certledger/internal/certificate/tracer"
	"certledger/pkg/domain"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/platform/sentinel"
	"certledger/pkg/requestcontext"
	"certledger/pkg/validation"
)

// BulkIssueResult is the outcome of BulkIssueCertificates. TotalIssued and
// Summary are derived from Results.
type BulkIssueResult struct {
	LedgerRef   string
	TotalIssued int
	Summary     bulk.Summary
	Results     []bulk.Result[models.IssueResult]
}

// IssueCertificate runs one issuance: fingerprint, duplicate guard, ledger
// submission, then the two-phase store write.
func (s *Service) IssueCertificate(ctx context.Context, in models.IssueInput) (*models.IssueResult, error) {
	if err := s.validateIssueInput(in); err != nil {
		return nil, err
	}
	return s.issue(ctx, in, "")
}

// BulkIssueCertificates issues the same certificate to every holder. The
// whole batch is rejected up front on any invalid field or repeated holder;
// after that each holder succeeds or fails on its own.
func (s *Service) BulkIssueCertificates(ctx context.Context, in models.BulkIssueInput) (*BulkIssueResult, error) {
	if err := s.validateBulkIssueInput(in); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, tracer.SpanBulkIssue,
		tracer.Int(tracer.AttrBatchSize, len(in.Holders)),
	)
	var err error
	defer func() { span.End(err) }()

	batchRef := "batch_" + domain.NewBatchID().String()
	results, err := bulk.Run(ctx, in.Holders,
		func(h models.BulkHolder) string { return strings.ToLower(strings.TrimSpace(h.HolderID.String())) },
		func(ctx context.Context, h models.BulkHolder) (models.IssueResult, error) {
			res, err := s.issue(ctx, in.ItemInput(h), batchRef)
			if err != nil {
				return models.IssueResult{}, err
			}
			return *res, nil
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
		s.metrics.ObserveBulk("issue", summary.Total, summary.Succeeded, summary.Failed)
	}
	s.logger.InfoContext(ctx, "bulk_issue_completed",
		"batch_ref", batchRef,
		"total", summary.Total,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"request_id", requestcontext.RequestID(ctx),
	)
	return &BulkIssueResult{
		LedgerRef:   batchRef,
		TotalIssued: summary.Succeeded,
		Summary:     summary,
		Results:     results,
	}, nil
}

func (s *Service) issue(ctx context.Context, in models.IssueInput, batchRef string) (result *models.IssueResult, err error) {
	start := time.Now()
	fp := fingerprint.Compute(fingerprint.FromInput(in))
	key := models.NewTripleKey(in.IssuerID, in.HolderID, in.Title)

	ctx, span := s.tracer.Start(ctx, tracer.SpanIssue,
		tracer.String(tracer.AttrFingerprint, fp.Short()),
		tracer.String(tracer.AttrIssuer, tracer.HashIdentity(in.IssuerID.String())),
		tracer.String(tracer.AttrHolder, tracer.HashIdentity(in.HolderID.String())),
	)
	defer func() {
		span.End(err)
		s.recordIssue(err, time.Since(start))
	}()

	release, err := s.guard.Acquire(ctx, key)
	if err != nil {
		return nil, err
	}
	defer release()

	if err = s.guard.Check(ctx, fp, key); err != nil {
		return nil, err
	}

	receipt, err := s.submitWithRetry(ctx, span, submissionFor(fp, in))
	if err != nil {
		return nil, err
	}
	span.SetAttributes(tracer.String(tracer.AttrTxRef, receipt.TxRef))

	// The ledger has committed. From here on the caller going away must not
	// abandon the store write.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.persistTimeout)
	defer cancel()

	// Microsecond precision survives every store round trip, so createOrAdopt
	// can recognise its own record.
	now := requestcontext.Now(ctx).UTC().Truncate(time.Microsecond)
	record := &models.Certificate{
		Fingerprint:        fp,
		IssuerID:           in.IssuerID,
		HolderID:           in.HolderID,
		Title:              in.Title,
		Classification:     in.Classification,
		IssuedOn:           in.IssuedOn.UTC(),
		ArtifactRef:        in.ArtifactRef,
		LedgerTxRef:        receipt.TxRef,
		BatchRef:           batchRef,
		IssuanceStatus:     models.IssuanceConfirmed,
		VerificationStatus: models.VerificationPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err = s.persistIssued(persistCtx, span, record); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "certificate_issued",
		"fingerprint", fp.Short(),
		"tx_ref", receipt.TxRef,
		"batch_ref", batchRef,
		"request_id", requestcontext.RequestID(ctx),
	)
	return &models.IssueResult{Certificate: record, LedgerRef: receipt.TxRef}, nil
}

// submitWithRetry submits once and retries transient failures with
// exponential backoff. Before every retry the ledger is queried so a
// submission that landed despite the failure is adopted, not resubmitted.
func (s *Service) submitWithRetry(ctx context.Context, span tracer.Span, sub ledger.Submission) (*ledger.Receipt, error) {
	var lastErr error
	for attempt := 0; attempt <= s.ledgerRetry.MaxRetries; attempt++ {
		if attempt > 0 {
			span.AddEvent(tracer.EventLedgerRetry,
				tracer.Int(tracer.AttrAttempt, attempt),
			)
			if s.metrics != nil {
				s.metrics.IncLedgerRetry()
			}
			s.logger.WarnContext(ctx, "ledger_submit_retry",
				"fingerprint", sub.Fingerprint[:12],
				"attempt", attempt,
				"error", lastErr,
			)
			if err := s.sleep(ctx, s.ledgerRetry.delay(attempt)); err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "ledger submission cancelled")
			}
			if rec, err := s.ledger.QueryByFingerprint(ctx, sub.HolderID, sub.Fingerprint); err == nil {
				span.AddEvent(tracer.EventLedgerAdopted)
				if s.metrics != nil {
					s.metrics.IncLedgerAdopted()
				}
				return rec.Receipt(), nil
			}
		}

		receipt, err := s.ledger.Submit(ctx, sub)
		switch {
		case err == nil && receipt.Committed:
			return receipt, nil
		case err == nil:
			lastErr = errors.New("ledger inclusion not observed before timeout")
		case ledger.IsRejected(err):
			return nil, dErrors.Wrap(err, dErrors.CodeLedgerRejected, "ledger rejected the certificate")
		case ctx.Err() != nil:
			return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "ledger submission cancelled")
		case ledger.IsRetryable(err):
			lastErr = err
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeLedgerSubmissionFailed, "ledger submission failed")
		}
	}

	if ledger.IsRetryable(lastErr) {
		return nil, dErrors.Wrap(lastErr, dErrors.CodeLedgerUnavailable, "ledger unavailable, retry later")
	}
	return nil, dErrors.Wrap(lastErr, dErrors.CodeLedgerSubmissionFailed, "ledger did not confirm the submission")
}

// persistIssued appends the recovery entry, then creates the record and
// resolves the entry in one transaction, retrying within the store budget.
// Exhausting the budget leaves the entry for the reconcile worker.
func (s *Service) persistIssued(ctx context.Context, span tracer.Span, record *models.Certificate) error {
	pw := models.NewPendingWrite(record, record.CreatedAt)

	err := s.withStoreRetry(ctx, span, func() error {
		if err := s.pending.Append(ctx, pw); err != nil && !errors.Is(err, sentinel.ErrAlreadyExists) {
			return err
		}
		return nil
	}, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "pending_write_append_failed",
			"fingerprint", record.Fingerprint.String(),
			"tx_ref", record.LedgerTxRef,
			"error", err,
		)
		return dErrors.WrapAs(err, dErrors.CodeInconsistentState,
			"certificate committed to ledger but could not be recorded; resubmit to complete")
	}

	var duplicate bool
	err = s.withStoreRetry(ctx, span, func() error {
		return s.tx.RunInTx(ctx, func(stores TxStores) error {
			// A record adopted here was created by an earlier attempt of this
			// call whose transaction did not finish, so the event is still owed.
			if _, err := createOrAdopt(ctx, stores.Certificates, record); err != nil {
				return err
			}
			if err := s.appendEvent(ctx, stores.Outbox, models.EventCertificateIssued, record, record.CreatedAt); err != nil {
				return err
			}
			return stores.Pending.Resolve(ctx, pw.ID, record.CreatedAt)
		})
	}, func(attemptErr error) {
		_ = s.pending.RecordAttempt(ctx, pw.ID, attemptErr.Error(), requestcontext.Now(ctx))
	})
	if errors.Is(err, errForeignRecord) {
		duplicate = true
		_ = s.pending.Resolve(ctx, pw.ID, record.CreatedAt)
	}
	switch {
	case duplicate:
		return dErrors.New(dErrors.CodeDuplicateCertificate, "certificate with identical content already exists")
	case err != nil:
		s.logger.ErrorContext(ctx, "store_write_deferred",
			"fingerprint", record.Fingerprint.String(),
			"tx_ref", record.LedgerTxRef,
			"pending_id", pw.ID.String(),
			"error", err,
		)
		return dErrors.WrapAs(err, dErrors.CodeInconsistentState,
			"certificate committed to ledger; store write pending reconciliation")
	}
	return nil
}

// errForeignRecord marks a fingerprint already stored by a different issuance.
var errForeignRecord = errors.New("fingerprint stored by another issuance")

// createOrAdopt creates record, treating an existing record with the same
// ledger reference as already created.
func createOrAdopt(ctx context.Context, certs Store, record *models.Certificate) (created bool, err error) {
	err = certs.Create(ctx, record)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, sentinel.ErrAlreadyExists) {
		return false, err
	}
	existing, findErr := certs.FindByFingerprint(ctx, record.Fingerprint)
	if findErr != nil {
		return false, findErr
	}
	if existing.LedgerTxRef == record.LedgerTxRef && existing.BatchRef == record.BatchRef && existing.CreatedAt.Equal(record.CreatedAt) {
		return false, nil
	}
	return false, errForeignRecord
}

// withStoreRetry runs op under the store retry budget. Foreign-record
// conflicts are final and returned immediately.
func (s *Service) withStoreRetry(ctx context.Context, span tracer.Span, op func() error, onFailure func(error)) error {
	var err error
	for attempt := 0; attempt <= s.storeRetry.MaxRetries; attempt++ {
		if attempt > 0 {
			span.AddEvent(tracer.EventStoreRetry, tracer.Int(tracer.AttrAttempt, attempt))
			if s.metrics != nil {
				s.metrics.IncStoreRetry()
			}
			if sleepErr := s.sleep(ctx, s.storeRetry.delay(attempt)); sleepErr != nil {
				return err
			}
		}
		if err = op(); err == nil || errors.Is(err, errForeignRecord) {
			return err
		}
		if onFailure != nil {
			onFailure(err)
		}
	}
	return err
}

func (s *Service) recordIssue(err error, d time.Duration) {
	if s.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = string(models.KindOf(err))
	}
	s.metrics.IncIssued(outcome)
	s.metrics.ObserveIssue(d)
}

func submissionFor(fp models.Fingerprint, in models.IssueInput) ledger.Submission {
	return ledger.Submission{
		Fingerprint: fp.String(),
		IssuerID:    in.IssuerID.String(),
		HolderID:    in.HolderID.String(),
		Title:       in.Title,
		IssuedOn:    in.IssuedOn.UTC().Format(validation.ISODateLayout),
		ArtifactRef: in.ArtifactRef,
	}
}

func (s *Service) validateIssueInput(in models.IssueInput) error {
	if err := s.validateShared(in.IssuerID, in.Title, in.Classification, in.IssuedOn); err != nil {
		return err
	}
	return s.validateHolder(in.HolderID, in.ArtifactRef)
}

func (s *Service) validateBulkIssueInput(in models.BulkIssueInput) error {
	if err := s.validateShared(in.IssuerID, in.Title, in.Classification, in.IssuedOn); err != nil {
		return err
	}
	for _, h := range in.Holders {
		if err := s.validateHolder(h.HolderID, h.ArtifactRef); err != nil {
			return dErrors.Wrap(err, dErrors.CodeValidation, "holder "+h.HolderID.String()+": "+err.Error())
		}
	}
	return nil
}

func (s *Service) validateShared(issuer domain.IssuerID, title string, c models.Classification, issuedOn time.Time) error {
	if issuer.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "issuer_id is required")
	}
	if strings.TrimSpace(title) == "" {
		return dErrors.New(dErrors.CodeValidation, "title is required")
	}
	if issuedOn.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "issued_on is required")
	}
	fields := map[string]string{"college": c.College, "course": c.Course, "major": c.Major}
	for _, name := range []string{"college", "course", "major"} {
		if strings.TrimSpace(fields[name]) == "" {
			return dErrors.New(dErrors.CodeValidation, name+" is required")
		}
	}
	return nil
}

func (s *Service) validateHolder(holder domain.HolderID, artifactRef string) error {
	if holder.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "holder_id is required")
	}
	return validation.ArtifactRef(artifactRef, s.artifactExtensions)
}
