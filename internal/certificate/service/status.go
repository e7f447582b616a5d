package service

import (
	"context"
	"errors"
	"time"

	"certledger/internal/certificate/models"
	"certledger/pkg/domain"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/platform/sentinel"
	"certledger/pkg/requestcontext"
)

// maxListLimit caps dashboard listings.
const maxListLimit = 200

// UpdateCertificateStatus moves a certificate between CONFIRMED and REVOKED.
// Only the issuing identity may change it; setting the current status again
// returns the record unchanged and emits no event.
func (s *Service) UpdateCertificateStatus(ctx context.Context, issuer domain.IssuerID, fingerprint string, to models.IssuanceStatus) (*models.Certificate, error) {
	fp, err := parseFingerprint(fingerprint)
	if err != nil {
		return nil, err
	}
	if to != models.IssuanceConfirmed && to != models.IssuanceRevoked {
		return nil, dErrors.New(dErrors.CodeValidation, "status must be one of [CONFIRMED REVOKED]")
	}

	current, err := s.findCertificate(ctx, fp)
	if err != nil {
		return nil, err
	}
	if !current.IssuerID.Equal(issuer) {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the issuing identity may change certificate status")
	}

	now := requestcontext.Now(ctx).UTC().Truncate(time.Microsecond)
	next := *current
	changed, err := next.TransitionIssuance(to, now)
	if err != nil {
		return nil, err
	}
	if !changed {
		return current, nil
	}

	var updated *models.Certificate
	err = s.tx.RunInTx(ctx, func(stores TxStores) error {
		c, err := stores.Certificates.UpdateIssuanceStatus(ctx, fp, to, now)
		if err != nil {
			return err
		}
		updated = c
		return s.appendEvent(ctx, stores.Outbox, models.EventCertificateStatusUpdated, c, now)
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "certificate not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update certificate status")
	}

	if s.metrics != nil {
		s.metrics.IncStatusChange(string(to))
	}
	s.logger.InfoContext(ctx, "certificate_status_updated",
		"fingerprint", fp.Short(),
		"from", current.IssuanceStatus,
		"to", to,
		"request_id", requestcontext.RequestID(ctx),
	)
	return updated, nil
}

// GetCertificate returns the stored record for fingerprint.
func (s *Service) GetCertificate(ctx context.Context, fingerprint string) (*models.Certificate, error) {
	fp, err := parseFingerprint(fingerprint)
	if err != nil {
		return nil, err
	}
	return s.findCertificate(ctx, fp)
}

// ListIssuerCertificates pages the certificates an issuer has issued, newest first.
func (s *Service) ListIssuerCertificates(ctx context.Context, issuer domain.IssuerID, f models.ListFilter) ([]*models.Certificate, error) {
	if issuer.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "issuer_id is required")
	}
	records, err := s.store.ListByIssuer(ctx, issuer, f.Normalized(maxListLimit))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list certificates")
	}
	return records, nil
}

// ListHolderCertificates pages the certificates held by holder, newest first.
func (s *Service) ListHolderCertificates(ctx context.Context, holder domain.HolderID, f models.ListFilter) ([]*models.Certificate, error) {
	if holder.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "holder_id is required")
	}
	records, err := s.store.ListByHolder(ctx, holder, f.Normalized(maxListLimit))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list certificates")
	}
	return records, nil
}

// DeleteCertificate removes a record from the store and its issuer and holder
// listings. The ledger entry is untouched.
func (s *Service) DeleteCertificate(ctx context.Context, fingerprint string) error {
	fp, err := parseFingerprint(fingerprint)
	if err != nil {
		return err
	}

	now := requestcontext.Now(ctx).UTC()
	err = s.tx.RunInTx(ctx, func(stores TxStores) error {
		c, err := stores.Certificates.FindByFingerprint(ctx, fp)
		if err != nil {
			return err
		}
		if err := stores.Certificates.Delete(ctx, fp); err != nil {
			return err
		}
		return s.appendEvent(ctx, stores.Outbox, models.EventCertificateDeleted, c, now)
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "certificate not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete certificate")
	}

	s.logger.InfoContext(ctx, "certificate_deleted",
		"fingerprint", fp.Short(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

func (s *Service) findCertificate(ctx context.Context, fp models.Fingerprint) (*models.Certificate, error) {
	c, err := s.store.FindByFingerprint(ctx, fp)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "certificate not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load certificate")
	}
	return c, nil
}
