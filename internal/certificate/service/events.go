package service

import (
	"context"
	"encoding/json"
	"time"

	"certledger/internal/certificate/models"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/platform/outbox"
	"certledger/pkg/validation"
)

// certificateEvent is the outbox payload for every certificate event type.
// Identities are carried verbatim; consumers apply their own case rules.
type certificateEvent struct {
	EventType          string `json:"event_type"`
	Fingerprint        string `json:"fingerprint"`
	IssuerID           string `json:"issuer_id"`
	HolderID           string `json:"holder_id"`
	Title              string `json:"title"`
	IssuedOn           string `json:"issued_on"`
	LedgerTxRef        string `json:"ledger_tx_ref"`
	BatchRef           string `json:"batch_ref,omitempty"`
	IssuanceStatus     string `json:"issuance_status"`
	VerificationStatus string `json:"verification_status"`
	VerificationReason string `json:"verification_reason,omitempty"`
	OccurredAt         string `json:"occurred_at"`
}

// appendEvent writes an event for c through the transaction's outbox.
func (s *Service) appendEvent(ctx context.Context, out OutboxAppender, eventType string, c *models.Certificate, at time.Time) error {
	if out == nil {
		return nil
	}
	payload, err := json.Marshal(certificateEvent{
		EventType:          eventType,
		Fingerprint:        c.Fingerprint.String(),
		IssuerID:           c.IssuerID.String(),
		HolderID:           c.HolderID.String(),
		Title:              c.Title,
		IssuedOn:           c.IssuedOn.UTC().Format(validation.ISODateLayout),
		LedgerTxRef:        c.LedgerTxRef,
		BatchRef:           c.BatchRef,
		IssuanceStatus:     string(c.IssuanceStatus),
		VerificationStatus: string(c.VerificationStatus),
		VerificationReason: string(c.VerificationReason),
		OccurredAt:         at.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode certificate event")
	}
	entry := outbox.NewEntry(models.AggregateCertificate, c.Fingerprint.String(), eventType, payload, at)
	if err := out.Append(ctx, entry); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to append certificate event")
	}
	return nil
}
