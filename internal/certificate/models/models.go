package models

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strings"
	"time"

	"certledger/pkg/domain"
	dErrors "certledger/pkg/domain-errors"
	s "certledger/pkg/string"
)

// Event types written to the outbox.
const (
	EventCertificateIssued        = "certificate_issued"
	EventCertificateVerified      = "certificate_verified"
	EventCertificateStatusUpdated = "certificate_status_updated"
	EventCertificateDeleted       = "certificate_deleted"
)

// AggregateCertificate is the outbox aggregate type for certificate events.
const AggregateCertificate = "certificate"

// Fingerprint is the lowercase hex SHA-256 content hash that identifies a certificate.
type Fingerprint string

func (f Fingerprint) String() string { return string(f) }

// Short returns a prefix suitable for log lines.
func (f Fingerprint) Short() string {
	if len(f) <= 12 {
		return string(f)
	}
	return string(f[:12])
}

// IssuanceStatus is the business state of a certificate. Only the issuer changes it.
type IssuanceStatus string

const (
	IssuanceConfirmed IssuanceStatus = "CONFIRMED"
	IssuanceRevoked   IssuanceStatus = "REVOKED"
)

// ParseIssuanceStatus accepts either case.
func ParseIssuanceStatus(v string) (IssuanceStatus, error) {
	switch st := IssuanceStatus(strings.ToUpper(strings.TrimSpace(v))); st {
	case IssuanceConfirmed, IssuanceRevoked:
		return st, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "status must be one of [CONFIRMED REVOKED]")
	}
}

// VerificationStatus is the result of the most recent ledger cross-check.
type VerificationStatus string

const (
	VerificationPending     VerificationStatus = "PENDING"
	VerificationVerified    VerificationStatus = "VERIFIED"
	VerificationNotVerified VerificationStatus = "NOT_VERIFIED"
)

// VerificationReason explains a NOT_VERIFIED outcome.
type VerificationReason string

const (
	ReasonNone             VerificationReason = ""
	ReasonNotFoundOnLedger VerificationReason = "not_found_on_ledger"
	ReasonIdentityMismatch VerificationReason = "identity_mismatch"
)

// Classification holds the free-text organizational attributes. They are
// opaque to the engine and only feed the fingerprint.
type Classification struct {
	College string `json:"college"`
	Course  string `json:"course"`
	Major   string `json:"major"`
}

// Certificate is the canonical record kept in the mutable store.
//
// A record exists only after the ledger acknowledged its submission, so
// LedgerTxRef is always populated. Fingerprint never changes once stored.
type Certificate struct {
	Fingerprint        Fingerprint        `json:"fingerprint"`
	IssuerID           domain.IssuerID    `json:"issuerId"`
	HolderID           domain.HolderID    `json:"holderId"`
	Title              string             `json:"title"`
	Classification     Classification     `json:"classification"`
	IssuedOn           time.Time          `json:"issuedOn"` // calendar date, midnight UTC
	ArtifactRef        string             `json:"artifactRef"`
	LedgerTxRef        string             `json:"ledgerTxRef"`
	BatchRef           string             `json:"batchRef,omitempty"`
	IssuanceStatus     IssuanceStatus     `json:"issuanceStatus"`
	VerificationStatus VerificationStatus `json:"verificationStatus"`
	VerificationReason VerificationReason `json:"verificationReason,omitempty"`
	VerifiedAt         *time.Time         `json:"verifiedAt,omitempty"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

// Triple returns the duplicate-guard key for this certificate.
func (c *Certificate) Triple() TripleKey {
	return NewTripleKey(c.IssuerID, c.HolderID, c.Title)
}

// TransitionIssuance applies an issuer status change. Setting the current
// status again is a no-op and reports changed=false.
func (c *Certificate) TransitionIssuance(to IssuanceStatus, now time.Time) (changed bool, err error) {
	if to != IssuanceConfirmed && to != IssuanceRevoked {
		return false, dErrors.New(dErrors.CodeValidation, "invalid issuance status")
	}
	if c.IssuanceStatus == to {
		return false, nil
	}
	c.IssuanceStatus = to
	c.UpdatedAt = now
	return true, nil
}

// ApplyVerification records the outcome of an explicit verification call.
func (c *Certificate) ApplyVerification(status VerificationStatus, reason VerificationReason, now time.Time) {
	c.VerificationStatus = status
	c.VerificationReason = reason
	at := now
	c.VerifiedAt = &at
	c.UpdatedAt = now
}

// TripleKey identifies an (issuer, holder, title) triple. Identities and the
// title compare case-insensitively everywhere, including bulk paths. The key
// is the hex sha256 of the length-prefixed parts, so no choice of separator
// inside a part can make two triples collide.
type TripleKey string

func NewTripleKey(issuer domain.IssuerID, holder domain.HolderID, title string) TripleKey {
	h := sha256.New()
	for _, part := range []string{
		strings.ToLower(issuer.String()),
		strings.ToLower(holder.String()),
		strings.ToLower(s.CollapseSpace(title)),
	} {
		var n [4]byte
		binary.BigEndian.PutUint32(n[:], uint32(len(part)))
		_, _ = h.Write(n[:])
		_, _ = h.Write([]byte(part))
	}
	return TripleKey(hex.EncodeToString(h.Sum(nil)))
}

func (k TripleKey) String() string { return string(k) }

// ListFilter pages issuer and holder listings.
type ListFilter struct {
	Limit  int
	Offset int
	Status IssuanceStatus // empty means any
}

// DefaultListLimit applies when a listing omits a limit.
const DefaultListLimit = 50

// Normalized clamps paging to sane bounds.
func (f ListFilter) Normalized(max int) ListFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if max > 0 && f.Limit > max {
		f.Limit = max
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
