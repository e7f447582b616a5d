package models

import (
	"time"

	"certledger/pkg/domain"
)

// IssueInput is a validated single-issuance request.
type IssueInput struct {
	IssuerID       domain.IssuerID
	HolderID       domain.HolderID
	Title          string
	Classification Classification
	ArtifactRef    string
	IssuedOn       time.Time
}

// BulkHolder is one recipient in a bulk issuance.
type BulkHolder struct {
	HolderID    domain.HolderID
	ArtifactRef string
}

// BulkIssueInput issues the same certificate to several holders.
type BulkIssueInput struct {
	IssuerID       domain.IssuerID
	Title          string
	Classification Classification
	IssuedOn       time.Time
	Holders        []BulkHolder
}

// ItemInput expands one holder of the batch into a single issuance.
func (b BulkIssueInput) ItemInput(h BulkHolder) IssueInput {
	return IssueInput{
		IssuerID:       b.IssuerID,
		HolderID:       h.HolderID,
		Title:          b.Title,
		Classification: b.Classification,
		ArtifactRef:    h.ArtifactRef,
		IssuedOn:       b.IssuedOn,
	}
}

// IssueResult is the outcome of IssueCertificate.
type IssueResult struct {
	Certificate *Certificate
	LedgerRef   string
}

// VerificationOutcome reports one verification. Valid is true only for
// VERIFIED; revocation is reported separately through IssuanceStatus.
type VerificationOutcome struct {
	Fingerprint    Fingerprint
	Valid          bool
	Status         VerificationStatus
	Reason         VerificationReason
	IssuanceStatus IssuanceStatus
	OnChainHolder  domain.HolderID
	LedgerTxRef    string
	CheckedAt      time.Time
	Certificate    *Certificate
}
