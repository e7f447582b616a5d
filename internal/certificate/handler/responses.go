package handler

import (
	"time"

	"certledger/internal/certificate/bulk"
	"certledger/internal/certificate/models"
	"certledger/internal/certificate/service"
)

// CertificateResponse is the wire form of a stored certificate.
type CertificateResponse struct {
	Fingerprint        string                `json:"fingerprint"`
	IssuerID           string                `json:"issuerId"`
	HolderID           string                `json:"holderId"`
	Title              string                `json:"title"`
	Classification     models.Classification `json:"classification"`
	IssuedOn           string                `json:"issuedOn"`
	ArtifactRef        string                `json:"artifactRef"`
	LedgerTxRef        string                `json:"ledgerTxRef"`
	BatchRef           string                `json:"batchRef,omitempty"`
	IssuanceStatus     string                `json:"issuanceStatus"`
	VerificationStatus string                `json:"verificationStatus"`
	VerificationReason string                `json:"verificationReason,omitempty"`
	VerifiedAt         *time.Time            `json:"verifiedAt,omitempty"`
	CreatedAt          time.Time             `json:"createdAt"`
	UpdatedAt          time.Time             `json:"updatedAt"`
}

func toCertificateResponse(c *models.Certificate) *CertificateResponse {
	if c == nil {
		return nil
	}
	return &CertificateResponse{
		Fingerprint:        c.Fingerprint.String(),
		IssuerID:           c.IssuerID.String(),
		HolderID:           c.HolderID.String(),
		Title:              c.Title,
		Classification:     c.Classification,
		IssuedOn:           formatDate(c.IssuedOn),
		ArtifactRef:        c.ArtifactRef,
		LedgerTxRef:        c.LedgerTxRef,
		BatchRef:           c.BatchRef,
		IssuanceStatus:     string(c.IssuanceStatus),
		VerificationStatus: string(c.VerificationStatus),
		VerificationReason: string(c.VerificationReason),
		VerifiedAt:         c.VerifiedAt,
		CreatedAt:          c.CreatedAt,
		UpdatedAt:          c.UpdatedAt,
	}
}

type IssueResponse struct {
	Certificate *CertificateResponse `json:"certificate"`
	LedgerRef   string               `json:"ledgerRef"`
}

func toIssueResponse(r *models.IssueResult) *IssueResponse {
	return &IssueResponse{Certificate: toCertificateResponse(r.Certificate), LedgerRef: r.LedgerRef}
}

// ItemResult is one bulk item. Key is the holder identity for bulk issuance
// and the fingerprint for bulk verification.
type ItemResult[T any] struct {
	Key     string          `json:"key"`
	Status  bulk.Status     `json:"status"`
	Payload *T              `json:"payload,omitempty"`
	Error   *bulk.ItemError `json:"error,omitempty"`
}

func toItemResults[I, T any](in []bulk.Result[I], conv func(*I) *T) []ItemResult[T] {
	out := make([]ItemResult[T], 0, len(in))
	for _, r := range in {
		item := ItemResult[T]{Key: r.Key, Status: r.Status, Error: r.Error}
		if r.Payload != nil {
			item.Payload = conv(r.Payload)
		}
		out = append(out, item)
	}
	return out
}

type BulkIssueResponse struct {
	TotalIssued  int                         `json:"totalIssued"`
	LedgerRef    string                      `json:"ledgerRef"`
	Summary      bulk.Summary                `json:"summary"`
	Certificates []ItemResult[IssueResponse] `json:"certificates"`
}

func toBulkIssueResponse(r *service.BulkIssueResult) *BulkIssueResponse {
	return &BulkIssueResponse{
		TotalIssued:  r.TotalIssued,
		LedgerRef:    r.LedgerRef,
		Summary:      r.Summary,
		Certificates: toItemResults(r.Results, toIssueResponse),
	}
}

// OutcomeResponse is the verification verdict, separate from the record so
// revocation and verification status are never conflated.
type OutcomeResponse struct {
	Fingerprint    string    `json:"fingerprint"`
	Valid          bool      `json:"valid"`
	Status         string    `json:"status"`
	Reason         string    `json:"reason,omitempty"`
	IssuanceStatus string    `json:"issuanceStatus"`
	OnChainHolder  string    `json:"onChainHolder,omitempty"`
	LedgerTxRef    string    `json:"ledgerTxRef,omitempty"`
	CheckedAt      time.Time `json:"checkedAt"`
}

type VerifyResponse struct {
	Outcome     OutcomeResponse      `json:"outcome"`
	Certificate *CertificateResponse `json:"certificate"`
}

func toVerifyResponse(o *models.VerificationOutcome) *VerifyResponse {
	return &VerifyResponse{
		Outcome: OutcomeResponse{
			Fingerprint:    o.Fingerprint.String(),
			Valid:          o.Valid,
			Status:         string(o.Status),
			Reason:         string(o.Reason),
			IssuanceStatus: string(o.IssuanceStatus),
			OnChainHolder:  o.OnChainHolder.String(),
			LedgerTxRef:    o.LedgerTxRef,
			CheckedAt:      o.CheckedAt,
		},
		Certificate: toCertificateResponse(o.Certificate),
	}
}

type BulkVerifyResponse struct {
	Summary bulk.Summary                 `json:"summary"`
	Results []ItemResult[VerifyResponse] `json:"results"`
}

func toBulkVerifyResponse(r *service.BulkVerifyResult) *BulkVerifyResponse {
	return &BulkVerifyResponse{
		Summary: r.Summary,
		Results: toItemResults(r.Results, toVerifyResponse),
	}
}

type ListResponse struct {
	Certificates []*CertificateResponse `json:"certificates"`
	Limit        int                    `json:"limit"`
	Offset       int                    `json:"offset"`
}

func toListResponse(certs []*models.Certificate, f models.ListFilter) *ListResponse {
	out := make([]*CertificateResponse, 0, len(certs))
	for _, c := range certs {
		out = append(out, toCertificateResponse(c))
	}
	return &ListResponse{Certificates: out, Limit: f.Limit, Offset: f.Offset}
}
