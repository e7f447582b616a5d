package testutil

import (
	"fmt"
	"time"

	"certledger/internal/certificate/fingerprint"
	"certledger/internal/certificate/models"
	"certledger/pkg/domain"
)

// TestIDs provides stable identities for tests.
var TestIDs = struct {
	Issuer1 domain.IssuerID
	Issuer2 domain.IssuerID
	Holder1 domain.HolderID
	Holder2 domain.HolderID
	Holder3 domain.HolderID
}{
	Issuer1: "registrar@uni.example",
	Issuer2: "registrar@college.example",
	Holder1: "0xA11CE00000000000000000000000000000000001",
	Holder2: "0xB0B0000000000000000000000000000000000002",
	Holder3: "carol@student.example",
}

// TestIssuedOn is the default issuance date used by fixtures.
var TestIssuedOn = time.Date(2024, time.June, 14, 0, 0, 0, 0, time.UTC)

// CertificateBuilder provides a fluent interface for building test certificates.
// The fingerprint is derived from content on Build unless set explicitly.
type CertificateBuilder struct {
	cert        *models.Certificate
	fingerprint models.Fingerprint
}

// NewCertificateBuilder creates a confirmed, unverified certificate.
func NewCertificateBuilder() *CertificateBuilder {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &CertificateBuilder{
		cert: &models.Certificate{
			IssuerID: TestIDs.Issuer1,
			HolderID: TestIDs.Holder1,
			Title:    "Bachelor of Science",
			Classification: models.Classification{
				College: "Engineering",
				Course:  "Computer Science",
				Major:   "Distributed Systems",
			},
			IssuedOn:           TestIssuedOn,
			ArtifactRef:        "https://files.example/cert.png",
			LedgerTxRef:        "0xfeed",
			IssuanceStatus:     models.IssuanceConfirmed,
			VerificationStatus: models.VerificationPending,
			CreatedAt:          now,
			UpdatedAt:          now,
		},
	}
}

func (b *CertificateBuilder) WithIssuer(issuer domain.IssuerID) *CertificateBuilder {
	b.cert.IssuerID = issuer
	return b
}

func (b *CertificateBuilder) WithHolder(holder domain.HolderID) *CertificateBuilder {
	b.cert.HolderID = holder
	return b
}

func (b *CertificateBuilder) WithTitle(title string) *CertificateBuilder {
	b.cert.Title = title
	return b
}

func (b *CertificateBuilder) WithIssuedOn(t time.Time) *CertificateBuilder {
	b.cert.IssuedOn = t
	return b
}

func (b *CertificateBuilder) WithTxRef(ref string) *CertificateBuilder {
	b.cert.LedgerTxRef = ref
	return b
}

func (b *CertificateBuilder) WithBatchRef(ref string) *CertificateBuilder {
	b.cert.BatchRef = ref
	return b
}

func (b *CertificateBuilder) Revoked() *CertificateBuilder {
	b.cert.IssuanceStatus = models.IssuanceRevoked
	return b
}

func (b *CertificateBuilder) WithCreatedAt(t time.Time) *CertificateBuilder {
	b.cert.CreatedAt = t
	b.cert.UpdatedAt = t
	return b
}

func (b *CertificateBuilder) WithFingerprint(fp models.Fingerprint) *CertificateBuilder {
	b.fingerprint = fp
	return b
}

func (b *CertificateBuilder) Build() *models.Certificate {
	c := *b.cert
	c.Fingerprint = b.fingerprint
	if c.Fingerprint == "" {
		c.Fingerprint = fingerprint.Compute(fingerprint.FromCertificate(&c))
	}
	return &c
}

// IssueInput returns the issuance request that would produce the built certificate.
func (b *CertificateBuilder) IssueInput() models.IssueInput {
	return models.IssueInput{
		IssuerID:       b.cert.IssuerID,
		HolderID:       b.cert.HolderID,
		Title:          b.cert.Title,
		Classification: b.cert.Classification,
		ArtifactRef:    b.cert.ArtifactRef,
		IssuedOn:       b.cert.IssuedOn,
	}
}

// Holders returns n distinct bulk holders with numbered identities.
func Holders(n int) []models.BulkHolder {
	out := make([]models.BulkHolder, n)
	for i := range n {
		out[i] = models.BulkHolder{
			HolderID:    domain.HolderID(fmt.Sprintf("holder-%03d@student.example", i)),
			ArtifactRef: fmt.Sprintf("https://files.example/cert-%03d.png", i),
		}
	}
	return out
}
