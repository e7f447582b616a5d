// Package fingerprint derives the content hash that identifies a certificate.
//
// The hash covers issuer, holder, title, classification and issue date. It
// does not cover the artifact reference: two uploads of the same diploma
// are the same certificate.
package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"strings"
	"time"

	"certledger/internal/certificate/models"
	s "certledger/pkg/string"
	"certledger/pkg/validation"
)

// Version prefixes the canonical encoding so the field set can change
// without colliding with earlier hashes.
const Version = "v1"

// Fields are the inputs to the hash.
type Fields struct {
	IssuerID       string
	HolderID       string
	Title          string
	Classification models.Classification
	IssuedOn       time.Time
}

// FromInput extracts hash fields from an issuance request.
func FromInput(in models.IssueInput) Fields {
	return Fields{
		IssuerID:       in.IssuerID.String(),
		HolderID:       in.HolderID.String(),
		Title:          in.Title,
		Classification: in.Classification,
		IssuedOn:       in.IssuedOn,
	}
}

// FromCertificate extracts hash fields from a stored record.
func FromCertificate(c *models.Certificate) Fields {
	return Fields{
		IssuerID:       c.IssuerID.String(),
		HolderID:       c.HolderID.String(),
		Title:          c.Title,
		Classification: c.Classification,
		IssuedOn:       c.IssuedOn,
	}
}

// Compute returns the lowercase hex SHA-256 of the canonical encoding.
// Identities are lowercased; text fields keep their case with runs of
// whitespace collapsed; the date is reduced to its UTC calendar day.
func Compute(f Fields) models.Fingerprint {
	h := sha256.New()
	writeField(h, Version)
	writeField(h, strings.ToLower(strings.TrimSpace(f.IssuerID)))
	writeField(h, strings.ToLower(strings.TrimSpace(f.HolderID)))
	writeField(h, s.CollapseSpace(f.Title))
	writeField(h, s.CollapseSpace(f.Classification.College))
	writeField(h, s.CollapseSpace(f.Classification.Course))
	writeField(h, s.CollapseSpace(f.Classification.Major))
	writeField(h, f.IssuedOn.UTC().Format(validation.ISODateLayout))
	return models.Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

// Matches recomputes the fingerprint of c and compares it with the stored one.
func Matches(c *models.Certificate) bool {
	return Compute(FromCertificate(c)) == c.Fingerprint
}

// writeField length-prefixes each value so ("ab","c") and ("a","bc") differ.
func writeField(w hash.Hash, v string) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(v)))
	_, _ = w.Write(n[:])
	_, _ = w.Write([]byte(v))
}
