// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"strings"
	"unicode"

	"github.com/google/uuid"

	dErrors "certledger/pkg/domain-errors"
)

// MaxIdentityLength bounds identity strings supplied by the identity layer.
const MaxIdentityLength = 256

// Identities are opaque strings handed to us by the identity layer (an email,
// a wallet address, a directory DN). Distinct types keep an issuer from being
// passed where a holder is expected.
type (
	IssuerID string
	HolderID string
)

// Generated identifiers owned by this service.
type (
	BatchID        uuid.UUID
	PendingWriteID uuid.UUID
)

// Parse functions - use at trust boundaries (handlers, API inputs).

func ParseIssuerID(s string) (IssuerID, error) {
	v, err := parseIdentity(s, "issuer")
	return IssuerID(v), err
}

func ParseHolderID(s string) (HolderID, error) {
	v, err := parseIdentity(s, "holder")
	return HolderID(v), err
}

func ParseBatchID(s string) (BatchID, error) {
	id, err := parseUUID(s, "batch ID")
	return BatchID(id), err
}

// NewBatchID generates a random batch identifier.
func NewBatchID() BatchID { return BatchID(uuid.New()) }

// NewPendingWriteID generates a random pending-write identifier.
func NewPendingWriteID() PendingWriteID { return PendingWriteID(uuid.New()) }

// String methods - for logging and debugging.

func (id IssuerID) String() string       { return string(id) }
func (id HolderID) String() string       { return string(id) }
func (id BatchID) String() string        { return uuid.UUID(id).String() }
func (id PendingWriteID) String() string { return uuid.UUID(id).String() }

// IsNil checks - used for service-layer validation.

func (id IssuerID) IsNil() bool       { return id == "" }
func (id HolderID) IsNil() bool       { return id == "" }
func (id BatchID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id PendingWriteID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// Identity comparison is case-insensitive: the identity layer does not
// guarantee a canonical case (checksummed wallet addresses, mixed-case emails).

func (id IssuerID) Equal(other IssuerID) bool { return strings.EqualFold(string(id), string(other)) }
func (id HolderID) Equal(other HolderID) bool { return strings.EqualFold(string(id), string(other)) }

func parseIdentity(s, label string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	if len(s) > MaxIdentityLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, label+" is too long")
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "invalid "+label+" format")
		}
	}
	return s, nil
}

// parseUUID is the shared validation logic for generated identifiers.
func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label+" format")
	}
	if id == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return id, nil
}
