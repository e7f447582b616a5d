package models

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "certledger/pkg/domain-errors"
)

func TestTripleKeyIsCaseInsensitive(t *testing.T) {
	a := NewTripleKey("Issuer@Uni", "0xABC", "Bachelor  of Science")
	b := NewTripleKey("issuer@uni", "0xabc", "bachelor of science")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, NewTripleKey("issuer@uni", "0xabc", "Master of Science"))
}

func TestTripleKeyKeepsPartsApart(t *testing.T) {
	a := NewTripleKey("I", "alice|bsc", "Diploma")
	b := NewTripleKey("I", "alice", "bsc|Diploma")
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, NewTripleKey("ab", "c", "t"), NewTripleKey("a", "bc", "t"))
	assert.Len(t, a.String(), 64)
}

func TestTransitionIssuance(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("revoke then restore", func(t *testing.T) {
		c := &Certificate{IssuanceStatus: IssuanceConfirmed}
		changed, err := c.TransitionIssuance(IssuanceRevoked, now)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, IssuanceRevoked, c.IssuanceStatus)
		assert.Equal(t, now, c.UpdatedAt)

		changed, err = c.TransitionIssuance(IssuanceConfirmed, now)
		require.NoError(t, err)
		assert.True(t, changed)
	})

	t.Run("same status is a no-op", func(t *testing.T) {
		c := &Certificate{IssuanceStatus: IssuanceRevoked}
		changed, err := c.TransitionIssuance(IssuanceRevoked, now)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.True(t, c.UpdatedAt.IsZero())
	})

	t.Run("unknown status rejected", func(t *testing.T) {
		c := &Certificate{IssuanceStatus: IssuanceConfirmed}
		_, err := c.TransitionIssuance("EXPIRED", now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestApplyVerificationKeepsIssuanceStatus(t *testing.T) {
	now := time.Now().UTC()
	c := &Certificate{IssuanceStatus: IssuanceRevoked, VerificationStatus: VerificationPending}
	c.ApplyVerification(VerificationNotVerified, ReasonIdentityMismatch, now)
	assert.Equal(t, IssuanceRevoked, c.IssuanceStatus)
	assert.Equal(t, VerificationNotVerified, c.VerificationStatus)
	assert.Equal(t, ReasonIdentityMismatch, c.VerificationReason)
	require.NotNil(t, c.VerifiedAt)
	assert.Equal(t, now, *c.VerifiedAt)
}

func TestParseIssuanceStatus(t *testing.T) {
	st, err := ParseIssuanceStatus(" revoked ")
	require.NoError(t, err)
	assert.Equal(t, IssuanceRevoked, st)

	_, err = ParseIssuanceStatus("PENDING")
	assert.Error(t, err)
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		kind ErrorKind
	}{
		{nil, ""},
		{dErrors.New(dErrors.CodeValidation, "bad"), KindValidation},
		{dErrors.New(dErrors.CodeDuplicateCertificate, "dup"), KindDuplicateCertificate},
		{dErrors.New(dErrors.CodeLedgerUnavailable, "down"), KindLedgerUnavailable},
		{dErrors.New(dErrors.CodeLedgerRejected, "no"), KindLedgerRejected},
		{dErrors.New(dErrors.CodeInconsistentState, "pending"), KindInconsistentState},
		{dErrors.New(dErrors.CodeCancelled, "stop"), KindCancelled},
		{errors.New("boom"), KindInternal},
		{context.Canceled, KindInternal},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.kind, KindOf(tc.err))
	}
}

func TestListFilterNormalized(t *testing.T) {
	f := ListFilter{Limit: 0, Offset: -3}.Normalized(100)
	assert.Equal(t, DefaultListLimit, f.Limit)
	assert.Zero(t, f.Offset)
	assert.Equal(t, 100, ListFilter{Limit: 500}.Normalized(100).Limit)
}

func TestNewPendingWrite(t *testing.T) {
	now := time.Now().UTC()
	c := &Certificate{Fingerprint: "abc", IssuerID: "i", HolderID: "h", Title: "T", LedgerTxRef: "tx1"}
	p := NewPendingWrite(c, now)
	assert.False(t, p.ID.IsNil())
	assert.Equal(t, Fingerprint("abc"), p.Fingerprint)
	assert.Equal(t, "tx1", p.TxRef)
	assert.Equal(t, c.Triple(), p.Triple)
	assert.False(t, p.IsResolved())
}
