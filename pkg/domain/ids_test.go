package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "certledger/pkg/domain-errors"
)

// TestParseIdentity_Invariants validates the parsing invariant:
// "identities must be non-empty, bounded, printable strings"
func TestParseIdentity_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseHolderID("   ")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects oversized identity", func(t *testing.T) {
		_, err := ParseIssuerID(strings.Repeat("a", MaxIdentityLength+1))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects control characters", func(t *testing.T) {
		_, err := ParseHolderID("holder\n")
		require.NoError(t, err, "trailing newline is trimmed")

		_, err = ParseHolderID("hol\x00der")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("trims surrounding whitespace", func(t *testing.T) {
		id, err := ParseIssuerID("  registrar@uni.example ")
		require.NoError(t, err)
		assert.Equal(t, IssuerID("registrar@uni.example"), id)
	})
}

func TestIdentityEquality(t *testing.T) {
	assert.True(t, HolderID("0xAbC").Equal("0xabc"))
	assert.False(t, HolderID("0xabc").Equal("0xabd"))
	assert.True(t, IssuerID("Registrar").Equal("REGISTRAR"))
}

func TestParseBatchID(t *testing.T) {
	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseBatchID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		raw := uuid.New()
		id, err := ParseBatchID(raw.String())
		require.NoError(t, err)
		assert.Equal(t, BatchID(raw), id)
	})
}
