package ledger_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"certledger/internal/certificate/ledger"
	"certledger/pkg/platform/sentinel"
)

func TestErrorMatchesSentinels(t *testing.T) {
	unavailable := fmt.Errorf("wrapped: %w", ledger.NewError(ledger.CategoryUnavailable, "submit", "timeout", nil))
	notFound := ledger.NewError(ledger.CategoryNotFound, "query", "missing", nil)
	rejected := ledger.NewError(ledger.CategoryRejected, "submit", "bad", nil)
	badResponse := ledger.NewError(ledger.CategoryBadResponse, "query", "garbled", nil)

	assert.ErrorIs(t, unavailable, sentinel.ErrUnavailable)
	assert.ErrorIs(t, badResponse, sentinel.ErrUnavailable)
	assert.ErrorIs(t, notFound, sentinel.ErrNotFound)
	assert.ErrorIs(t, rejected, ledger.ErrRejected)
	assert.NotErrorIs(t, rejected, sentinel.ErrUnavailable)

	assert.True(t, ledger.IsRetryable(unavailable))
	assert.False(t, ledger.IsRetryable(rejected))
	assert.Equal(t, ledger.CategoryUnavailable, ledger.CategoryOf(errors.New("raw")))
}

func TestErrorMessageIncludesUnderlying(t *testing.T) {
	err := ledger.NewError(ledger.CategoryUnavailable, "submit", "failed to execute request", errors.New("dial tcp"))
	assert.Equal(t, "ledger submit [unavailable]: failed to execute request: dial tcp", err.Error())
}
