package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certledger/pkg/platform/outbox"
)

func TestStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	older := outbox.NewEntry("certificate", "fp-1", "certificate.issued", []byte(`{}`), base)
	newer := outbox.NewEntry("certificate", "fp-2", "certificate.issued", []byte(`{}`), base.Add(time.Second))
	require.NoError(t, s.Append(ctx, newer))
	require.NoError(t, s.Append(ctx, older))

	batch, err := s.FetchUnprocessed(ctx, 1)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "fp-1", batch[0].AggregateID, "oldest first")

	require.NoError(t, s.MarkProcessed(ctx, older.ID, base.Add(time.Minute)))
	assert.Error(t, s.MarkProcessed(ctx, older.ID, base.Add(time.Minute)), "second mark is rejected")

	pending, err := s.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)

	deleted, err := s.DeleteProcessedBefore(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}
