package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pairforge/agent/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func TestRecordAndRecent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	started := time.Now().UTC().Add(-time.Minute)

	require.NoError(t, store.Record(ctx, models.AttemptRecord{
		RequestID:  "req-1",
		Number:     "15551234567",
		CodeIssued: true,
		Outcome:    models.OutcomeDelivered,
		Delivered:  true,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
	}))

	require.NoError(t, store.Record(ctx, models.AttemptRecord{
		RequestID: "req-2",
		Number:    "447911123456",
		Outcome:   models.OutcomePairingFailed,
	}))

	attempts, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, attempts, 2)

	assert.Equal(t, "req-2", attempts[0].RequestID, "newest first")
	assert.Equal(t, models.OutcomePairingFailed, attempts[0].Outcome)

	assert.Equal(t, "req-1", attempts[1].RequestID)
	assert.True(t, attempts[1].Delivered)
	assert.True(t, attempts[1].CodeIssued)
}

func TestRecentLimit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Record(ctx, models.AttemptRecord{
			RequestID: string(rune('a' + i)),
			Number:    "15551234567",
			Outcome:   models.OutcomeFatal,
		}))
	}

	attempts, err := store.Recent(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, attempts, 3)
}
