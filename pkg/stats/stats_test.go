package stats

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "stats.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func outcome(id, status, resolvedBy, errorType string, cost float64) Outcome {
	return Outcome{
		ID:         id,
		Operation:  "git push",
		ExitCode:   1,
		Status:     status,
		ResolvedBy: resolvedBy,
		ErrorType:  errorType,
		Attempts:   1,
		Cost:       cost,
		DurationMS: 1200,
		CreatedAt:  time.Now().UTC(),
	}
}

func TestRecordAndRecent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, outcome("a", "recovered", "tier1", "diverged", 0.001)))
	require.NoError(t, store.Record(ctx, outcome("b", "escalated", "", "other", 0.02)))

	recent, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestRecordDuplicateIDRejected(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, outcome("a", "recovered", "tier1", "diverged", 0)))
	assert.Error(t, store.Record(ctx, outcome("a", "escalated", "", "other", 0)))
}

func TestSummarize(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, outcome("a", "recovered", "tier1", "diverged", 0.001)))
	require.NoError(t, store.Record(ctx, outcome("b", "recovered", "tier2", "auth", 0.03)))
	require.NoError(t, store.Record(ctx, outcome("c", "escalated", "", "other", 0.05)))

	summary, err := store.Summarize(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Recovered)
	assert.Equal(t, 1, summary.Escalated)
	assert.Equal(t, 1, summary.ByTier["tier1"])
	assert.Equal(t, 1, summary.ByTier["tier2"])
	assert.Equal(t, 1, summary.ByErrorType["auth"])
	assert.InDelta(t, 0.081, summary.TotalCost, 1e-9)
}

func TestSummarizeEmpty(t *testing.T) {
	store := openTestStore(t)

	summary, err := store.Summarize(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Total)
	assert.Empty(t, summary.ByTier)
}
