package telemetry

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "telemetry.db")
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestStore_EmptySnapshot(t *testing.T) {
	s, _ := openStore(t)

	snap, err := s.Snapshot(context.Background(), 5)

	require.NoError(t, err)
	assert.Zero(t, snap.TotalQueries)
	assert.Empty(t, snap.TopTerms)
	assert.Empty(t, snap.RecentNoContext)
	assert.True(t, snap.Since.IsZero())
}

func TestStore_RecordAndSnapshot(t *testing.T) {
	// Given: three questions on two days
	s, _ := openStore(t)
	ctx := context.Background()
	day1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)

	events := []QueryEvent{
		{Question: "What is the invoice total?", Retrieved: 2, Latency: 2 * time.Second, Timestamp: day1},
		{Question: "invoice due date", Retrieved: 0, Latency: 300 * time.Millisecond, Timestamp: day2},
		{Question: "Who signed the contract?", Failed: true, Latency: 90 * time.Second, Timestamp: day2},
	}
	for _, e := range events {
		require.NoError(t, s.Record(ctx, e))
	}

	// When: taking a snapshot
	snap, err := s.Snapshot(ctx, 2)

	// Then: totals aggregate across days
	require.NoError(t, err)
	assert.Equal(t, int64(3), snap.TotalQueries)
	assert.Equal(t, map[Outcome]int64{
		OutcomeAnswered: 1, OutcomeNoContext: 1, OutcomeFailed: 1,
	}, snap.Outcomes)
	assert.Equal(t, map[LatencyBucket]int64{
		BucketUnder5s: 1, BucketUnder1s: 1, BucketOver60s: 1,
	}, snap.LatencyDistribution)
	assert.True(t, snap.Since.Equal(day1.Truncate(24*time.Hour)), snap.Since)

	// And: terms are ranked by count, then alphabetically
	require.Len(t, snap.TopTerms, 2)
	assert.Equal(t, TermCount{Term: "invoice", Count: 2}, snap.TopTerms[0])
	assert.Equal(t, "contract", snap.TopTerms[1].Term)

	assert.Equal(t, []string{"invoice due date"}, snap.RecentNoContext)
}

func TestStore_NoContextLogIsBounded(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()

	for i := 0; i < MaxNoContextQueries+5; i++ {
		require.NoError(t, s.Record(ctx, QueryEvent{Question: fmt.Sprintf("q%d", i)}))
	}

	snap, err := s.Snapshot(ctx, MaxNoContextQueries+10)
	require.NoError(t, err)
	require.Len(t, snap.RecentNoContext, MaxNoContextQueries)
	assert.Equal(t, fmt.Sprintf("q%d", MaxNoContextQueries+4), snap.RecentNoContext[0])
	assert.Equal(t, "q5", snap.RecentNoContext[MaxNoContextQueries-1])
}

func TestStore_PersistsAcrossOpens(t *testing.T) {
	// Given: a question recorded by one process
	s, path := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.Record(ctx, QueryEvent{Question: "holiday policy", Retrieved: 1}))
	require.NoError(t, s.Close())

	// When: reopening the file
	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	// Then: the statistics are still there
	snap, err := reopened.Snapshot(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.TotalQueries)
}

func TestOpen_MissingDirectoryFails(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "missing", "telemetry.db"))

	assert.Error(t, err)
}
