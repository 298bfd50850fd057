package eventstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRun(runID, result string) Run {
	return Run{
		RunID:     runID,
		Trigger:   "push",
		Revision:  "abc123",
		Branch:    "main",
		Result:    result,
		Duration:  1500 * time.Millisecond,
		StartedAt: time.Now().Truncate(time.Second),
	}
}

func TestAppendAndRecent(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.AppendRun(ctx, testRun("run-1", "no_change")))
	require.NoError(t, store.AppendRun(ctx, testRun("run-2", "published")))
	require.NoError(t, store.AppendRun(ctx, testRun("run-3", "generation_failed")))

	runs, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-3", runs[0].RunID, "newest first")
	assert.Equal(t, "run-2", runs[1].RunID)
}

func TestByRunID(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	want := testRun("run-42", "published")
	want.CommitSHA = "deadbeef"
	want.ArtifactHash = "cafe0123"
	require.NoError(t, store.AppendRun(ctx, want))

	got, err := store.ByRunID(ctx, "run-42")
	require.NoError(t, err)
	assert.Equal(t, want.RunID, got.RunID)
	assert.Equal(t, want.Result, got.Result)
	assert.Equal(t, want.CommitSHA, got.CommitSHA)
	assert.Equal(t, want.ArtifactHash, got.ArtifactHash)
	assert.Equal(t, want.Duration, got.Duration)
	assert.True(t, want.StartedAt.Equal(got.StartedAt))
}

func TestByRunIDNotFound(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	_, err = store.ByRunID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestDuplicateRunIDRejected(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.AppendRun(ctx, testRun("run-1", "published")))
	assert.Error(t, store.AppendRun(ctx, testRun("run-1", "published")))
}

func TestErrorTextRoundTrip(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	run := testRun("run-err", "publish_failed")
	run.ErrorText = "push rejected origin@main: non-fast-forward"
	require.NoError(t, store.AppendRun(ctx, run))

	got, err := store.ByRunID(ctx, "run-err")
	require.NoError(t, err)
	assert.Equal(t, run.ErrorText, got.ErrorText)
}

func TestPersistentFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.AppendRun(context.Background(), testRun("run-1", "no_change")))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	runs, err := reopened.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].RunID)
}
