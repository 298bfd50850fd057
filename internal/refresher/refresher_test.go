package refresher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appcfg "git.home.luguber.info/inful/manifestd/internal/config"
	"git.home.luguber.info/inful/manifestd/internal/eventstore"
	"git.home.luguber.info/inful/manifestd/internal/generator"
	gitclient "git.home.luguber.info/inful/manifestd/internal/git"
	"git.home.luguber.info/inful/manifestd/internal/manifest"
)

// remoteFixture is a bare repository plus a seeder working copy used to
// mutate it from the "outside", the way developers pushing would.
type remoteFixture struct {
	t       *testing.T
	bareDir string
	seedDir string
	repo    *gogit.Repository
}

func newRemoteFixture(t *testing.T) *remoteFixture {
	t.Helper()
	bareDir := t.TempDir()
	_, err := gogit.PlainInit(bareDir, true)
	require.NoError(t, err)

	seedDir := t.TempDir()
	repo, err := gogit.PlainInit(seedDir, false)
	require.NoError(t, err)
	_, err = repo.CreateRemote(&gitconfig.RemoteConfig{Name: "origin", URLs: []string{bareDir}})
	require.NoError(t, err)

	return &remoteFixture{t: t, bareDir: bareDir, seedDir: seedDir, repo: repo}
}

func (f *remoteFixture) push(files map[string]string, msg string) {
	f.t.Helper()
	wt, err := f.repo.Worktree()
	require.NoError(f.t, err)

	// Fast-forward over anything the refresher published since the last seed.
	if err := wt.Pull(&gogit.PullOptions{RemoteName: "origin"}); err != nil &&
		!errors.Is(err, gogit.NoErrAlreadyUpToDate) &&
		!errors.Is(err, transport.ErrEmptyRemoteRepository) {
		require.NoError(f.t, err)
	}
	for rel, content := range files {
		p := filepath.Join(f.seedDir, filepath.FromSlash(rel))
		require.NoError(f.t, os.MkdirAll(filepath.Dir(p), 0o750))
		require.NoError(f.t, os.WriteFile(p, []byte(content), 0o600))
		_, err = wt.Add(rel)
		require.NoError(f.t, err)
	}
	sig := &object.Signature{Name: "dev", Email: "dev@example.com", When: time.Now()}
	_, err = wt.Commit(msg, &gogit.CommitOptions{Author: sig, Committer: sig})
	require.NoError(f.t, err)
	require.NoError(f.t, f.repo.Push(&gogit.PushOptions{RemoteName: "origin"}))
}

// committedArtifact reads the artifact from the remote's branch head via a
// fresh clone, so tests observe exactly what a consumer would.
func (f *remoteFixture) committedArtifact(rel string) ([]byte, bool) {
	f.t.Helper()
	dir := f.t.TempDir()
	_, err := gogit.PlainClone(dir, false, &gogit.CloneOptions{URL: f.bareDir})
	require.NoError(f.t, err)
	content, ok, err := gitclient.CommittedFile(dir, rel)
	require.NoError(f.t, err)
	return content, ok
}

func newTestRefresher(t *testing.T, f *remoteFixture) *Refresher {
	t.Helper()
	cfg := &appcfg.Config{
		Repository: appcfg.Repository{URL: f.bareDir, Name: "fixture", Branch: "master"},
	}
	return New(cfg, t.TempDir())
}

type failingGenerator struct{ err error }

func (g failingGenerator) Generate(context.Context, string) ([]byte, error) { return nil, g.err }

func TestRunScenarios(t *testing.T) {
	f := newRemoteFixture(t)
	f.push(map[string]string{
		"README.md": "# Fixture\n\nA device project.\n",
		"main.py":   "print('v1')\n",
	}, "initial")

	r := newTestRefresher(t, f)
	ctx := context.Background()

	// Scenario A: no committed artifact yet, first run publishes it.
	out := r.Run(ctx, ManualTrigger())
	require.NoError(t, out.Err)
	assert.Equal(t, ResultPublished, out.Result)
	assert.Len(t, out.CommitSHA, 40)
	assert.NotEmpty(t, out.ArtifactHash)

	artifact, ok := f.committedArtifact("manifest.json")
	require.True(t, ok, "artifact committed to remote")
	m, err := manifest.FromJSON(artifact)
	require.NoError(t, err)
	assert.Equal(t, "Fixture", m.Project.Name)
	assert.Equal(t, out.ArtifactHash, m.ShortHash())

	// Scenario B: unchanged snapshot, second run is a no-op.
	out = r.Run(ctx, ManualTrigger())
	require.NoError(t, out.Err)
	assert.Equal(t, ResultNoChange, out.Result)
	assert.Empty(t, out.CommitSHA)

	// Scenario C: the snapshot changes, the next run republishes.
	f.push(map[string]string{"main.py": "print('v2')\n"}, "change device code")
	out = r.Run(ctx, ManualTrigger())
	require.NoError(t, out.Err)
	assert.Equal(t, ResultPublished, out.Result)

	updated, ok := f.committedArtifact("manifest.json")
	require.True(t, ok)
	assert.NotEqual(t, string(artifact), string(updated))

	// Scenario D: a failing generator leaves the committed artifact alone.
	r.WithGenerator(failingGenerator{err: errors.New("boom")})
	out = r.Run(ctx, ManualTrigger())
	assert.Equal(t, ResultGenerationFailed, out.Result)
	require.Error(t, out.Err)

	afterFailure, ok := f.committedArtifact("manifest.json")
	require.True(t, ok)
	assert.Equal(t, string(updated), string(afterFailure), "failed run must not touch the committed artifact")
}

func TestRunNoChangeLeavesWorktreeClean(t *testing.T) {
	f := newRemoteFixture(t)
	f.push(map[string]string{"main.py": "print('v1')\n"}, "initial")

	r := newTestRefresher(t, f)
	ctx := context.Background()

	out := r.Run(ctx, ManualTrigger())
	require.Equal(t, ResultPublished, out.Result)

	before, _ := f.committedArtifact("manifest.json")
	out = r.Run(ctx, ManualTrigger())
	require.Equal(t, ResultNoChange, out.Result)
	after, _ := f.committedArtifact("manifest.json")
	assert.Equal(t, string(before), string(after))
}

func TestRunPublishCommitChangesOneFile(t *testing.T) {
	f := newRemoteFixture(t)
	f.push(map[string]string{"README.md": "# P\n", "main.py": "print(1)\n"}, "initial")

	r := newTestRefresher(t, f)
	out := r.Run(context.Background(), ManualTrigger())
	require.Equal(t, ResultPublished, out.Result)

	dir := t.TempDir()
	clone, err := gogit.PlainClone(dir, false, &gogit.CloneOptions{URL: f.bareDir})
	require.NoError(t, err)
	head, err := clone.Head()
	require.NoError(t, err)
	commit, err := clone.CommitObject(head.Hash())
	require.NoError(t, err)
	assert.Equal(t, out.CommitSHA, head.Hash().String())

	stats, err := commit.Stats()
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, "manifest.json", stats[0].Name)
}

// remoteRacingGenerator advances the remote when invoked, simulating a
// developer push landing between snapshot and publish.
type remoteRacingGenerator struct {
	f       *remoteFixture
	payload []byte
}

func (g remoteRacingGenerator) Generate(context.Context, string) ([]byte, error) {
	g.f.push(map[string]string{"main.py": "print('racer')\n"}, "concurrent push")
	return g.payload, nil
}

func TestRunPublishRejectedByConcurrentPush(t *testing.T) {
	f := newRemoteFixture(t)
	f.push(map[string]string{"main.py": "print(1)\n"}, "initial")

	workDir := t.TempDir()
	cfg := &appcfg.Config{
		Repository: appcfg.Repository{URL: f.bareDir, Name: "fixture", Branch: "master"},
	}
	payload := []byte("{\"files\": []}\n")
	r := New(cfg, workDir).WithGenerator(remoteRacingGenerator{f: f, payload: payload})

	out := r.Run(context.Background(), ManualTrigger())
	assert.Equal(t, ResultPublishFailed, out.Result)
	require.Error(t, out.Err)
	assert.True(t, gitclient.IsPushRejected(out.Err))

	// The candidate commit survives in the local checkout.
	require.Len(t, out.CommitSHA, 40)
	local, ok, err := gitclient.CommittedFile(filepath.Join(workDir, "fixture"), "manifest.json")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, string(payload), string(local))

	// The remote never received it.
	_, ok = f.committedArtifact("manifest.json")
	assert.False(t, ok, "rejected push must not reach the remote")

	// The next trigger reconciles from the advanced remote and publishes.
	out = r.WithGenerator(generator.NewInventory(cfg.Generator)).Run(context.Background(), ManualTrigger())
	assert.Equal(t, ResultPublished, out.Result)
}

func TestRunSnapshotFailure(t *testing.T) {
	cfg := &appcfg.Config{
		Repository: appcfg.Repository{URL: filepath.Join(t.TempDir(), "nope"), Name: "missing"},
	}
	r := New(cfg, t.TempDir())

	out := r.Run(context.Background(), ManualTrigger())
	assert.Equal(t, ResultGenerationFailed, out.Result)
	require.Error(t, out.Err)
}

func TestRunPushTriggerWithKnownRevision(t *testing.T) {
	f := newRemoteFixture(t)
	f.push(map[string]string{"main.py": "print(1)\n"}, "initial")

	head, err := f.repo.Head()
	require.NoError(t, err)

	r := newTestRefresher(t, f)
	out := r.Run(context.Background(), PushTrigger(head.Hash().String(), "master"))
	assert.Equal(t, ResultPublished, out.Result)
}

type captureNotifier struct{ outcomes []Outcome }

func (c *captureNotifier) NotifyOutcome(_ context.Context, o Outcome) error {
	c.outcomes = append(c.outcomes, o)
	return nil
}

func TestRunRecordsHistoryAndNotifies(t *testing.T) {
	f := newRemoteFixture(t)
	f.push(map[string]string{"main.py": "print(1)\n"}, "initial")

	store, err := eventstore.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()
	notifier := &captureNotifier{}

	r := newTestRefresher(t, f).WithStore(store).WithNotifier(notifier)
	ctx := context.Background()

	out := r.Run(ctx, ScheduleTrigger())
	require.Equal(t, ResultPublished, out.Result)

	runs, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, out.RunID, runs[0].RunID)
	assert.Equal(t, "schedule", runs[0].Trigger)
	assert.Equal(t, string(ResultPublished), runs[0].Result)
	assert.Equal(t, out.CommitSHA, runs[0].CommitSHA)

	require.Len(t, notifier.outcomes, 1)
	assert.Equal(t, out.RunID, notifier.outcomes[0].RunID)
}

func TestResultExitCodes(t *testing.T) {
	assert.Equal(t, 0, ResultNoChange.ExitCode())
	assert.Equal(t, 0, ResultPublished.ExitCode())
	assert.Equal(t, 1, ResultGenerationFailed.ExitCode())
	assert.Equal(t, 2, ResultPublishFailed.ExitCode())
	assert.True(t, ResultNoChange.OK())
	assert.False(t, ResultPublishFailed.OK())
}
