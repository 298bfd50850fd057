package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appcfg "git.home.luguber.info/inful/manifestd/internal/config"
	"git.home.luguber.info/inful/manifestd/internal/refresher"
)

func TestNewRequiresDaemonSection(t *testing.T) {
	cfg := &appcfg.Config{Repository: appcfg.Repository{URL: "u", Name: "n"}}
	_, err := New(cfg, "")
	assert.Error(t, err)
}

func TestEnqueueOverflowDrops(t *testing.T) {
	d := newTestDaemon(t, func(dc *appcfg.DaemonConfig) { dc.QueueSize = 2 })
	require.NoError(t, d.Enqueue(refresher.ManualTrigger()))
	require.NoError(t, d.Enqueue(refresher.ManualTrigger()))
	assert.Error(t, d.Enqueue(refresher.ManualTrigger()))
}

// seedBareRemote creates a bare repository with one pushed commit and returns
// its path.
func seedBareRemote(t *testing.T) string {
	t.Helper()
	bareDir := t.TempDir()
	_, err := gogit.PlainInit(bareDir, true)
	require.NoError(t, err)

	seedDir := t.TempDir()
	repo, err := gogit.PlainInit(seedDir, false)
	require.NoError(t, err)
	_, err = repo.CreateRemote(&gitconfig.RemoteConfig{Name: "origin", URLs: []string{bareDir}})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(seedDir, "main.py"), []byte("print(1)\n"), 0o600))
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("main.py")
	require.NoError(t, err)
	sig := &object.Signature{Name: "dev", Email: "dev@example.com", When: time.Now()}
	_, err = wt.Commit("initial", &gogit.CommitOptions{Author: sig, Committer: sig})
	require.NoError(t, err)
	require.NoError(t, repo.Push(&gogit.PushOptions{RemoteName: "origin"}))
	return bareDir
}

func TestWorkerDrainsQueue(t *testing.T) {
	bareDir := seedBareRemote(t)
	cfg := &appcfg.Config{
		Repository: appcfg.Repository{URL: bareDir, Name: "widget", Branch: "master"},
		Daemon: &appcfg.DaemonConfig{
			QueueSize: 4,
			StateDir:  t.TempDir(),
		},
	}
	d, err := New(cfg, "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, d.Start(ctx))

	require.NoError(t, d.Enqueue(refresher.ManualTrigger()))

	require.Eventually(t, func() bool {
		d.mu.RLock()
		defer d.mu.RUnlock()
		return d.lastOutcome != nil
	}, 10*time.Second, 50*time.Millisecond, "worker should process the trigger")

	d.mu.RLock()
	out := d.lastOutcome
	d.mu.RUnlock()
	assert.Equal(t, refresher.ResultPublished, out.Result)

	// Run history recorded through the shared store.
	runs, err := d.store.Recent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, out.RunID, runs[0].RunID)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	require.NoError(t, d.Stop(shutdownCtx))
}

type countingReloader struct{ calls chan struct{} }

func (c *countingReloader) Reload() error {
	c.calls <- struct{}{}
	return nil
}

func TestConfigWatcherDebouncesReloads(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "manifestd.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("a: 1\n"), 0o600))

	target := &countingReloader{calls: make(chan struct{}, 4)}
	cw, err := NewConfigWatcher(configPath, target)
	require.NoError(t, err)
	cw.debounceTime = 100 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, cw.Start(ctx))
	defer cw.Stop()

	// Rapid successive writes collapse into one reload.
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(configPath, []byte("a: 2\n"), 0o600))
		time.Sleep(20 * time.Millisecond)
	}

	select {
	case <-target.calls:
	case <-time.After(3 * time.Second):
		t.Fatal("expected a reload")
	}

	select {
	case <-target.calls:
		t.Fatal("expected reloads to be debounced into one")
	case <-time.After(300 * time.Millisecond):
	}
}
