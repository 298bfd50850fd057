// Package refresher implements the generate-and-publish-artifact core: each
// run acquires a repository snapshot, derives the manifest artifact and
// publishes it only when its bytes changed.
package refresher

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	appcfg "git.home.luguber.info/inful/manifestd/internal/config"
	"git.home.luguber.info/inful/manifestd/internal/eventstore"
	"git.home.luguber.info/inful/manifestd/internal/generator"
	gitclient "git.home.luguber.info/inful/manifestd/internal/git"
	"git.home.luguber.info/inful/manifestd/internal/logfields"
	"git.home.luguber.info/inful/manifestd/internal/manifest"
	"git.home.luguber.info/inful/manifestd/internal/metrics"
)

// runState names the phases a run moves through. Terminal states are the
// Result values; these cover the intermediate ones.
type runState string

const (
	statePending    runState = "pending"
	stateGenerating runState = "generating"
	stateComparing  runState = "comparing"
	statePublishing runState = "publishing"
)

// Notifier receives completed run outcomes (e.g. a NATS publisher).
type Notifier interface {
	NotifyOutcome(ctx context.Context, outcome Outcome) error
}

// Refresher performs refresh runs one at a time. The zero dependencies are a
// no-op recorder and no store/notifier; use the With* methods to attach them.
type Refresher struct {
	cfg      *appcfg.Config
	client   *gitclient.Client
	gen      generator.Generator
	recorder metrics.Recorder
	store    eventstore.Store
	notifier Notifier

	mu sync.Mutex
}

// New creates a Refresher whose snapshots live under workspaceDir.
func New(cfg *appcfg.Config, workspaceDir string) *Refresher {
	return &Refresher{
		cfg:      cfg,
		client:   gitclient.NewClient(workspaceDir).WithBuildConfig(&cfg.Build),
		gen:      generator.NewInventory(cfg.Generator),
		recorder: metrics.NoopRecorder{},
	}
}

// WithGenerator replaces the default inventory generator.
func (r *Refresher) WithGenerator(gen generator.Generator) *Refresher { r.gen = gen; return r }

// WithRecorder attaches a metrics recorder.
func (r *Refresher) WithRecorder(rec metrics.Recorder) *Refresher {
	if rec != nil {
		r.recorder = rec
	}
	return r
}

// WithStore attaches a run history store.
func (r *Refresher) WithStore(store eventstore.Store) *Refresher { r.store = store; return r }

// WithNotifier attaches an outcome notifier.
func (r *Refresher) WithNotifier(n Notifier) *Refresher { r.notifier = n; return r }

// Run executes one refresh for the given trigger. It never returns an error;
// failures are reported through the Outcome result so callers can map them to
// exit codes or daemon metrics uniformly.
func (r *Refresher) Run(ctx context.Context, trig Trigger) Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	started := time.Now()
	out := Outcome{RunID: uuid.NewString(), Trigger: trig, StartedAt: started}
	log := slog.With(logfields.RunID(out.RunID), logfields.Trigger(string(trig.Kind)))
	log.Info("Refresh run started", logfields.Repository(r.cfg.Repository.Name))
	r.transition(log, statePending)

	snapshotPath, err := r.acquireSnapshot(log, trig)
	if err != nil {
		// A run that cannot see the snapshot cannot generate.
		return r.finish(ctx, log, out, ResultGenerationFailed, fmt.Errorf("acquire snapshot: %w", err))
	}

	r.transition(log, stateGenerating)
	genStart := time.Now()
	candidate, err := r.gen.Generate(ctx, snapshotPath)
	r.recorder.ObserveGenerateDuration(time.Since(genStart))
	if err != nil {
		return r.finish(ctx, log, out, ResultGenerationFailed, err)
	}
	out.ArtifactHash = candidateHash(candidate)

	r.transition(log, stateComparing)
	artifactPath := r.artifactPath()
	current, exists, err := gitclient.CommittedFile(snapshotPath, artifactPath)
	if err != nil {
		return r.finish(ctx, log, out, ResultGenerationFailed, fmt.Errorf("read committed artifact: %w", err))
	}
	if exists && bytes.Equal(current, candidate) {
		log.Info("Artifact unchanged", logfields.Artifact(artifactPath), logfields.Hash(out.ArtifactHash))
		return r.finish(ctx, log, out, ResultNoChange, nil)
	}

	r.transition(log, statePublishing)
	identity := gitclient.Identity{
		Name:  valueOr(r.cfg.Publish.CommitterName, appcfg.DefaultCommitterName),
		Email: valueOr(r.cfg.Publish.CommitterEmail, appcfg.DefaultCommitterEmail),
	}
	message := commitMessage(r.cfg.Publish.MessageTemplate, out.ArtifactHash)
	sha, err := r.client.PublishArtifact(snapshotPath, artifactPath, candidate, identity, message, r.cfg.Repository.Auth, r.cfg.Publish.PushEnabled())
	out.CommitSHA = sha
	if err != nil {
		r.recorder.IncPublishResult(false)
		return r.finish(ctx, log, out, ResultPublishFailed, err)
	}
	r.recorder.IncPublishResult(true)
	return r.finish(ctx, log, out, ResultPublished, nil)
}

func (r *Refresher) transition(log *slog.Logger, state runState) {
	log.Debug("Run state changed", slog.String("state", string(state)))
}

// acquireSnapshot clones or updates the checkout and, for push triggers,
// verifies the announced revision is actually reachable. A missing revision
// is tolerated with a warning (force pushes can rewrite it away); the run
// proceeds from the branch head.
func (r *Refresher) acquireSnapshot(log *slog.Logger, trig Trigger) (string, error) {
	repo := r.cfg.Repository
	if trig.Branch != "" {
		repo.Branch = trig.Branch
	}

	start := time.Now()
	path, err := r.client.UpdateRepository(repo)
	r.recorder.ObserveSnapshotDuration(time.Since(start), err == nil)
	if err != nil {
		return "", err
	}

	if trig.Revision != "" {
		ok, herr := gitclient.HasCommit(path, trig.Revision)
		switch {
		case herr != nil:
			log.Warn("Could not verify trigger revision", logfields.Revision(trig.Revision), logfields.Error(herr))
		case !ok:
			log.Warn("Trigger revision not reachable, using branch head", logfields.Revision(trig.Revision))
		}
	}
	return path, nil
}

func (r *Refresher) artifactPath() string {
	return valueOr(r.cfg.Generator.ArtifactPath, appcfg.DefaultArtifactPath)
}

func (r *Refresher) finish(ctx context.Context, log *slog.Logger, out Outcome, result Result, err error) Outcome {
	out.Result = result
	out.Err = err
	out.Duration = time.Since(out.StartedAt)

	r.recorder.ObserveRunDuration(out.Duration)
	r.recorder.IncRunOutcome(string(result))

	durationMS := float64(out.Duration.Milliseconds())
	if err != nil {
		log.Error("Refresh run failed", logfields.Result(string(result)), logfields.DurationMS(durationMS), logfields.Error(err))
	} else {
		log.Info("Refresh run finished", logfields.Result(string(result)), logfields.DurationMS(durationMS))
	}

	if r.store != nil {
		record := eventstore.Run{
			RunID:        out.RunID,
			Trigger:      string(out.Trigger.Kind),
			Revision:     out.Trigger.Revision,
			Branch:       out.Trigger.Branch,
			Result:       string(result),
			CommitSHA:    out.CommitSHA,
			ArtifactHash: out.ArtifactHash,
			Duration:     out.Duration,
			StartedAt:    out.StartedAt,
		}
		if err != nil {
			record.ErrorText = err.Error()
		}
		if serr := r.store.AppendRun(ctx, record); serr != nil {
			log.Warn("Could not record run", logfields.Error(serr))
		}
	}

	if r.notifier != nil {
		if nerr := r.notifier.NotifyOutcome(ctx, out); nerr != nil {
			log.Warn("Could not notify outcome", logfields.Error(nerr))
		}
	}
	return out
}

// candidateHash derives the short content hash used in commit messages and
// run records. Manifest artifacts expose their own content hash; any other
// generator output falls back to a digest of the bytes.
func candidateHash(candidate []byte) string {
	if m, err := manifest.FromJSON(candidate); err == nil && m.ContentHash != "" {
		return m.ShortHash()
	}
	sum := sha256.Sum256(candidate)
	return hex.EncodeToString(sum[:])[:12]
}

func commitMessage(template, hash string) string {
	if template == "" {
		template = appcfg.DefaultMessageTemplate
	}
	return strings.ReplaceAll(template, "{hash}", hash)
}

func valueOr(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
