// Package daemon runs manifestd in long-running mode: a webhook server and a
// periodic schedule feed triggers into a queue drained by a single worker, so
// refresh runs never overlap within the process.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	appcfg "git.home.luguber.info/inful/manifestd/internal/config"
	"git.home.luguber.info/inful/manifestd/internal/eventstore"
	"git.home.luguber.info/inful/manifestd/internal/logfields"
	"git.home.luguber.info/inful/manifestd/internal/metrics"
	"git.home.luguber.info/inful/manifestd/internal/notify"
	"git.home.luguber.info/inful/manifestd/internal/refresher"
	"git.home.luguber.info/inful/manifestd/internal/workspace"
)

// Daemon wires the webhook server, scheduler, config watcher and the refresh
// worker together.
type Daemon struct {
	mu         sync.RWMutex
	cfg        *appcfg.Config
	configPath string

	ref      *refresher.Refresher
	store    eventstore.Store
	recorder metrics.Recorder
	registry *prom.Registry
	notifier *notify.NATSPublisher

	queue    chan refresher.Trigger
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	webhookSrv *http.Server
	metricsSrv *http.Server
	scheduler  *Scheduler
	watcher    *ConfigWatcher

	startedAt   time.Time
	lastOutcome *refresher.Outcome
}

// New assembles a daemon from configuration. The config must carry a daemon
// section.
func New(cfg *appcfg.Config, configPath string) (*Daemon, error) {
	if cfg.Daemon == nil {
		return nil, fmt.Errorf("daemon configuration is required")
	}

	stateDir := cfg.Daemon.StateDir
	if err := os.MkdirAll(stateDir, 0o750); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	// Persistent checkout so fetches stay incremental across runs.
	ws := workspace.NewPersistentManager(stateDir, "checkout")
	if err := ws.Create(); err != nil {
		return nil, err
	}

	registry := prom.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(registry)

	store, err := eventstore.NewSQLiteStore(filepath.Join(stateDir, "runs.db"))
	if err != nil {
		return nil, fmt.Errorf("open run store: %w", err)
	}

	d := &Daemon{
		cfg:        cfg,
		configPath: configPath,
		store:      store,
		recorder:   recorder,
		registry:   registry,
		queue:      make(chan refresher.Trigger, cfg.Daemon.QueueSize),
		stopChan:   make(chan struct{}),
	}

	d.ref = refresher.New(cfg, ws.GetPath()).
		WithRecorder(recorder).
		WithStore(store)

	if cfg.Daemon.NATS != nil {
		notifier, nerr := notify.NewNATSPublisher(cfg.Daemon.NATS)
		if nerr != nil {
			store.Close()
			return nil, fmt.Errorf("connect outcome publisher: %w", nerr)
		}
		d.notifier = notifier
		d.ref.WithNotifier(notifier)
	}

	return d, nil
}

// Start launches the worker, servers, scheduler and config watcher. It
// returns once everything is running; Stop shuts it all down.
func (d *Daemon) Start(ctx context.Context) error {
	d.startedAt = time.Now()
	slog.Info("Daemon starting", logfields.Repository(d.cfg.Repository.Name))

	d.wg.Add(1)
	go d.worker(ctx)

	if d.cfg.Daemon.WebhookAddr != "" {
		if err := d.startWebhookServer(); err != nil {
			return err
		}
	}
	if d.cfg.Daemon.MetricsAddr != "" {
		d.startMetricsServer()
	}

	if d.cfg.Daemon.ScheduleInterval != "" {
		interval, err := time.ParseDuration(d.cfg.Daemon.ScheduleInterval)
		if err != nil {
			return fmt.Errorf("parse schedule interval: %w", err)
		}
		sched, err := NewScheduler(d, interval)
		if err != nil {
			return err
		}
		d.scheduler = sched
		d.scheduler.Start()
	}

	if d.configPath != "" {
		watcher, err := NewConfigWatcher(d.configPath, d)
		if err != nil {
			slog.Warn("Config watcher unavailable", logfields.Error(err))
		} else {
			d.watcher = watcher
			if err := d.watcher.Start(ctx); err != nil {
				slog.Warn("Config watcher failed to start", logfields.Error(err))
			}
		}
	}

	slog.Info("Daemon started")
	return nil
}

// Stop shuts down servers, the scheduler and the worker, then closes the
// store and notifier.
func (d *Daemon) Stop(ctx context.Context) error {
	slog.Info("Daemon stopping")
	d.stopOnce.Do(func() { close(d.stopChan) })

	if d.watcher != nil {
		d.watcher.Stop()
	}
	if d.scheduler != nil {
		if err := d.scheduler.Stop(); err != nil {
			slog.Warn("Scheduler shutdown error", logfields.Error(err))
		}
	}
	if d.webhookSrv != nil {
		if err := d.webhookSrv.Shutdown(ctx); err != nil {
			slog.Warn("Webhook server shutdown error", logfields.Error(err))
		}
	}
	if d.metricsSrv != nil {
		if err := d.metricsSrv.Shutdown(ctx); err != nil {
			slog.Warn("Metrics server shutdown error", logfields.Error(err))
		}
	}

	d.wg.Wait()

	if d.notifier != nil {
		d.notifier.Close()
	}
	if err := d.store.Close(); err != nil {
		slog.Warn("Run store close error", logfields.Error(err))
	}
	slog.Info("Daemon stopped")
	return nil
}

// Enqueue adds a trigger to the queue without blocking. Overflow drops the
// trigger: a queued run already covers any repository state the dropped one
// would have seen.
func (d *Daemon) Enqueue(trig refresher.Trigger) error {
	select {
	case d.queue <- trig:
		d.recorder.SetQueueDepth(len(d.queue))
		return nil
	default:
		slog.Warn("Trigger queue full, dropping trigger", logfields.Trigger(string(trig.Kind)))
		return fmt.Errorf("trigger queue full")
	}
}

func (d *Daemon) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopChan:
			return
		case trig := <-d.queue:
			d.recorder.SetQueueDepth(len(d.queue))
			out := d.currentRefresher().Run(ctx, trig)
			d.mu.Lock()
			d.lastOutcome = &out
			d.mu.Unlock()
		}
	}
}

func (d *Daemon) currentRefresher() *refresher.Refresher {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.ref
}

// currentConfig snapshots the config pointer so HTTP handlers never race a
// concurrent Reload.
func (d *Daemon) currentConfig() *appcfg.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

// Reload re-reads the configuration file and swaps in a new refresher.
// Daemon-level settings (ports, schedule, queue size) require a restart and
// keep their current values.
func (d *Daemon) Reload() error {
	cfg, err := appcfg.Load(d.configPath)
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}
	if cfg.Daemon == nil {
		return fmt.Errorf("reloaded config dropped the daemon section")
	}

	ws := workspace.NewPersistentManager(cfg.Daemon.StateDir, "checkout")
	if err := ws.Create(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg = cfg
	d.ref = refresher.New(cfg, ws.GetPath()).
		WithRecorder(d.recorder).
		WithStore(d.store)
	if d.notifier != nil {
		d.ref.WithNotifier(d.notifier)
	}
	slog.Info("Configuration reloaded", logfields.Repository(cfg.Repository.Name))
	return nil
}
