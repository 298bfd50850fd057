package daemon

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"git.home.luguber.info/inful/manifestd/internal/logfields"
	"git.home.luguber.info/inful/manifestd/internal/metrics"
	"git.home.luguber.info/inful/manifestd/internal/refresher"
)

const maxWebhookBody = 1 << 20 // 1MB

// pushPayload is the minimal common shape of forge push webhooks.
type pushPayload struct {
	Ref   string `json:"ref"`
	After string `json:"after"`
}

func (d *Daemon) startWebhookServer() error {
	mux := http.NewServeMux()
	mux.HandleFunc(d.cfg.Daemon.WebhookPath, d.handleWebhook)
	mux.HandleFunc("/healthz", d.handleHealth)
	mux.HandleFunc("/status", d.handleStatus)

	d.webhookSrv = &http.Server{
		Addr:              d.cfg.Daemon.WebhookAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Webhook server listening", "addr", d.cfg.Daemon.WebhookAddr, "path", d.cfg.Daemon.WebhookPath)
		if err := d.webhookSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Webhook server failed", logfields.Error(err))
		}
	}()
	return nil
}

func (d *Daemon) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HTTPHandler(d.registry))

	d.metricsSrv = &http.Server{
		Addr:              d.cfg.Daemon.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Metrics server listening", "addr", d.cfg.Daemon.MetricsAddr)
		if err := d.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Metrics server failed", logfields.Error(err))
		}
	}()
}

func (d *Daemon) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cfg := d.currentConfig()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	if secret := cfg.Daemon.WebhookSecret; secret != "" {
		if !validSignature(secret, body, r.Header.Get("X-Hub-Signature-256")) {
			slog.Warn("Webhook signature validation failed", "remote", r.RemoteAddr)
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}

	var payload pushPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	branch := strings.TrimPrefix(payload.Ref, "refs/heads/")
	if branch == payload.Ref {
		// Tag pushes and other refs never affect the artifact branch.
		slog.Debug("Ignoring non-branch push", "ref", payload.Ref)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	trig := refresher.PushTrigger(payload.After, branch)
	slog.Info("Push webhook received", logfields.Branch(branch), logfields.Revision(payload.After))
	if err := d.Enqueue(trig); err != nil {
		http.Error(w, "queue full", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// validSignature checks the GitHub-style sha256 HMAC header.
func validSignature(secret string, body []byte, header string) bool {
	const prefix = "sha256="
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.TrimPrefix(header, prefix)))
}

func (d *Daemon) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type statusResponse struct {
	Status        string     `json:"status"`
	UptimeSeconds float64    `json:"uptime_seconds"`
	QueueDepth    int        `json:"queue_depth"`
	LastRun       *lastRun   `json:"last_run,omitempty"`
}

type lastRun struct {
	RunID        string    `json:"run_id"`
	Trigger      string    `json:"trigger"`
	Result       string    `json:"result"`
	CommitSHA    string    `json:"commit_sha,omitempty"`
	ArtifactHash string    `json:"artifact_hash,omitempty"`
	Error        string    `json:"error,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	DurationMS   int64     `json:"duration_ms"`
}

func (d *Daemon) handleStatus(w http.ResponseWriter, _ *http.Request) {
	d.mu.RLock()
	outcome := d.lastOutcome
	d.mu.RUnlock()

	resp := statusResponse{
		Status:        "running",
		UptimeSeconds: time.Since(d.startedAt).Seconds(),
		QueueDepth:    len(d.queue),
	}
	if outcome != nil {
		lr := &lastRun{
			RunID:        outcome.RunID,
			Trigger:      string(outcome.Trigger.Kind),
			Result:       string(outcome.Result),
			CommitSHA:    outcome.CommitSHA,
			ArtifactHash: outcome.ArtifactHash,
			StartedAt:    outcome.StartedAt,
			DurationMS:   outcome.Duration.Milliseconds(),
		}
		if outcome.Err != nil {
			lr.Error = outcome.Err.Error()
		}
		resp.LastRun = lr
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Warn("Status encode failed", logfields.Error(err))
	}
}
