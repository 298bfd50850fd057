// Package notify publishes completed run outcomes to NATS JetStream so other
// systems (dashboards, chat bridges) can react to artifact updates.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	appcfg "git.home.luguber.info/inful/manifestd/internal/config"
	"git.home.luguber.info/inful/manifestd/internal/refresher"
)

const defaultSubject = "manifestd.runs"

// RunEvent is the JSON payload published for each completed run.
type RunEvent struct {
	RunID        string    `json:"run_id"`
	Trigger      string    `json:"trigger"`
	Revision     string    `json:"revision,omitempty"`
	Branch       string    `json:"branch,omitempty"`
	Result       string    `json:"result"`
	CommitSHA    string    `json:"commit_sha,omitempty"`
	ArtifactHash string    `json:"artifact_hash,omitempty"`
	Error        string    `json:"error,omitempty"`
	DurationMS   int64     `json:"duration_ms"`
	StartedAt    time.Time `json:"started_at"`
}

// NATSPublisher implements refresher.Notifier over a JetStream subject.
type NATSPublisher struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	subject string
}

// NewNATSPublisher connects to NATS and creates a JetStream context.
func NewNATSPublisher(cfg *appcfg.NATSConfig) (*NATSPublisher, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, fmt.Errorf("nats url is required")
	}

	conn, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	subject := cfg.Subject
	if subject == "" {
		subject = defaultSubject
	}

	slog.Info("NATS outcome publisher initialized", "url", cfg.URL, "subject", subject)
	return &NATSPublisher{conn: conn, js: js, subject: subject}, nil
}

// NotifyOutcome publishes the outcome as a RunEvent.
func (p *NATSPublisher) NotifyOutcome(ctx context.Context, outcome refresher.Outcome) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	data, err := json.Marshal(buildEvent(outcome))
	if err != nil {
		return fmt.Errorf("marshal run event: %w", err)
	}

	if _, err := p.js.Publish(ctx, p.subject, data); err != nil {
		return fmt.Errorf("publish run event: %w", err)
	}

	slog.Debug("Published run event", "subject", p.subject, "run_id", outcome.RunID, "result", string(outcome.Result))
	return nil
}

// Close drains the connection.
func (p *NATSPublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

func buildEvent(outcome refresher.Outcome) RunEvent {
	ev := RunEvent{
		RunID:        outcome.RunID,
		Trigger:      string(outcome.Trigger.Kind),
		Revision:     outcome.Trigger.Revision,
		Branch:       outcome.Trigger.Branch,
		Result:       string(outcome.Result),
		CommitSHA:    outcome.CommitSHA,
		ArtifactHash: outcome.ArtifactHash,
		DurationMS:   outcome.Duration.Milliseconds(),
		StartedAt:    outcome.StartedAt,
	}
	if outcome.Err != nil {
		ev.Error = outcome.Err.Error()
	}
	return ev
}
