package config

import "strings"

// Config represents the application configuration.
type Config struct {
	Repository Repository      `yaml:"repository"`
	Generator  GeneratorConfig `yaml:"generator"`
	Publish    PublishConfig   `yaml:"publish"`
	Build      BuildConfig     `yaml:"build,omitempty"`
	Daemon     *DaemonConfig   `yaml:"daemon,omitempty"`
	Logging    LoggingConfig   `yaml:"logging,omitempty"`
}

// Repository represents the Git repository the refresher operates on.
type Repository struct {
	URL    string      `yaml:"url"`
	Name   string      `yaml:"name"`
	Branch string      `yaml:"branch,omitempty"`
	Auth   *AuthConfig `yaml:"auth,omitempty"`
}

// AuthType enumerates supported authentication methods (stringly for YAML compatibility).
type AuthType string

const (
	AuthTypeNone  AuthType = "none"
	AuthTypeSSH   AuthType = "ssh"
	AuthTypeToken AuthType = "token"
	AuthTypeBasic AuthType = "basic"
)

// AuthConfig represents authentication configuration.
type AuthConfig struct {
	Type     AuthType `yaml:"type"` // ssh|token|basic|none
	Username string   `yaml:"username,omitempty"`
	Password string   `yaml:"password,omitempty"`
	Token    string   `yaml:"token,omitempty"`
	KeyPath  string   `yaml:"key_path,omitempty"`
}

// IsZero reports whether no auth method is specified.
func (a *AuthConfig) IsZero() bool { return a == nil || a.Type == "" || a.Type == AuthTypeNone }

// GeneratorConfig controls how the manifest artifact is derived from the snapshot.
type GeneratorConfig struct {
	// ArtifactPath is the repository-relative path of the generated file.
	ArtifactPath string `yaml:"artifact_path,omitempty"`
	// Include restricts the inventory to matching glob patterns (all files when empty).
	Include []string `yaml:"include,omitempty"`
	// Exclude removes matching glob patterns from the inventory. The artifact
	// itself and .git are always excluded.
	Exclude []string `yaml:"exclude,omitempty"`
	// ProjectName overrides the name extracted from the repository README.
	ProjectName string `yaml:"project_name,omitempty"`
}

// PublishConfig controls the commit/push step.
type PublishConfig struct {
	CommitterName  string `yaml:"committer_name,omitempty"`
	CommitterEmail string `yaml:"committer_email,omitempty"`
	// MessageTemplate is the commit message; the literal `{hash}` is replaced
	// with the short content hash of the new artifact.
	MessageTemplate string `yaml:"message_template,omitempty"`
	// Push disabled leaves the commit local (useful for mirrored setups where
	// a separate process syncs).
	Push *bool `yaml:"push,omitempty"`
}

// PushEnabled reports whether the publish step should push (default true).
func (p PublishConfig) PushEnabled() bool { return p.Push == nil || *p.Push }

// BuildConfig holds snapshot acquisition tuning knobs. All zero values trigger
// sensible defaults.
type BuildConfig struct {
	// ShallowDepth, when >0, performs shallow clones limited to the specified
	// number of commits. A refresher publishing commits needs history for the
	// push negotiation, so the default is 0 (full history).
	ShallowDepth int `yaml:"shallow_depth,omitempty"`
	// Retry policy fields apply to transient clone/fetch failures only; the
	// publish step is never retried within a run.
	MaxRetries        int              `yaml:"max_retries,omitempty"`
	RetryBackoff      RetryBackoffMode `yaml:"retry_backoff,omitempty"`       // fixed|linear|exponential (default linear)
	RetryInitialDelay string           `yaml:"retry_initial_delay,omitempty"` // duration string (default 500ms)
	RetryMaxDelay     string           `yaml:"retry_max_delay,omitempty"`     // cap for exponential (default 10s)
}

// DaemonConfig holds settings for the long-running mode.
type DaemonConfig struct {
	// WebhookAddr is the listen address for push webhooks (e.g. ":8112").
	WebhookAddr string `yaml:"webhook_addr,omitempty"`
	// WebhookPath is the endpoint path (default "/webhook").
	WebhookPath string `yaml:"webhook_path,omitempty"`
	// WebhookSecret enables HMAC-SHA256 signature validation when set.
	WebhookSecret string `yaml:"webhook_secret,omitempty"`
	// ScheduleInterval triggers a refresh periodically regardless of pushes
	// (duration string; empty disables the schedule).
	ScheduleInterval string `yaml:"schedule_interval,omitempty"`
	// MetricsAddr serves Prometheus metrics when set (e.g. ":9113").
	MetricsAddr string `yaml:"metrics_addr,omitempty"`
	// StateDir holds the run history database and the persistent checkout.
	StateDir string `yaml:"state_dir,omitempty"`
	// QueueSize bounds pending triggers (default 16); overflow drops with a warning.
	QueueSize int `yaml:"queue_size,omitempty"`
	// NATS enables publishing run outcomes to a JetStream subject.
	NATS *NATSConfig `yaml:"nats,omitempty"`
}

// NATSConfig configures the optional run-outcome notifier.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject,omitempty"`
}

// LoggingConfig selects log verbosity and output shape.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level,omitempty"`
	Format LogFormat `yaml:"format,omitempty"`
}

// RetryBackoffMode enumerates supported backoff strategies for retries.
type RetryBackoffMode string

const (
	RetryBackoffFixed       RetryBackoffMode = "fixed"
	RetryBackoffLinear      RetryBackoffMode = "linear"
	RetryBackoffExponential RetryBackoffMode = "exponential"
)

// NormalizeRetryBackoff converts arbitrary user input (case-insensitive) into a typed mode, returning empty string for unknown.
func NormalizeRetryBackoff(raw string) RetryBackoffMode {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(RetryBackoffFixed):
		return RetryBackoffFixed
	case string(RetryBackoffLinear):
		return RetryBackoffLinear
	case string(RetryBackoffExponential):
		return RetryBackoffExponential
	default:
		return ""
	}
}
