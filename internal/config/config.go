// Package config loads and validates the manifestd YAML configuration,
// including .env overlays and environment variable expansion.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults applied when the corresponding field is omitted.
const (
	DefaultArtifactPath    = "manifest.json"
	DefaultCommitterName   = "manifestd"
	DefaultCommitterEmail  = "manifestd@localhost"
	DefaultMessageTemplate = "Update manifest ({hash})"
	DefaultWebhookPath     = "/webhook"
	DefaultQueueSize       = 16
)

// Load loads configuration from the specified file.
func Load(configPath string) (*Config, error) {
	// Overlay .env files first; existing process env always wins, and
	// .env.local wins over .env because godotenv never overrides set vars.
	for _, envPath := range []string{".env.local", ".env"} {
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err != nil {
				fmt.Fprintf(os.Stderr, "Note: %s couldn't be loaded: %v\n", envPath, err)
			}
		}
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand ${VAR} references in the YAML content (tokens, secrets).
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Repository.Name == "" && c.Repository.URL != "" {
		c.Repository.Name = deriveRepoName(c.Repository.URL)
	}
	if c.Generator.ArtifactPath == "" {
		c.Generator.ArtifactPath = DefaultArtifactPath
	}
	if c.Publish.CommitterName == "" {
		c.Publish.CommitterName = DefaultCommitterName
	}
	if c.Publish.CommitterEmail == "" {
		c.Publish.CommitterEmail = DefaultCommitterEmail
	}
	if c.Publish.MessageTemplate == "" {
		c.Publish.MessageTemplate = DefaultMessageTemplate
	}
	if c.Build.RetryBackoff != "" {
		if m := NormalizeRetryBackoff(string(c.Build.RetryBackoff)); m != "" {
			c.Build.RetryBackoff = m
		} else {
			c.Build.RetryBackoff = RetryBackoffLinear
		}
	}
	if c.Build.ShallowDepth < 0 {
		c.Build.ShallowDepth = 0
	}
	c.Logging.Level = NormalizeLogLevel(string(c.Logging.Level))
	c.Logging.Format = NormalizeLogFormat(string(c.Logging.Format))
	if c.Daemon != nil {
		if c.Daemon.WebhookPath == "" {
			c.Daemon.WebhookPath = DefaultWebhookPath
		}
		if !strings.HasPrefix(c.Daemon.WebhookPath, "/") {
			c.Daemon.WebhookPath = "/" + c.Daemon.WebhookPath
		}
		if c.Daemon.QueueSize <= 0 {
			c.Daemon.QueueSize = DefaultQueueSize
		}
		if c.Daemon.StateDir == "" {
			c.Daemon.StateDir = "./manifestd-data"
		}
	}
}

// Validate checks invariants that would otherwise surface as confusing runtime failures.
func (c *Config) Validate() error {
	if c.Repository.URL == "" {
		return fmt.Errorf("repository.url is required")
	}
	if c.Repository.Auth != nil && !c.Repository.Auth.IsZero() {
		switch c.Repository.Auth.Type {
		case AuthTypeSSH, AuthTypeToken, AuthTypeBasic:
		default:
			return fmt.Errorf("unsupported auth type: %s", c.Repository.Auth.Type)
		}
	}
	if path.IsAbs(c.Generator.ArtifactPath) || strings.Contains(c.Generator.ArtifactPath, "..") {
		return fmt.Errorf("generator.artifact_path must be a relative path inside the repository: %s", c.Generator.ArtifactPath)
	}
	if c.Build.RetryInitialDelay != "" {
		if _, err := time.ParseDuration(c.Build.RetryInitialDelay); err != nil {
			return fmt.Errorf("build.retry_initial_delay: %w", err)
		}
	}
	if c.Build.RetryMaxDelay != "" {
		if _, err := time.ParseDuration(c.Build.RetryMaxDelay); err != nil {
			return fmt.Errorf("build.retry_max_delay: %w", err)
		}
	}
	if c.Daemon != nil {
		if c.Daemon.WebhookAddr == "" && c.Daemon.ScheduleInterval == "" {
			return fmt.Errorf("daemon requires webhook_addr or schedule_interval (nothing would ever trigger a run)")
		}
		if c.Daemon.ScheduleInterval != "" {
			d, err := time.ParseDuration(c.Daemon.ScheduleInterval)
			if err != nil {
				return fmt.Errorf("daemon.schedule_interval: %w", err)
			}
			if d < time.Second {
				return fmt.Errorf("daemon.schedule_interval must be at least 1s, got %s", d)
			}
		}
		if c.Daemon.NATS != nil && c.Daemon.NATS.URL == "" {
			return fmt.Errorf("daemon.nats.url is required when nats is configured")
		}
	}
	return nil
}

// deriveRepoName extracts a usable name from the repository URL
// (trailing path element without the .git suffix).
func deriveRepoName(rawURL string) string {
	trimmed := strings.TrimSuffix(rawURL, ".git")
	if u, err := url.Parse(trimmed); err == nil && u.Path != "" {
		trimmed = u.Path
	}
	if i := strings.LastIndexAny(trimmed, "/:"); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	if trimmed == "" {
		return "repository"
	}
	return trimmed
}

// Init creates a new configuration file with example content.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	example := Config{
		Repository: Repository{
			URL:    "https://github.com/example/project.git",
			Branch: "main",
			Auth: &AuthConfig{
				Type:  AuthTypeToken,
				Token: "${GIT_TOKEN}",
			},
		},
		Generator: GeneratorConfig{
			ArtifactPath: DefaultArtifactPath,
			Exclude:      []string{"*.tmp", ".github/**"},
		},
		Publish: PublishConfig{
			CommitterName:   DefaultCommitterName,
			CommitterEmail:  DefaultCommitterEmail,
			MessageTemplate: DefaultMessageTemplate,
		},
		Daemon: &DaemonConfig{
			WebhookAddr:      ":8112",
			WebhookPath:      DefaultWebhookPath,
			ScheduleInterval: "1h",
			MetricsAddr:      ":9113",
		},
	}

	data, err := yaml.Marshal(&example)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
