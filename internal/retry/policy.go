// Package retry derives backoff schedules for transient git failures from
// the build configuration.
package retry

import (
	"time"

	"git.home.luguber.info/inful/manifestd/internal/config"
)

// Defaults applied when the build config leaves the retry fields empty.
const (
	defaultInitial = 500 * time.Millisecond
	defaultMax     = 10 * time.Second
)

// Policy is an immutable backoff schedule. The zero value is not usable;
// construct one with FromBuild.
type Policy struct {
	Mode       config.RetryBackoffMode
	Initial    time.Duration
	Max        time.Duration
	MaxRetries int
}

// FromBuild builds a policy from the raw build config fields. Unparseable or
// missing durations fall back to the defaults, unknown backoff modes fall
// back to linear, and the initial delay is clamped to the cap.
func FromBuild(cfg *config.BuildConfig) Policy {
	p := Policy{Mode: config.RetryBackoffLinear, Initial: defaultInitial, Max: defaultMax}
	if cfg == nil {
		return p
	}
	p.MaxRetries = cfg.MaxRetries
	if d, err := time.ParseDuration(cfg.RetryInitialDelay); err == nil && d > 0 {
		p.Initial = d
	}
	if d, err := time.ParseDuration(cfg.RetryMaxDelay); err == nil && d > 0 {
		p.Max = d
	}
	if m := config.NormalizeRetryBackoff(string(cfg.RetryBackoff)); m != "" {
		p.Mode = m
	}
	if p.Initial > p.Max {
		p.Initial = p.Max
	}
	return p
}

// Delay returns the backoff delay before the given retry (1-based: the first
// retry is attempt 1).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	var d time.Duration
	switch p.Mode {
	case config.RetryBackoffFixed:
		d = p.Initial
	case config.RetryBackoffExponential:
		d = p.Initial * (1 << (attempt - 1))
	default:
		d = time.Duration(attempt) * p.Initial
	}
	if d > p.Max {
		return p.Max
	}
	return d
}
