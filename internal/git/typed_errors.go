package git

import (
	"errors"
	"fmt"
	"strings"
)

// Base typed git errors enabling structured classification without string parsing upstream.
type AuthError struct {
	Op, URL string
	Err     error
}

func (e *AuthError) Error() string { return fmt.Sprintf("%s auth error for %s: %v", e.Op, e.URL, e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

type NotFoundError struct {
	Op, URL string
	Err     error
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s not found %s: %v", e.Op, e.URL, e.Err) }
func (e *NotFoundError) Unwrap() error { return e.Err }

type UnsupportedProtocolError struct {
	Op, URL string
	Err     error
}

func (e *UnsupportedProtocolError) Error() string {
	return fmt.Sprintf("%s unsupported protocol %s: %v", e.Op, e.URL, e.Err)
}
func (e *UnsupportedProtocolError) Unwrap() error { return e.Err }

type RateLimitError struct {
	Op, URL string
	Err     error
}

func (e *RateLimitError) Error() string { return fmt.Sprintf("%s rate limited %s: %v", e.Op, e.URL, e.Err) }
func (e *RateLimitError) Unwrap() error { return e.Err }

type NetworkTimeoutError struct {
	Op, URL string
	Err     error
}

func (e *NetworkTimeoutError) Error() string {
	return fmt.Sprintf("%s network timeout %s: %v", e.Op, e.URL, e.Err)
}
func (e *NetworkTimeoutError) Unwrap() error { return e.Err }

// PushRejectedError marks a push the remote refused, typically because a
// concurrent update moved the branch. Never retried within a run; the next
// trigger reconciles from a fresh snapshot.
type PushRejectedError struct {
	URL, Branch string
	Err         error
}

func (e *PushRejectedError) Error() string {
	return fmt.Sprintf("push rejected %s@%s: %v", e.URL, e.Branch, e.Err)
}
func (e *PushRejectedError) Unwrap() error { return e.Err }

// IsPushRejected reports whether err wraps a PushRejectedError.
func IsPushRejected(err error) bool {
	var pre *PushRejectedError
	return errors.As(err, &pre)
}

// classifyCloneError wraps underlying go-git errors into typed variants when possible.
func classifyCloneError(op, url string, err error) error {
	if err == nil {
		return nil
	}
	l := strings.ToLower(err.Error())
	switch {
	case strings.Contains(l, "authentication") || strings.Contains(l, "auth fail") || strings.Contains(l, "invalid username or password") || strings.Contains(l, "authorization"):
		return &AuthError{Op: op, URL: url, Err: err}
	case strings.Contains(l, "not found") || strings.Contains(l, "repository does not exist"):
		return &NotFoundError{Op: op, URL: url, Err: err}
	case strings.Contains(l, "unsupported protocol") || strings.Contains(l, "protocol not supported"):
		return &UnsupportedProtocolError{Op: op, URL: url, Err: err}
	case strings.Contains(l, "rate limit") || strings.Contains(l, "too many requests"):
		return &RateLimitError{Op: op, URL: url, Err: err}
	case strings.Contains(l, "timeout") || strings.Contains(l, "i/o timeout"):
		return &NetworkTimeoutError{Op: op, URL: url, Err: err}
	}
	return fmt.Errorf("failed to %s repository %s: %w", op, url, err)
}

// classifyPushError separates rejected pushes (concurrent update) from other
// transport failures.
func classifyPushError(url, branch string, err error) error {
	if err == nil {
		return nil
	}
	l := strings.ToLower(err.Error())
	switch {
	case strings.Contains(l, "non-fast-forward") || strings.Contains(l, "fetch first") || strings.Contains(l, "rejected") || strings.Contains(l, "remote ref") && strings.Contains(l, "updated"):
		return &PushRejectedError{URL: url, Branch: branch, Err: err}
	case strings.Contains(l, "authentication") || strings.Contains(l, "authorization") || strings.Contains(l, "denied"):
		return &AuthError{Op: "push", URL: url, Err: err}
	}
	return fmt.Errorf("failed to push %s@%s: %w", url, branch, err)
}
