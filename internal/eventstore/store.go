// Package eventstore persists the outcome of every refresh run so operators
// can inspect recent activity without trawling logs.
package eventstore

import (
	"context"
	"time"
)

// Run is one completed refresh attempt.
type Run struct {
	ID           int64
	RunID        string
	Trigger      string
	Revision     string
	Branch       string
	Result       string
	CommitSHA    string
	ArtifactHash string
	ErrorText    string
	Duration     time.Duration
	StartedAt    time.Time
}

// Store defines the interface for persisting and retrieving run history.
type Store interface {
	// AppendRun records a completed run.
	AppendRun(ctx context.Context, run Run) error

	// Recent returns the most recent runs, newest first.
	Recent(ctx context.Context, limit int) ([]Run, error)

	// ByRunID retrieves a single run by its run identifier.
	ByRunID(ctx context.Context, runID string) (*Run, error)

	// Close closes the store and releases resources.
	Close() error
}
