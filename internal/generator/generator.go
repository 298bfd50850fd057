// Package generator derives the manifest artifact from a repository snapshot.
// Generators must be pure functions of the tree contents: no clock, network,
// or environment input, so that identical snapshots yield identical bytes.
package generator

import (
	"context"
	"fmt"
)

// Generator produces candidate artifact bytes from the repository root.
type Generator interface {
	Generate(ctx context.Context, root string) ([]byte, error)
}

// GenerationError wraps any failure during derivation so callers can
// distinguish generator faults from publish faults.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string { return fmt.Sprintf("generation failed: %v", e.Err) }
func (e *GenerationError) Unwrap() error { return e.Err }
