// Package workspace manages checkout directories for refresh runs, supporting
// both ephemeral (timestamped) and persistent (fixed-path) modes.
//
// Ephemeral mode creates timestamped directories (e.g., manifestd-20260831-101502)
// suitable for one-shot runs, cleaning up completely after use.
//
// Persistent mode uses a fixed directory path (e.g., /data/manifestd/checkout)
// that persists across runs, enabling incremental fetches in daemon mode.
package workspace
