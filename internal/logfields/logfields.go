// Package logfields centralizes slog attribute construction so field names
// stay consistent across packages.
package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyTrigger    = "trigger"
	KeyResult     = "result"
	KeyRepo       = "repository"
	KeyURL        = "url"
	KeyBranch     = "branch"
	KeyRevision   = "revision"
	KeyCommit     = "commit"
	KeyArtifact   = "artifact"
	KeyPath       = "path"
	KeyHash       = "hash"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func Trigger(kind string) slog.Attr   { return slog.String(KeyTrigger, kind) }
func Result(r string) slog.Attr       { return slog.String(KeyResult, r) }
func Repository(name string) slog.Attr { return slog.String(KeyRepo, name) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func Branch(b string) slog.Attr       { return slog.String(KeyBranch, b) }
func Revision(rev string) slog.Attr   { return slog.String(KeyRevision, rev) }
func Commit(sha string) slog.Attr     { return slog.String(KeyCommit, sha) }
func Artifact(p string) slog.Attr     { return slog.String(KeyArtifact, p) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Hash(h string) slog.Attr         { return slog.String(KeyHash, h) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
