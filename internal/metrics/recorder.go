// Package metrics provides observability hooks for refresh runs.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so metrics can be enabled by swapping in a real implementation
// without nil checks at every call site.
package metrics

import "time"

// Recorder defines observability hooks for refresh runs. Implementations may
// forward to Prometheus, OpenTelemetry, etc. All methods must be safe for nil
// receivers when using the NoopRecorder (allowing optional injection).
type Recorder interface {
	ObserveRunDuration(d time.Duration)
	IncRunOutcome(result string) // result: no_change|published|generation_failed|publish_failed
	ObserveGenerateDuration(d time.Duration)
	ObserveSnapshotDuration(d time.Duration, success bool)
	IncPublishResult(success bool)
	SetQueueDepth(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveRunDuration(time.Duration)            {}
func (NoopRecorder) IncRunOutcome(string)                        {}
func (NoopRecorder) ObserveGenerateDuration(time.Duration)       {}
func (NoopRecorder) ObserveSnapshotDuration(time.Duration, bool) {}
func (NoopRecorder) IncPublishResult(bool)                       {}
func (NoopRecorder) SetQueueDepth(int)                           {}
