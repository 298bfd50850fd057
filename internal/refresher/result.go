package refresher

import "time"

// Result is the terminal outcome of a refresh run.
type Result string

const (
	// ResultNoChange means the candidate artifact was byte-identical to the
	// committed one; nothing was written.
	ResultNoChange Result = "no_change"
	// ResultPublished means a new artifact commit was created (and pushed
	// when pushing is enabled).
	ResultPublished Result = "published"
	// ResultGenerationFailed means no candidate could be produced; nothing
	// was committed.
	ResultGenerationFailed Result = "generation_failed"
	// ResultPublishFailed means a candidate was produced and committed
	// locally but the push was refused.
	ResultPublishFailed Result = "publish_failed"
)

// OK reports whether the result is a success (including the no-op case).
func (r Result) OK() bool { return r == ResultNoChange || r == ResultPublished }

// ExitCode maps a result to the process exit code for one-shot runs.
// Failed runs must be distinguishable from no-op successes.
func (r Result) ExitCode() int {
	switch r {
	case ResultNoChange, ResultPublished:
		return 0
	case ResultGenerationFailed:
		return 1
	case ResultPublishFailed:
		return 2
	default:
		return 1
	}
}

// Outcome describes a completed run.
type Outcome struct {
	RunID        string
	Trigger      Trigger
	Result       Result
	CommitSHA    string
	ArtifactHash string
	StartedAt    time.Time
	Duration     time.Duration
	Err          error
}
