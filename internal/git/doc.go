// Package git provides a client for the Git operations manifestd needs:
// cloning and updating the watched repository, reading the committed artifact
// at HEAD, and publishing the regenerated artifact as a single-file commit.
//
// This package handles:
//   - Repository cloning with authentication (SSH, token, basic)
//   - Incremental updates with fetch + fast-forward (hard reset on divergence,
//     since the refresher's checkout is always disposable)
//   - Staging, committing, and pushing exactly one artifact file
//   - Retry logic for transient transport failures
//   - Typed errors for structured error handling
package git
