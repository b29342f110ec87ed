package deploy

import (
	"errors"
	"fmt"
)

// Stage names the pipeline stage a failure occurred in. Every surfaced
// failure reports its stage together with the underlying remote error text;
// the orchestrator adds classification, not translation.
type Stage string

const (
	StagePrecheck Stage = "precheck"
	StageBuild    Stage = "build"
	StagePublish  Stage = "publish"
	StageConverge Stage = "converge"
	StageReport   Stage = "report"
)

// Kind classifies a failure. Fatal kinds abort the pipeline immediately with
// no retry; CreateConflict is the only kind absorbed by the engine (it
// triggers the update fallback and never escapes a successful convergence).
type Kind string

const (
	// KindUnauthenticated means the pre-flight auth probe did not confirm a
	// valid session; no mutating call has been issued.
	KindUnauthenticated Kind = "UNAUTHENTICATED"

	// KindBuildFailed means the image build returned a non-zero outcome; the
	// publish step was not attempted.
	KindBuildFailed Kind = "BUILD_FAILED"

	// KindPublishFailed means the registry rejected the push; the previously
	// published reference, if any, remains the active one.
	KindPublishFailed Kind = "PUBLISH_FAILED"

	// KindCreateConflict means a create attempt found the resource already
	// present. Non-fatal: the engine falls back to update.
	KindCreateConflict Kind = "CREATE_CONFLICT"

	// KindRemoteFatal covers quota, validation and permission errors from the
	// remote side, surfaced verbatim.
	KindRemoteFatal Kind = "REMOTE_FATAL"

	// KindStaleArtifact marks a same-tag update the platform treated as a
	// no-op. Detected only by observation, resolved by a forced rollout.
	KindStaleArtifact Kind = "STALE_ARTIFACT"

	// KindPortConflict means a previous host process could not be stopped
	// before starting a new one on the same port.
	KindPortConflict Kind = "PROCESS_PORT_CONFLICT"
)

// Failure wraps an underlying error with the stage and classification the
// operator sees. The remote error text is preserved unmodified.
type Failure struct {
	Stage Stage
	Kind  Kind
	Err   error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s: %s", f.Stage, f.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", f.Stage, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Fail builds a classified failure for a stage.
func Fail(stage Stage, kind Kind, err error) *Failure {
	return &Failure{Stage: stage, Kind: kind, Err: err}
}

// FailureKind extracts the classification from an error chain. Unclassified
// errors report KindRemoteFatal, the catch-all for surfaced remote errors.
func FailureKind(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindRemoteFatal
}

// FailureStage extracts the stage from an error chain, or "" when the error
// carries no stage information.
func FailureStage(err error) Stage {
	var f *Failure
	if errors.As(err, &f) {
		return f.Stage
	}
	return ""
}

// IsConflict reports whether the error chain carries the already-exists
// conflict signal that drives the create-vs-update branch.
func IsConflict(err error) bool {
	return FailureKind(err) == KindCreateConflict
}
