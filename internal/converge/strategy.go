// Package converge drives a deployment target's live state to match the
// desired artifact and resource configuration. Two strategies share one
// control-flow shape: a managed-platform strategy speaking a declarative API,
// and a host strategy speaking raw process lifecycle over SSH.
//
// Convergence is strictly sequential per invocation and at-most-once: a
// failed stage aborts without retry or rollback, leaving whatever the last
// completed stage produced. Concurrent invocations against the same target
// are not coordinated here; serialize them externally (a lock file or a
// single CI runner slot).
package converge

import (
	"context"

	"github.com/skiffdeploy/skiff/pkg/artifact"
	"github.com/skiffdeploy/skiff/pkg/deploy"
	"github.com/skiffdeploy/skiff/pkg/target"
)

// Request is the desired outcome of one convergence: this target running
// this artifact with this configuration.
type Request struct {
	// Target is where the application should run
	Target target.Target

	// Ref is the artifact to run. It must already exist in the registry by
	// the time a strategy sees it; strategies never build.
	Ref artifact.Reference

	// Spec is the desired resource configuration
	Spec deploy.Spec

	// Command is the process launch command for host targets
	Command string
}

// StatusReport is the observed state of a target plus, for platform targets,
// the revision history with traffic weights.
type StatusReport struct {
	State     deploy.State     `json:"state"`
	Revisions []deploy.Revision `json:"revisions,omitempty"`
}

// Strategy converges a target and reports its state. Implementations are
// selected by the target's variant.
type Strategy interface {
	// Converge drives the target to the requested configuration, absorbing
	// idempotent already-exists/already-absent outcomes and surfacing
	// everything else as a classified failure.
	Converge(ctx context.Context, req Request) (*deploy.State, error)

	// Status reads back the current state. Read-only, safe to call
	// arbitrarily often.
	Status(ctx context.Context, req Request) (*StatusReport, error)
}
