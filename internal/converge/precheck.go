package converge

import (
	"context"
	"errors"
	"fmt"

	"github.com/skiffdeploy/skiff/pkg/platform"
)

// AuthProber probes whether the caller holds a valid session for the target
// execution environment. The probe is advisory: it never establishes a
// session, only reports on one.
type AuthProber interface {
	// CheckAuth returns nil when a valid session is confirmed, a rejection
	// error when the environment refused the session, and any other error
	// when the probe could not be performed.
	CheckAuth(ctx context.Context) error
}

// AuthStatus is the outcome of the precondition check.
type AuthStatus struct {
	// Authenticated is true only when the environment confirmed the session
	Authenticated bool

	// Reason explains an unauthenticated outcome. A probe that could not
	// reach the environment reports "could not verify", distinguishable from
	// an outright rejection.
	Reason string
}

// CheckPrecondition classifies the auth probe. It never raises: transient
// network failures are reported as unauthenticated with a could-not-verify
// reason, and the caller must abort before any mutating call either way.
func CheckPrecondition(ctx context.Context, prober AuthProber) AuthStatus {
	err := prober.CheckAuth(ctx)
	if err == nil {
		return AuthStatus{Authenticated: true}
	}

	var apiErr *platform.APIError
	if errors.As(err, &apiErr) && apiErr.IsAuthRejected() {
		return AuthStatus{Reason: fmt.Sprintf("session rejected: %v", err)}
	}

	return AuthStatus{Reason: fmt.Sprintf("could not verify session: %v", err)}
}
