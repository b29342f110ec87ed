package converge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/skiffdeploy/skiff/pkg/platform"
)

func TestCheckPreconditionConfirmedSession(t *testing.T) {
	status := CheckPrecondition(context.Background(), &fakeProber{})
	if !status.Authenticated {
		t.Fatal("nil probe error means a confirmed session")
	}
	if status.Reason != "" {
		t.Errorf("confirmed session must carry no reason, got %q", status.Reason)
	}
}

func TestCheckPreconditionRejectedSession(t *testing.T) {
	prober := &fakeProber{err: &platform.APIError{StatusCode: 401, Message: "token expired"}}
	status := CheckPrecondition(context.Background(), prober)
	if status.Authenticated {
		t.Fatal("rejected session must not be authenticated")
	}
	if !strings.Contains(status.Reason, "session rejected") {
		t.Errorf("expected a rejection reason, got %q", status.Reason)
	}
	if !strings.Contains(status.Reason, "token expired") {
		t.Errorf("remote error text lost: %q", status.Reason)
	}
}

func TestCheckPreconditionUnreachableEnvironment(t *testing.T) {
	// Could-not-verify is distinguishable from an outright rejection, but both
	// leave the caller unauthenticated.
	prober := &fakeProber{err: errors.New("dial tcp: i/o timeout")}
	status := CheckPrecondition(context.Background(), prober)
	if status.Authenticated {
		t.Fatal("unverifiable session must not be authenticated")
	}
	if !strings.Contains(status.Reason, "could not verify") {
		t.Errorf("expected a could-not-verify reason, got %q", status.Reason)
	}
}
