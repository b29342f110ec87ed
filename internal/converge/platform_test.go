package converge

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/skiffdeploy/skiff/pkg/artifact"
	"github.com/skiffdeploy/skiff/pkg/deploy"
	"github.com/skiffdeploy/skiff/pkg/platform"
	"github.com/skiffdeploy/skiff/pkg/target"
)

// fakePlatformAPI records calls and returns scripted results.
type fakePlatformAPI struct {
	nsErr       error
	createErr   error
	updateErr   error
	describe    *deploy.State
	describeErr error
	revisions   []deploy.Revision
	listErr     error

	nsCalls       []string
	createCalls   []platform.ResourceRequest
	updateCalls   []platform.ResourceRequest
	describeCalls int
	listCalls     int
}

func (f *fakePlatformAPI) CreateNamespace(ctx context.Context, name, region string) error {
	f.nsCalls = append(f.nsCalls, name)
	return f.nsErr
}

func (f *fakePlatformAPI) CreateResource(ctx context.Context, req platform.ResourceRequest) error {
	f.createCalls = append(f.createCalls, req)
	return f.createErr
}

func (f *fakePlatformAPI) UpdateResource(ctx context.Context, req platform.ResourceRequest) error {
	f.updateCalls = append(f.updateCalls, req)
	return f.updateErr
}

func (f *fakePlatformAPI) DescribeResource(ctx context.Context, namespace, name string) (*deploy.State, error) {
	f.describeCalls++
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	if f.describe != nil {
		return f.describe, nil
	}
	return &deploy.State{Exists: true, Health: deploy.HealthStarting}, nil
}

func (f *fakePlatformAPI) ListRevisions(ctx context.Context, namespace, name string) ([]deploy.Revision, error) {
	f.listCalls++
	return f.revisions, f.listErr
}

func conflictErr() error {
	return &platform.APIError{StatusCode: 409, Code: "AlreadyExists", Message: "app already exists"}
}

func platformRequest() Request {
	return Request{
		Target: target.Target{
			Platform: &target.PlatformTarget{Region: "westeurope", Namespace: "prod", Name: "antenna-lab"},
		},
		Ref:  artifact.Reference{Registry: "registry.example.io", Repository: "antenna-lab", Tag: "v3"},
		Spec: deploy.Spec{Port: 8501, Ingress: deploy.IngressExternal, CPU: 0.5, Memory: "1.0Gi", MaxReplicas: 2},
	}
}

func TestPlatformConvergeFreshCreate(t *testing.T) {
	api := &fakePlatformAPI{}
	s := NewPlatformStrategy(api, hclog.NewNullLogger())

	state, err := s.Converge(context.Background(), platformRequest())
	if err != nil {
		t.Fatalf("Converge returned error: %v", err)
	}
	if !state.Exists {
		t.Error("expected converged state to exist")
	}

	if len(api.nsCalls) != 1 || api.nsCalls[0] != "prod" {
		t.Errorf("expected one namespace create for prod, got %v", api.nsCalls)
	}
	if len(api.createCalls) != 1 {
		t.Fatalf("expected one create call, got %d", len(api.createCalls))
	}
	if len(api.updateCalls) != 0 {
		t.Errorf("fresh create must not fall through to update, got %d update calls", len(api.updateCalls))
	}

	req := api.createCalls[0]
	if req.Image != "registry.example.io/antenna-lab:v3" {
		t.Errorf("unexpected image in create request: %s", req.Image)
	}
	if req.RevisionSuffix != "" {
		t.Errorf("plain convergence must not carry a revision suffix, got %q", req.RevisionSuffix)
	}
}

func TestPlatformConvergeConflictFallsBackToUpdate(t *testing.T) {
	api := &fakePlatformAPI{createErr: conflictErr()}
	s := NewPlatformStrategy(api, hclog.NewNullLogger())

	if _, err := s.Converge(context.Background(), platformRequest()); err != nil {
		t.Fatalf("conflict must be absorbed, got error: %v", err)
	}

	if len(api.createCalls) != 1 || len(api.updateCalls) != 1 {
		t.Fatalf("expected create then update, got %d creates %d updates",
			len(api.createCalls), len(api.updateCalls))
	}

	// The update converges to the same desired configuration the create
	// carried.
	if api.createCalls[0].Image != api.updateCalls[0].Image {
		t.Error("update must carry the same image as the create attempt")
	}
	if api.createCalls[0].Spec != api.updateCalls[0].Spec {
		t.Error("update must carry the same spec as the create attempt")
	}
}

func TestPlatformConvergeQuotaErrorIsFatal(t *testing.T) {
	quota := &platform.APIError{StatusCode: 403, Code: "QuotaExceeded", Message: "cpu quota exceeded in westeurope"}
	api := &fakePlatformAPI{createErr: quota}
	s := NewPlatformStrategy(api, hclog.NewNullLogger())

	_, err := s.Converge(context.Background(), platformRequest())
	if err == nil {
		t.Fatal("expected quota error to be fatal")
	}
	if len(api.updateCalls) != 0 {
		t.Error("non-conflict create failure must not fall through to update")
	}
	if kind := deploy.FailureKind(err); kind != deploy.KindRemoteFatal {
		t.Errorf("expected kind %s, got %s", deploy.KindRemoteFatal, kind)
	}
	// The remote error text survives classification unmodified.
	if !strings.Contains(err.Error(), "cpu quota exceeded in westeurope") {
		t.Errorf("remote error text lost: %v", err)
	}
}

func TestPlatformConvergeUpdateFailureIsFatal(t *testing.T) {
	api := &fakePlatformAPI{
		createErr: conflictErr(),
		updateErr: &platform.APIError{StatusCode: 422, Code: "ValidationFailed", Message: "invalid memory value"},
	}
	s := NewPlatformStrategy(api, hclog.NewNullLogger())

	_, err := s.Converge(context.Background(), platformRequest())
	if err == nil {
		t.Fatal("expected update failure to surface")
	}
	if kind := deploy.FailureKind(err); kind != deploy.KindRemoteFatal {
		t.Errorf("expected kind %s, got %s", deploy.KindRemoteFatal, kind)
	}
}

func TestPlatformConvergeNamespaceConflictAbsorbed(t *testing.T) {
	api := &fakePlatformAPI{nsErr: conflictErr()}
	s := NewPlatformStrategy(api, hclog.NewNullLogger())

	if _, err := s.Converge(context.Background(), platformRequest()); err != nil {
		t.Fatalf("existing namespace must be success, got: %v", err)
	}
	if len(api.createCalls) != 1 {
		t.Error("convergence must proceed past an existing namespace")
	}
}

func TestPlatformConvergeNamespaceFatalError(t *testing.T) {
	api := &fakePlatformAPI{nsErr: errors.New("connection refused")}
	s := NewPlatformStrategy(api, hclog.NewNullLogger())

	_, err := s.Converge(context.Background(), platformRequest())
	if err == nil {
		t.Fatal("expected namespace failure to surface")
	}
	if len(api.createCalls) != 0 {
		t.Error("resource create must not run after a failed namespace create")
	}
}

func TestPlatformConvergeUnhealthyReadbackIsStillSuccess(t *testing.T) {
	api := &fakePlatformAPI{describe: &deploy.State{Exists: true, Health: deploy.HealthUnhealthy, Message: "CrashLoopBackOff"}}
	s := NewPlatformStrategy(api, hclog.NewNullLogger())

	state, err := s.Converge(context.Background(), platformRequest())
	if err != nil {
		t.Fatalf("an unhealthy readback is not a convergence failure: %v", err)
	}
	if state.Health != deploy.HealthUnhealthy {
		t.Errorf("expected readback health passed through, got %s", state.Health)
	}
	if state.Message != "CrashLoopBackOff" {
		t.Errorf("platform status detail must pass through verbatim, got %q", state.Message)
	}
}

func TestForceRolloutMintsUniqueSuffix(t *testing.T) {
	api := &fakePlatformAPI{}
	s := NewPlatformStrategy(api, hclog.NewNullLogger())

	clock := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Millisecond)
		return clock
	}

	for i := 0; i < 3; i++ {
		if _, err := s.ForceRollout(context.Background(), platformRequest()); err != nil {
			t.Fatalf("rollout %d failed: %v", i, err)
		}
	}

	if len(api.createCalls) != 0 {
		t.Error("forced rollout must never attempt a create")
	}
	if len(api.updateCalls) != 3 {
		t.Fatalf("expected 3 updates, got %d", len(api.updateCalls))
	}

	seen := make(map[string]bool)
	for _, call := range api.updateCalls {
		if call.RevisionSuffix == "" {
			t.Fatal("forced rollout must carry a revision suffix")
		}
		if seen[call.RevisionSuffix] {
			t.Fatalf("revision suffix %q reused", call.RevisionSuffix)
		}
		seen[call.RevisionSuffix] = true
	}
}

func TestForceRolloutWithUnhealthyPriorState(t *testing.T) {
	// A rollout during an unhealthy prior revision is a normal update; the
	// unhealthy state must not block it.
	api := &fakePlatformAPI{describe: &deploy.State{Exists: true, Health: deploy.HealthUnhealthy}}
	s := NewPlatformStrategy(api, hclog.NewNullLogger())

	state, err := s.ForceRollout(context.Background(), platformRequest())
	if err != nil {
		t.Fatalf("rollout over unhealthy revision failed: %v", err)
	}
	if len(api.updateCalls) != 1 {
		t.Fatalf("expected one update, got %d", len(api.updateCalls))
	}
	if state.Health != deploy.HealthUnhealthy {
		t.Errorf("readback health must pass through, got %s", state.Health)
	}
}

func TestPlatformStatusListsRevisionsWhenResourceExists(t *testing.T) {
	api := &fakePlatformAPI{
		describe: &deploy.State{Exists: true, Health: deploy.HealthHealthy},
		revisions: []deploy.Revision{
			{Name: "antenna-lab--r2", TrafficWeight: 100},
			{Name: "antenna-lab--r1", TrafficWeight: 0},
		},
	}
	s := NewPlatformStrategy(api, hclog.NewNullLogger())

	report, err := s.Status(context.Background(), platformRequest())
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if len(report.Revisions) != 2 {
		t.Fatalf("expected 2 revisions, got %d", len(report.Revisions))
	}

	// All traffic sits on exactly one revision after a shift.
	total := 0
	for _, rev := range report.Revisions {
		total += rev.TrafficWeight
	}
	if total != 100 {
		t.Errorf("traffic weights must sum to 100, got %d", total)
	}
}

func TestPlatformStatusMissingResource(t *testing.T) {
	api := &fakePlatformAPI{describe: &deploy.State{Exists: false, Health: deploy.HealthUnknown}}
	s := NewPlatformStrategy(api, hclog.NewNullLogger())

	report, err := s.Status(context.Background(), platformRequest())
	if err != nil {
		t.Fatalf("a missing resource is a reportable state, not an error: %v", err)
	}
	if report.State.Exists {
		t.Error("expected Exists false")
	}
	if api.listCalls != 0 {
		t.Error("revision listing must be skipped for a missing resource")
	}
}

func TestPlatformConvergeRequiresPlatformTarget(t *testing.T) {
	s := NewPlatformStrategy(&fakePlatformAPI{}, hclog.NewNullLogger())

	req := platformRequest()
	req.Target = target.Target{Host: &target.HostTarget{Addr: "10.0.0.5:22", Process: "streamlit"}}

	if _, err := s.Converge(context.Background(), req); err == nil {
		t.Fatal("expected error for a host target")
	}
}
