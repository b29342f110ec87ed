package main

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/skiffdeploy/skiff/internal/config"
	"github.com/skiffdeploy/skiff/internal/converge"
	"github.com/skiffdeploy/skiff/pkg/deploy"
	"github.com/skiffdeploy/skiff/pkg/platform"
)

func TestBuildInputFor(t *testing.T) {
	app := &config.AppConfig{
		Name: "antenna-lab",
		Build: &config.BuildConfig{
			Context:    "./app",
			Dockerfile: "docker/Dockerfile",
			Args:       map[string]string{"PYTHON_VERSION": "3.12"},
		},
		Registry: &config.RegistryConfig{Host: "registry.example.io", Tag: "v3"},
	}

	in := buildInputFor(app)
	if in.ContextDir != "./app" || in.Dockerfile != "docker/Dockerfile" {
		t.Errorf("unexpected build input: %+v", in)
	}
	if in.Ref.String() != "registry.example.io/antenna-lab:v3" {
		t.Errorf("unexpected ref: %s", in.Ref.String())
	}
	if in.BuildArgs["PYTHON_VERSION"] != "3.12" {
		t.Error("build args lost")
	}
}

func TestBuildInputForWithoutBuildBlock(t *testing.T) {
	app := &config.AppConfig{Name: "antenna-lab"}
	in := buildInputFor(app)
	if in.ContextDir != "" || in.Dockerfile != "" {
		t.Errorf("missing build block must leave builder defaults, got %+v", in)
	}
	if in.Ref.Repository != "antenna-lab" {
		t.Errorf("ref must default to the app name, got %s", in.Ref.Repository)
	}
}

func TestFailureOutput(t *testing.T) {
	err := deploy.Fail(deploy.StageConverge, deploy.KindPortConflict, errors.New("port 8501 held"))

	out := failureOutput(err)
	if out["success"] != false {
		t.Error("expected success false")
	}
	if out["kind"] != string(deploy.KindPortConflict) {
		t.Errorf("unexpected kind: %v", out["kind"])
	}
	if out["stage"] != string(deploy.StageConverge) {
		t.Errorf("unexpected stage: %v", out["stage"])
	}
}

func TestDeployParamsForHostSkipsBuild(t *testing.T) {
	// A host deploy runs from the working directory on the host; there is no
	// artifact to build or publish, and typically no registry block at all.
	app := &config.AppConfig{
		Name:    "antenna-lab",
		Command: "streamlit run Home.py",
		Host: &config.HostConfig{
			Addr: "10.0.0.5:22", User: "deploy", Process: "streamlit run Home.py",
		},
	}

	params := deployParamsFor(app, false)
	if params.Build != nil {
		t.Error("host deploy must not carry a build stage")
	}
	if params.DetectPort != nil {
		t.Error("host deploy must not inspect a built image")
	}
}

func TestDeployParamsForPlatformBuildsByDefault(t *testing.T) {
	app := &config.AppConfig{
		Name:     "antenna-lab",
		Registry: &config.RegistryConfig{Host: "registry.example.io"},
		Platform: &config.PlatformConfig{Region: "westeurope", Namespace: "prod"},
	}

	params := deployParamsFor(app, false)
	if params.Build == nil {
		t.Fatal("platform deploy must build by default")
	}
	if params.DetectPort == nil {
		t.Error("platform deploy must wire port detection")
	}

	noBuild := deployParamsFor(app, true)
	if noBuild.Build != nil {
		t.Error("--no-build must skip the build stage")
	}
}

func TestSSHKeyPath(t *testing.T) {
	if got := sshKeyPath("/etc/keys/deploy"); got != "/etc/keys/deploy" {
		t.Errorf("absolute path altered: %s", got)
	}

	got := sshKeyPath("")
	if !strings.HasSuffix(got, "/.ssh/id_rsa") {
		t.Errorf("empty path must fall back to the conventional key, got %s", got)
	}
	if strings.HasPrefix(got, "~") {
		t.Errorf("fallback must be expanded, got %s", got)
	}

	got = sshKeyPath("~/.ssh/id_ed25519")
	if strings.HasPrefix(got, "~") {
		t.Errorf("~/ must expand to the home directory, got %s", got)
	}
	if !strings.HasSuffix(got, "/.ssh/id_ed25519") {
		t.Errorf("expansion changed the key name: %s", got)
	}
}

type okProber struct{}

func (okProber) CheckAuth(ctx context.Context) error { return nil }

// rejectedStrategy reports a rejected session on every status probe.
type rejectedStrategy struct {
	calls int
}

func (s *rejectedStrategy) Converge(ctx context.Context, req converge.Request) (*deploy.State, error) {
	return nil, errors.New("not used")
}

func (s *rejectedStrategy) Status(ctx context.Context, req converge.Request) (*converge.StatusReport, error) {
	s.calls++
	return nil, deploy.Fail(deploy.StageReport, deploy.KindRemoteFatal,
		&platform.APIError{StatusCode: 401, Message: "token expired"})
}

func TestPollAbortsOnRejectedSession(t *testing.T) {
	strategy := &rejectedStrategy{}
	pipeline := converge.NewPipeline(okProber{}, nil, strategy, hclog.NewNullLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	_, err := pollUntilHealthy(ctx, pipeline, converge.Request{})
	if err == nil {
		t.Fatal("expected rejected session to fail the wait")
	}
	// A 4xx does not resolve by waiting; the loop must give up on the first
	// probe rather than burning the whole window.
	if strategy.calls != 1 {
		t.Errorf("expected a single probe, got %d", strategy.calls)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("poll did not abort early, took %s", elapsed)
	}
}

func TestIsFatalPoll(t *testing.T) {
	rejected := deploy.Fail(deploy.StageReport, deploy.KindRemoteFatal,
		&platform.APIError{StatusCode: 403, Message: "forbidden"})
	if !isFatalPoll(rejected) {
		t.Error("4xx must abort the wait")
	}

	flaky := deploy.Fail(deploy.StageReport, deploy.KindRemoteFatal,
		&platform.APIError{StatusCode: 503, Message: "upstream unavailable"})
	if isFatalPoll(flaky) {
		t.Error("5xx may be transient, polling must continue")
	}

	if isFatalPoll(errors.New("dial tcp: i/o timeout")) {
		t.Error("transport errors may be transient, polling must continue")
	}
}

func TestRenderRevisions(t *testing.T) {
	out := renderRevisions([]deploy.Revision{
		{Name: "antenna-lab--r2", TrafficWeight: 100, CreatedAt: time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)},
		{Name: "antenna-lab--r1", TrafficWeight: 0},
	})
	if !strings.Contains(out, "antenna-lab--r2") || !strings.Contains(out, "100%") {
		t.Errorf("active revision missing from output:\n%s", out)
	}
	if !strings.Contains(out, "antenna-lab--r1") {
		t.Errorf("history must include zero-weight revisions:\n%s", out)
	}

	if out := renderRevisions(nil); !strings.Contains(out, "No revisions") {
		t.Errorf("empty history must say so, got %q", out)
	}
}

func TestFailureOutputUnclassified(t *testing.T) {
	out := failureOutput(errors.New("boom"))
	if out["success"] != false {
		t.Error("expected success false")
	}
	// Unclassified errors report the remote-fatal catch-all and no stage.
	if out["kind"] != string(deploy.KindRemoteFatal) {
		t.Errorf("unexpected kind: %v", out["kind"])
	}
	if _, ok := out["stage"]; ok {
		t.Error("unclassified error must carry no stage")
	}
}
