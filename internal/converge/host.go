package converge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/skiffdeploy/skiff/pkg/deploy"
	"github.com/skiffdeploy/skiff/pkg/hostexec"
	"github.com/skiffdeploy/skiff/pkg/target"
)

// HostStrategy converges a single named process on a remote host. The host
// has no authoritative state store, so the full stop / refresh / start cycle
// runs on every deployment regardless of observed prior state: convergence is
// re-derived by attempting the stop unconditionally.
type HostStrategy struct {
	runner hostexec.Runner
	logger hclog.Logger
}

// NewHostStrategy creates the host convergence strategy over a command
// channel.
func NewHostStrategy(runner hostexec.Runner, logger hclog.Logger) *HostStrategy {
	if logger == nil {
		logger = hclog.Default()
	}
	return &HostStrategy{runner: runner, logger: logger}
}

// Converge runs the stop / install / start cycle. A previous instance that
// survives the stop and still holds the port is a fatal port conflict,
// surfaced rather than retried.
func (s *HostStrategy) Converge(ctx context.Context, req Request) (*deploy.State, error) {
	h := req.Target.Host
	if h == nil {
		return nil, fmt.Errorf("host strategy requires a host target")
	}
	if req.Command == "" {
		return nil, fmt.Errorf("host convergence requires a launch command")
	}

	if err := s.Stop(ctx, h.Process); err != nil {
		return nil, deploy.Fail(deploy.StageConverge, deploy.KindRemoteFatal,
			fmt.Errorf("stop failed: %w", err))
	}

	if h.Manifest != "" {
		if err := s.InstallDependencies(ctx, h.WorkDir, h.Manifest); err != nil {
			return nil, deploy.Fail(deploy.StageConverge, deploy.KindRemoteFatal,
				fmt.Errorf("dependency install failed: %w", err))
		}
	}

	if req.Spec.Port > 0 {
		busy, err := s.portInUse(ctx, req.Spec.Port)
		if err != nil {
			return nil, deploy.Fail(deploy.StageConverge, deploy.KindRemoteFatal,
				fmt.Errorf("port check failed: %w", err))
		}
		if busy {
			return nil, deploy.Fail(deploy.StageConverge, deploy.KindPortConflict,
				fmt.Errorf("port %d is still held by another process after stop", req.Spec.Port))
		}
	}

	if err := s.Start(ctx, h.WorkDir, req.Command, h.LogPath); err != nil {
		return nil, deploy.Fail(deploy.StageConverge, deploy.KindRemoteFatal,
			fmt.Errorf("start failed: %w", err))
	}

	state, err := s.observe(ctx, h, req.Spec)
	if err != nil {
		return nil, deploy.Fail(deploy.StageReport, deploy.KindRemoteFatal, err)
	}

	// A process that died right after the detached start shows up here as
	// absent. Surface the end of its log so the operator sees why.
	if !state.Exists {
		msg := "process exited immediately after start"
		if tail := s.tailLog(ctx, h.LogPath); tail != "" {
			msg = fmt.Sprintf("%s; last log lines:\n%s", msg, tail)
		}
		return nil, deploy.Fail(deploy.StageConverge, deploy.KindRemoteFatal, errors.New(msg))
	}
	return state, nil
}

// tailLog fetches the end of the remote log. Best effort, empty on any
// failure.
func (s *HostStrategy) tailLog(ctx context.Context, logPath string) string {
	if logPath == "" {
		return ""
	}
	result, err := s.runner.Run(ctx, fmt.Sprintf("tail -n 20 %s", shellQuote(logPath)))
	if err != nil || !result.Ok() {
		return ""
	}
	return strings.TrimSpace(result.Stdout)
}

// Status reads back process and port state. Read-only.
func (s *HostStrategy) Status(ctx context.Context, req Request) (*StatusReport, error) {
	h := req.Target.Host
	if h == nil {
		return nil, fmt.Errorf("host strategy requires a host target")
	}

	state, err := s.observe(ctx, h, req.Spec)
	if err != nil {
		return nil, deploy.Fail(deploy.StageReport, deploy.KindRemoteFatal, err)
	}
	return &StatusReport{State: *state}, nil
}

// Stop terminates the previous instance by command-line identity. No matching
// process is success: pkill exits 1 when nothing matched, and the stop is
// idempotent by design of the cycle.
func (s *HostStrategy) Stop(ctx context.Context, process string) error {
	result, err := s.runner.Run(ctx, fmt.Sprintf("pkill -f %s", shellQuote(process)))
	if err != nil {
		return err
	}
	switch result.ExitCode {
	case 0:
		s.logger.Info("stopped previous instance", "process", process)
		return nil
	case 1:
		s.logger.Debug("no previous instance running", "process", process)
		return nil
	default:
		return fmt.Errorf("pkill exited %d: %s", result.ExitCode, result.Stderr)
	}
}

// InstallDependencies refreshes the application's dependencies from its
// manifest. Re-installs of already-satisfied dependencies are no-ops on the
// package manager's side.
func (s *HostStrategy) InstallDependencies(ctx context.Context, workDir, manifest string) error {
	cmd := fmt.Sprintf("cd %s && python3 -m pip install --disable-pip-version-check -q -r %s",
		shellQuote(workDir), shellQuote(manifest))

	s.logger.Info("installing dependencies", "manifest", manifest)
	result, err := s.runner.Run(ctx, cmd)
	if err != nil {
		return err
	}
	if !result.Ok() {
		return fmt.Errorf("pip exited %d: %s", result.ExitCode, strings.TrimSpace(result.Stderr))
	}
	return nil
}

// Start launches the new instance detached from the SSH session, with output
// redirected to the log sink. The session closes immediately; nohup keeps the
// process alive.
func (s *HostStrategy) Start(ctx context.Context, workDir, command, logPath string) error {
	if logPath == "" {
		logPath = "/dev/null"
	}
	cmd := fmt.Sprintf("cd %s && nohup %s >> %s 2>&1 < /dev/null & echo started",
		shellQuote(workDir), command, shellQuote(logPath))

	s.logger.Info("starting instance", "command", command, "log", logPath)
	result, err := s.runner.Run(ctx, cmd)
	if err != nil {
		return err
	}
	if !result.Ok() {
		return fmt.Errorf("launch exited %d: %s", result.ExitCode, strings.TrimSpace(result.Stderr))
	}
	return nil
}

// observe derives the target's state from process and port probes.
func (s *HostStrategy) observe(ctx context.Context, h *target.HostTarget, spec deploy.Spec) (*deploy.State, error) {
	running, err := s.processRunning(ctx, h.Process)
	if err != nil {
		return nil, err
	}
	if !running {
		return &deploy.State{Exists: false, Health: deploy.HealthUnknown}, nil
	}

	state := &deploy.State{Exists: true, Health: deploy.HealthStarting}

	if spec.Port > 0 {
		listening, err := s.portInUse(ctx, spec.Port)
		if err != nil {
			return nil, err
		}
		if listening {
			state.Health = deploy.HealthHealthy
			if spec.Ingress == deploy.IngressExternal {
				state.Endpoint = fmt.Sprintf("http://%s:%d", hostOf(h.Addr), spec.Port)
			}
		}
	}
	return state, nil
}

// processRunning probes for the process by command-line identity.
func (s *HostStrategy) processRunning(ctx context.Context, process string) (bool, error) {
	result, err := s.runner.Run(ctx, fmt.Sprintf("pgrep -f %s", shellQuote(process)))
	if err != nil {
		return false, err
	}
	switch result.ExitCode {
	case 0:
		return true, nil
	case 1:
		return false, nil
	default:
		return false, fmt.Errorf("pgrep exited %d: %s", result.ExitCode, result.Stderr)
	}
}

// portInUse probes whether anything is listening on the port.
func (s *HostStrategy) portInUse(ctx context.Context, port int) (bool, error) {
	result, err := s.runner.Run(ctx, fmt.Sprintf("ss -ltnH 'sport = :%d'", port))
	if err != nil {
		return false, err
	}
	if !result.Ok() {
		return false, fmt.Errorf("ss exited %d: %s", result.ExitCode, result.Stderr)
	}
	return strings.TrimSpace(result.Stdout) != "", nil
}

// hostOf strips the SSH port from an address.
func hostOf(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// shellQuote wraps a string in single quotes for the remote shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
