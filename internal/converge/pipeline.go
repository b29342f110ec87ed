package converge

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/skiffdeploy/skiff/internal/builder"
	"github.com/skiffdeploy/skiff/pkg/artifact"
	"github.com/skiffdeploy/skiff/pkg/deploy"
)

// BuildPublisher produces and publishes an image artifact. *builder.Docker
// satisfies it.
type BuildPublisher interface {
	Build(ctx context.Context, in builder.BuildInput) error
	Push(ctx context.Context, ref artifact.Reference, auth builder.RegistryAuth) (*artifact.PushResult, error)
}

// DeployParams parameterizes one deployment invocation.
type DeployParams struct {
	Request

	// Build describes the image build. Nil skips the build-and-publish stage
	// (the strategy then updates an already-published reference).
	Build *builder.BuildInput

	// Registry carries credentials for the publish step
	Registry builder.RegistryAuth

	// DetectPort, when set, fills Spec.Port from the built image after the
	// publish step if the configuration left the port at zero
	DetectPort func(image string) (int, error)
}

// Pipeline runs the deployment stages in order: precondition check, build
// and publish, convergence, report. Each stage must complete before the next
// begins; a failure aborts immediately with no automatic retry.
type Pipeline struct {
	prober   AuthProber
	buildpub BuildPublisher
	strategy Strategy
	logger   hclog.Logger
}

// NewPipeline assembles a pipeline. buildpub may be nil when the caller never
// builds (status-only or update-only use).
func NewPipeline(prober AuthProber, buildpub BuildPublisher, strategy Strategy, logger hclog.Logger) *Pipeline {
	if logger == nil {
		logger = hclog.Default()
	}
	return &Pipeline{
		prober:   prober,
		buildpub: buildpub,
		strategy: strategy,
		logger:   logger,
	}
}

// Deploy runs the full pipeline. On an unauthenticated precheck it aborts
// before any build, push or remote mutation is attempted.
func (p *Pipeline) Deploy(ctx context.Context, params DeployParams) (*deploy.State, error) {
	p.logger.Info("starting deployment", "target", params.Target.Identity(), "image", params.Ref.String())

	status := CheckPrecondition(ctx, p.prober)
	if !status.Authenticated {
		return nil, deploy.Fail(deploy.StagePrecheck, deploy.KindUnauthenticated,
			errors.New(status.Reason))
	}

	if params.Build != nil {
		if p.buildpub == nil {
			return nil, deploy.Fail(deploy.StageBuild, deploy.KindBuildFailed,
				errors.New("no build toolchain configured"))
		}

		if err := p.buildpub.Build(ctx, *params.Build); err != nil {
			return nil, deploy.Fail(deploy.StageBuild, deploy.KindBuildFailed, err)
		}
		p.logger.Info("build completed", "image", params.Build.Ref.String())

		if _, err := p.buildpub.Push(ctx, params.Build.Ref, params.Registry); err != nil {
			return nil, deploy.Fail(deploy.StagePublish, deploy.KindPublishFailed, err)
		}
		p.logger.Info("publish completed", "image", params.Build.Ref.String())

		if params.Spec.Port == 0 && params.DetectPort != nil {
			port, err := params.DetectPort(params.Build.Ref.String())
			if err != nil {
				p.logger.Warn("port detection failed, continuing without a port", "error", err)
			} else if port > 0 {
				p.logger.Info("detected application port from image", "port", port)
				params.Spec.Port = port
			}
		}
	}

	state, err := p.strategy.Converge(ctx, params.Request)
	if err != nil {
		return nil, err
	}

	p.logger.Info("deployment converged",
		"target", params.Target.Identity(),
		"health", state.Health,
		"endpoint", state.Endpoint)
	return state, nil
}

// Status reports the target's current state. Read-only and repeatable.
func (p *Pipeline) Status(ctx context.Context, req Request) (*StatusReport, error) {
	return p.strategy.Status(ctx, req)
}

// ForceRollout mints a cache-busting revision on a platform target. Host
// targets have no revision model; re-deploying is their equivalent.
func (p *Pipeline) ForceRollout(ctx context.Context, req Request) (*deploy.State, error) {
	status := CheckPrecondition(ctx, p.prober)
	if !status.Authenticated {
		return nil, deploy.Fail(deploy.StagePrecheck, deploy.KindUnauthenticated,
			errors.New(status.Reason))
	}

	ps, ok := p.strategy.(*PlatformStrategy)
	if !ok {
		return nil, fmt.Errorf("forced rollout applies only to platform targets")
	}
	return ps.ForceRollout(ctx, req)
}
