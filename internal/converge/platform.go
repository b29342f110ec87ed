package converge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/skiffdeploy/skiff/pkg/deploy"
	"github.com/skiffdeploy/skiff/pkg/platform"
)

// PlatformAPI is the slice of the managed-platform API the strategy drives.
// *platform.Client satisfies it.
type PlatformAPI interface {
	CreateNamespace(ctx context.Context, name, region string) error
	CreateResource(ctx context.Context, req platform.ResourceRequest) error
	UpdateResource(ctx context.Context, req platform.ResourceRequest) error
	DescribeResource(ctx context.Context, namespace, name string) (*deploy.State, error)
	ListRevisions(ctx context.Context, namespace, name string) ([]deploy.Revision, error)
}

// PlatformStrategy converges an application resource on a managed container
// platform through idempotent create-or-update.
type PlatformStrategy struct {
	api    PlatformAPI
	logger hclog.Logger

	// now stamps forced-rollout revision suffixes; overridable in tests
	now func() time.Time
}

// NewPlatformStrategy creates the managed-platform convergence strategy.
func NewPlatformStrategy(api PlatformAPI, logger hclog.Logger) *PlatformStrategy {
	if logger == nil {
		logger = hclog.Default()
	}
	return &PlatformStrategy{api: api, logger: logger, now: time.Now}
}

// Converge applies the create-then-fallback-to-update sequence. The
// create-vs-update branch is decided solely by the conflict signal from the
// create attempt itself, never by a separate existence probe, so there is no
// check-then-act window.
func (s *PlatformStrategy) Converge(ctx context.Context, req Request) (*deploy.State, error) {
	t := req.Target.Platform
	if t == nil {
		return nil, fmt.Errorf("platform strategy requires a platform target")
	}

	// Namespace create is idempotent: an existing namespace is success.
	if err := s.api.CreateNamespace(ctx, t.Namespace, t.Region); err != nil {
		if !isConflict(err) {
			return nil, deploy.Fail(deploy.StageConverge, deploy.KindRemoteFatal,
				fmt.Errorf("namespace create failed: %w", err))
		}
		s.logger.Debug("namespace already exists", "namespace", t.Namespace)
	}

	resourceReq := platform.ResourceRequest{
		Namespace: t.Namespace,
		Name:      t.Name,
		Image:     req.Ref.String(),
		Spec:      req.Spec,
	}

	if err := s.api.CreateResource(ctx, resourceReq); err != nil {
		if !isConflict(err) {
			// Quota, validation, network: fatal, no update fallback.
			return nil, deploy.Fail(deploy.StageConverge, deploy.KindRemoteFatal,
				fmt.Errorf("resource create failed: %w", err))
		}

		s.logger.Info("resource exists, updating instead",
			"namespace", t.Namespace, "name", t.Name)

		if err := s.api.UpdateResource(ctx, resourceReq); err != nil {
			return nil, deploy.Fail(deploy.StageConverge, deploy.KindRemoteFatal,
				fmt.Errorf("resource update failed: %w", err))
		}
	} else {
		s.logger.Info("resource created", "namespace", t.Namespace, "name", t.Name)
	}

	// Read back. A resource that is not yet healthy is still a successful
	// convergence; the caller polls Status for confirmation.
	state, err := s.api.DescribeResource(ctx, t.Namespace, t.Name)
	if err != nil {
		return nil, deploy.Fail(deploy.StageReport, deploy.KindRemoteFatal,
			fmt.Errorf("resource describe failed: %w", err))
	}
	return state, nil
}

// ForceRollout issues an update carrying a never-reused revision suffix,
// forcing the platform to materialize a new revision and pull the artifact
// fresh even when the tag is unchanged. The platform shifts all traffic to
// the new revision; prior revisions stay in the history for manual rollback.
func (s *PlatformStrategy) ForceRollout(ctx context.Context, req Request) (*deploy.State, error) {
	t := req.Target.Platform
	if t == nil {
		return nil, fmt.Errorf("forced rollout requires a platform target")
	}

	suffix := fmt.Sprintf("r%d", s.now().UnixNano())
	s.logger.Info("forcing rollout", "namespace", t.Namespace, "name", t.Name, "suffix", suffix)

	resourceReq := platform.ResourceRequest{
		Namespace:      t.Namespace,
		Name:           t.Name,
		Image:          req.Ref.String(),
		Spec:           req.Spec,
		RevisionSuffix: suffix,
	}

	if err := s.api.UpdateResource(ctx, resourceReq); err != nil {
		return nil, deploy.Fail(deploy.StageConverge, deploy.KindRemoteFatal,
			fmt.Errorf("forced rollout failed: %w", err))
	}

	state, err := s.api.DescribeResource(ctx, t.Namespace, t.Name)
	if err != nil {
		return nil, deploy.Fail(deploy.StageReport, deploy.KindRemoteFatal,
			fmt.Errorf("resource describe failed: %w", err))
	}
	return state, nil
}

// Status returns the live state and the revision history with traffic
// weights.
func (s *PlatformStrategy) Status(ctx context.Context, req Request) (*StatusReport, error) {
	t := req.Target.Platform
	if t == nil {
		return nil, fmt.Errorf("platform strategy requires a platform target")
	}

	state, err := s.api.DescribeResource(ctx, t.Namespace, t.Name)
	if err != nil {
		return nil, deploy.Fail(deploy.StageReport, deploy.KindRemoteFatal, err)
	}

	report := &StatusReport{State: *state}
	if state.Exists {
		revisions, err := s.api.ListRevisions(ctx, t.Namespace, t.Name)
		if err != nil {
			return nil, deploy.Fail(deploy.StageReport, deploy.KindRemoteFatal, err)
		}
		report.Revisions = revisions
	}
	return report, nil
}

// isConflict reports whether the API call failed because the resource
// already exists.
func isConflict(err error) bool {
	var apiErr *platform.APIError
	return errors.As(err, &apiErr) && apiErr.IsConflict()
}
