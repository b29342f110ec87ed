// Package builder drives the external container build toolchain and the
// registry push. It is the only place a new artifact reference comes into
// existence; every invocation performs a full build and does not deduplicate.
package builder

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/skiffdeploy/skiff/pkg/artifact"
)

// Docker shells out to the docker CLI for build, tag and push.
type Docker struct {
	logger hclog.Logger
}

// NewDocker creates a builder using the local docker CLI.
func NewDocker(logger hclog.Logger) *Docker {
	if logger == nil {
		logger = hclog.Default()
	}
	return &Docker{logger: logger}
}

// BuildInput describes one image build.
type BuildInput struct {
	// ContextDir is the build context path
	ContextDir string

	// Dockerfile is the Dockerfile path relative to the context
	// (defaults to "Dockerfile")
	Dockerfile string

	// Ref is the reference the image is tagged with
	Ref artifact.Reference

	// BuildArgs are additional --build-arg values
	BuildArgs map[string]string
}

// RegistryAuth carries the registry credentials for a push.
type RegistryAuth struct {
	Username string
	Password string
}

// Build produces an image from the build context. A non-zero build outcome is
// returned as an error with the toolchain's stderr attached; the caller must
// not attempt a publish after a failed build.
func (d *Docker) Build(ctx context.Context, in BuildInput) error {
	if err := in.Ref.Validate(); err != nil {
		return err
	}

	dockerfile := in.Dockerfile
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}
	contextDir := in.ContextDir
	if contextDir == "" {
		contextDir = "."
	}

	image := in.Ref.String()
	d.logger.Info("starting docker build", "image", image, "context", contextDir)

	args := []string{"build", ".", "-f", dockerfile, "-t", image}
	for key, value := range in.BuildArgs {
		args = append(args, "--build-arg", fmt.Sprintf("%s=%s", key, value))
	}

	cmd := exec.CommandContext(ctx, "docker", args...)
	cmd.Dir = contextDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			d.logger.Error("docker build failed", "error", err, "stderr", stderr.String())
			return fmt.Errorf("docker build failed: %w\nstderr: %s", err, stderr.String())
		}
		return fmt.Errorf("docker build failed: %w", err)
	}

	d.logger.Info("docker build completed", "image", image)
	return nil
}

// Push publishes the built image under its reference. On failure the
// previously-published reference, if any, remains the active one; this stage
// never mutates the remote target.
func (d *Docker) Push(ctx context.Context, ref artifact.Reference, auth RegistryAuth) (*artifact.PushResult, error) {
	if ref.Registry == "" {
		return nil, fmt.Errorf("push requires a registry host in the artifact reference")
	}

	image := ref.String()

	if auth.Username != "" {
		d.logger.Debug("authenticating with registry", "registry", ref.Registry)
		loginCmd := exec.CommandContext(ctx, "docker", "login", ref.Registry,
			"-u", auth.Username,
			"--password-stdin")
		// Password goes via stdin so it never appears in the process list
		loginCmd.Stdin = strings.NewReader(auth.Password)

		if output, err := loginCmd.CombinedOutput(); err != nil {
			d.logger.Error("docker login failed", "error", err, "output", string(output))
			return nil, fmt.Errorf("docker login failed: %w (output: %s)", err, string(output))
		}
	}

	d.logger.Info("pushing image", "image", image)
	pushCmd := exec.CommandContext(ctx, "docker", "push", image)
	output, err := pushCmd.CombinedOutput()
	if err != nil {
		d.logger.Error("docker push failed", "error", err, "output", string(output))
		return nil, fmt.Errorf("docker push failed: %w (output: %s)", err, string(output))
	}

	digest := extractDigest(string(output))
	d.logger.Info("docker push completed", "image", image, "digest", digest)

	return &artifact.PushResult{
		Ref:      ref,
		Digest:   digest,
		PushedAt: time.Now(),
	}, nil
}

// extractDigest pulls the sha256 digest out of docker push output.
func extractDigest(output string) string {
	for _, line := range strings.Split(output, "\n") {
		idx := strings.Index(line, "sha256:")
		if idx < 0 {
			continue
		}
		digestPart := line[idx:]
		// "sha256:" plus 64 hex chars
		if len(digestPart) >= 71 {
			return digestPart[:71]
		}
		return strings.Fields(digestPart)[0]
	}
	return ""
}
