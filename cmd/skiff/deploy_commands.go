package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/urfave/cli/v2"

	"github.com/skiffdeploy/skiff/internal/builder"
	"github.com/skiffdeploy/skiff/internal/config"
	"github.com/skiffdeploy/skiff/internal/converge"
	"github.com/skiffdeploy/skiff/internal/tui"
	"github.com/skiffdeploy/skiff/pkg/deploy"
	"github.com/skiffdeploy/skiff/pkg/platform"
)

// waitPollInterval is how often the --wait loop re-probes the target.
const waitPollInterval = 5 * time.Second

func newBuilder(logger hclog.Logger) *builder.Docker {
	return builder.NewDocker(logger)
}

// buildInputFor assembles the build input from the app config.
func buildInputFor(app *config.AppConfig) *builder.BuildInput {
	in := &builder.BuildInput{Ref: app.ArtifactRef()}
	if app.Build != nil {
		in.ContextDir = app.Build.Context
		in.Dockerfile = app.Build.Dockerfile
		in.BuildArgs = app.Build.Args
	}
	return in
}

// registryAuthFor extracts registry credentials from the app config.
func registryAuthFor(app *config.AppConfig) builder.RegistryAuth {
	if app.Registry == nil {
		return builder.RegistryAuth{}
	}
	return builder.RegistryAuth{
		Username: app.Registry.Username,
		Password: app.Registry.Password,
	}
}

// deployParamsFor assembles the pipeline parameters for one deploy. Host
// targets run from a working directory on the host and consume no published
// artifact, so their deploys skip the build-and-publish stage entirely;
// --no-build is the operator's override for platform targets.
func deployParamsFor(app *config.AppConfig, noBuild bool) converge.DeployParams {
	params := converge.DeployParams{Request: requestFor(app)}
	if app.Host != nil || noBuild {
		return params
	}
	params.Build = buildInputFor(app)
	params.Registry = registryAuthFor(app)
	params.DetectPort = builder.DetectPort
	return params
}

// deployCommand runs the full pipeline: precheck, build, publish, converge.
func deployCommand() *cli.Command {
	return &cli.Command{
		Name:      "deploy",
		Usage:     "Build, publish and converge an app onto its target",
		ArgsUsage: "[app]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-build",
				Usage: "Skip build and publish, converge the already-published reference",
			},
			&cli.BoolFlag{
				Name:  "wait",
				Usage: "Block until the target reports healthy",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 5 * time.Minute,
				Usage: "How long --wait polls before giving up",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			_, app, err := loadApp(c)
			if err != nil {
				return err
			}

			logger := hclog.Default()
			pipeline, cleanup, err := pipelineFor(c, app, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			params := deployParamsFor(app, c.Bool("no-build"))

			state, err := pipeline.Deploy(c.Context, params)
			if err != nil {
				if c.Bool("json") {
					printJSON(failureOutput(err))
					return cli.Exit("", 1)
				}
				return err
			}

			if c.Bool("wait") && state.Health != deploy.HealthHealthy {
				state, err = waitHealthy(c, pipeline, params.Request, c.Duration("timeout"))
				if err != nil {
					if c.Bool("json") {
						printJSON(failureOutput(err))
						return cli.Exit("", 1)
					}
					return err
				}
			}

			if c.Bool("json") {
				return printJSON(map[string]interface{}{
					"success": true,
					"state":   state,
				})
			}

			fmt.Printf("Deployed %s to %s\n", params.Ref.String(), params.Target.Identity())
			printState(state)
			return nil
		},
	}
}

// waitHealthy polls the target until it reports healthy or the timeout
// expires. With a terminal attached it shows a spinner; under --json it polls
// silently.
func waitHealthy(c *cli.Context, pipeline *converge.Pipeline, req converge.Request, timeout time.Duration) (*deploy.State, error) {
	ctx, cancel := context.WithTimeout(c.Context, timeout)
	defer cancel()

	if c.Bool("json") {
		return pollUntilHealthy(ctx, pipeline, req)
	}

	var state *deploy.State
	var pollErr error
	err := tui.RunWhile(fmt.Sprintf("Waiting for %s to become healthy...", req.Target.Identity()), func() (string, bool) {
		state, pollErr = pollUntilHealthy(ctx, pipeline, req)
		if pollErr != nil {
			return pollErr.Error(), false
		}
		return fmt.Sprintf("%s is healthy", req.Target.Identity()), true
	})
	if err != nil {
		return nil, err
	}
	return state, pollErr
}

func pollUntilHealthy(ctx context.Context, pipeline *converge.Pipeline, req converge.Request) (*deploy.State, error) {
	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()

	for {
		report, err := pipeline.Status(ctx, req)
		if err == nil && report.State.Health == deploy.HealthHealthy {
			return &report.State, nil
		}
		if err != nil && isFatalPoll(err) {
			return nil, fmt.Errorf("target did not become healthy: %w", err)
		}

		select {
		case <-ctx.Done():
			if err != nil {
				return nil, fmt.Errorf("target did not become healthy: %w", err)
			}
			return nil, fmt.Errorf("target did not become healthy before the timeout (last health: %s)", report.State.Health)
		case <-ticker.C:
		}
	}
}

// isFatalPoll reports whether a status error cannot resolve by waiting. A 4xx
// from the platform (rejected session, bad request) stays a 4xx no matter how
// long we poll; transport errors and 5xx may be transient, so polling
// continues for those.
func isFatalPoll(err error) bool {
	var apiErr *platform.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
}

// buildCommand builds the image locally and optionally publishes it, without
// touching the deployment target.
func buildCommand() *cli.Command {
	return &cli.Command{
		Name:      "build",
		Usage:     "Build the app image locally",
		ArgsUsage: "[app]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "push",
				Usage: "Publish the image to the registry after building",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			_, app, err := loadApp(c)
			if err != nil {
				return err
			}

			logger := hclog.Default()
			docker := newBuilder(logger)
			in := buildInputFor(app)

			if err := docker.Build(c.Context, *in); err != nil {
				return deploy.Fail(deploy.StageBuild, deploy.KindBuildFailed, err)
			}

			var digest string
			if c.Bool("push") {
				result, err := docker.Push(c.Context, in.Ref, registryAuthFor(app))
				if err != nil {
					return deploy.Fail(deploy.StagePublish, deploy.KindPublishFailed, err)
				}
				digest = result.Digest
			}

			if c.Bool("json") {
				out := map[string]interface{}{
					"success": true,
					"image":   in.Ref.String(),
					"pushed":  c.Bool("push"),
				}
				if digest != "" {
					out["digest"] = digest
				}
				return printJSON(out)
			}

			fmt.Printf("Built %s\n", in.Ref.String())
			if c.Bool("push") {
				fmt.Printf("Pushed %s", in.Ref.String())
				if digest != "" {
					fmt.Printf(" (%s)", digest)
				}
				fmt.Println()
			}
			return nil
		},
	}
}
