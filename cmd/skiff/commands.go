package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/urfave/cli/v2"

	"github.com/skiffdeploy/skiff/internal/config"
	"github.com/skiffdeploy/skiff/internal/converge"
	"github.com/skiffdeploy/skiff/pkg/deploy"
	"github.com/skiffdeploy/skiff/pkg/hostexec"
	"github.com/skiffdeploy/skiff/pkg/platform"
)

// loadApp loads the config file and resolves the app named by the first
// positional argument. With a single app defined, the argument is optional.
func loadApp(c *cli.Context) (*config.Config, *config.AppConfig, error) {
	cfg, err := config.LoadFile(c.String("config"))
	if err != nil {
		return nil, nil, err
	}

	name := c.Args().First()
	app := cfg.GetApp(name)
	if app == nil {
		if name == "" {
			return nil, nil, fmt.Errorf("multiple apps defined, specify one: skiff %s <app>", c.Command.Name)
		}
		return nil, nil, fmt.Errorf("app %q not found in %s", name, c.String("config"))
	}
	return cfg, app, nil
}

// pipelineFor assembles the convergence pipeline for the app's target
// variant. The returned cleanup closes any transport the assembly opened.
func pipelineFor(c *cli.Context, app *config.AppConfig, logger hclog.Logger) (*converge.Pipeline, func(), error) {
	cleanup := func() {}

	if app.Platform != nil {
		apiURL := app.Platform.APIURL
		if c.IsSet("api-url") || apiURL == "" {
			apiURL = c.String("api-url")
		}

		client, err := platform.NewClient(apiURL, c.String("token"), logger)
		if err != nil {
			return nil, nil, err
		}

		strategy := converge.NewPlatformStrategy(client, logger)
		return converge.NewPipeline(client, newBuilder(logger), strategy, logger), cleanup, nil
	}

	runner := hostexec.NewSSHRunner(hostexec.SSHConfig{
		Addr:    app.Host.Addr,
		User:    app.Host.User,
		KeyPath: sshKeyPath(app.Host.KeyPath),
	}, logger)
	cleanup = func() { runner.Close() }

	strategy := converge.NewHostStrategy(runner, logger)
	return converge.NewPipeline(runner, newBuilder(logger), strategy, logger), cleanup, nil
}

// sshKeyPath resolves the configured private key path: empty falls back to
// the conventional default, and a leading ~/ expands to the home directory.
func sshKeyPath(path string) string {
	if path == "" {
		path = "~/.ssh/id_rsa"
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	return path
}

// requestFor assembles the convergence request from the app config.
func requestFor(app *config.AppConfig) converge.Request {
	return converge.Request{
		Target:  app.Target(),
		Ref:     app.ArtifactRef(),
		Spec:    app.ResourceSpec(),
		Command: app.Command,
	}
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// printState renders a deployment state for humans.
func printState(state *deploy.State) {
	if !state.Exists {
		fmt.Println("Resource does not exist")
		return
	}

	fmt.Printf("Health:   %s\n", state.Health)
	if state.Endpoint != "" {
		fmt.Printf("Endpoint: %s\n", state.Endpoint)
	}
	if state.Message != "" {
		fmt.Printf("Message:  %s\n", state.Message)
	}
}

// failureOutput shapes a classified failure for --json consumers.
func failureOutput(err error) map[string]interface{} {
	out := map[string]interface{}{
		"success": false,
		"error":   err.Error(),
	}
	if kind := deploy.FailureKind(err); kind != "" {
		out["kind"] = string(kind)
	}
	if stage := deploy.FailureStage(err); stage != "" {
		out["stage"] = string(stage)
	}
	return out
}
