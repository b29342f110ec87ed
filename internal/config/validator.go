package config

import (
	"fmt"
	"regexp"

	"github.com/skiffdeploy/skiff/pkg/deploy"
)

var nameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

// Validate validates a configuration and returns an error if invalid.
func Validate(config *Config) error {
	if config == nil {
		return fmt.Errorf("configuration is nil")
	}

	if config.Project == "" {
		return fmt.Errorf("project name is required")
	}
	if !nameRe.MatchString(config.Project) {
		return fmt.Errorf("project name must contain only alphanumeric characters, hyphens, and underscores")
	}

	if len(config.Apps) == 0 {
		return fmt.Errorf("at least one app must be defined")
	}

	seen := make(map[string]bool)
	for i, app := range config.Apps {
		if err := validateApp(app, i); err != nil {
			return fmt.Errorf("app %q validation failed: %w", app.Name, err)
		}
		if seen[app.Name] {
			return fmt.Errorf("duplicate app name: %s", app.Name)
		}
		seen[app.Name] = true
	}

	return nil
}

func validateApp(app *AppConfig, index int) error {
	if app.Name == "" {
		return fmt.Errorf("app name is required (app at index %d)", index)
	}
	if !nameRe.MatchString(app.Name) {
		return fmt.Errorf("app name must contain only alphanumeric characters, hyphens, and underscores")
	}

	// Exactly one deployment target per app. The target's identity must be
	// unambiguous across repeated deployments.
	if app.Platform == nil && app.Host == nil {
		return fmt.Errorf("app requires either a platform or a host block")
	}
	if app.Platform != nil && app.Host != nil {
		return fmt.Errorf("app cannot have both a platform and a host block")
	}

	if app.Platform != nil {
		if app.Platform.Region == "" {
			return fmt.Errorf("platform block requires region")
		}
		if app.Platform.Namespace == "" {
			return fmt.Errorf("platform block requires namespace")
		}
	}

	if app.Host != nil {
		if app.Host.Addr == "" {
			return fmt.Errorf("host block requires addr")
		}
		if app.Host.User == "" {
			return fmt.Errorf("host block requires user")
		}
		if app.Host.Process == "" {
			return fmt.Errorf("host block requires process")
		}
		if app.Command == "" {
			return fmt.Errorf("host deployment requires a command")
		}
	}

	if app.Resource != nil {
		if err := validateResource(app.Resource); err != nil {
			return err
		}
	}

	return nil
}

func validateResource(r *ResourceConfig) error {
	if r.Port < 0 || r.Port > 65535 {
		return fmt.Errorf("resource port %d out of range", r.Port)
	}
	if r.Ingress != "" && r.Ingress != deploy.IngressExternal && r.Ingress != deploy.IngressInternal {
		return fmt.Errorf("resource ingress must be %q or %q", deploy.IngressExternal, deploy.IngressInternal)
	}
	if r.CPU < 0 {
		return fmt.Errorf("resource cpu cannot be negative")
	}
	if r.MinReplicas < 0 {
		return fmt.Errorf("min_replicas cannot be negative")
	}
	if r.MaxReplicas > 0 && r.MinReplicas > r.MaxReplicas {
		return fmt.Errorf("min_replicas %d exceeds max_replicas %d", r.MinReplicas, r.MaxReplicas)
	}
	return nil
}
