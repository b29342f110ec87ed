package config

import (
	"github.com/skiffdeploy/skiff/pkg/artifact"
	"github.com/skiffdeploy/skiff/pkg/deploy"
	"github.com/skiffdeploy/skiff/pkg/target"
)

// Config is the root configuration structure of a skiff.hcl file.
type Config struct {
	// Project is the project name
	Project string `hcl:"project,attr"`

	// Apps contains application configurations
	Apps []*AppConfig `hcl:"app,block"`
}

// AppConfig describes one deployable application: how to build it, where to
// publish it, and exactly one place to run it.
type AppConfig struct {
	// Name is the application name (block label)
	Name string `hcl:"name,label"`

	// Command is the launch command for host deployments
	Command string `hcl:"command,optional"`

	// Build contains build configuration
	Build *BuildConfig `hcl:"build,block"`

	// Registry contains registry configuration
	Registry *RegistryConfig `hcl:"registry,block"`

	// Platform is the managed-platform deployment target (mutually
	// exclusive with Host)
	Platform *PlatformConfig `hcl:"platform,block"`

	// Host is the bare-host deployment target (mutually exclusive with
	// Platform)
	Host *HostConfig `hcl:"host,block"`

	// Resource is the desired resource configuration
	Resource *ResourceConfig `hcl:"resource,block"`
}

// BuildConfig describes the image build.
type BuildConfig struct {
	// Context is the build directory path (defaults to ".")
	Context string `hcl:"context,optional"`

	// Dockerfile path relative to the context (defaults to "Dockerfile")
	Dockerfile string `hcl:"dockerfile,optional"`

	// Args are additional build arguments
	Args map[string]string `hcl:"args,optional"`
}

// RegistryConfig describes where artifacts are published.
type RegistryConfig struct {
	// Host is the registry host (e.g., "registry.example.io")
	Host string `hcl:"host,attr"`

	// Repository is the repository name (defaults to the app name)
	Repository string `hcl:"repository,optional"`

	// Tag is the image tag (defaults to "latest")
	Tag string `hcl:"tag,optional"`

	// Username for the registry login
	Username string `hcl:"username,optional"`

	// Password for the registry login; use env("...") to keep it out of
	// the file
	Password string `hcl:"password,optional"`
}

// PlatformConfig is the managed-platform target.
type PlatformConfig struct {
	// APIURL is the platform API base URL
	APIURL string `hcl:"api_url,optional"`

	// Region the namespace lives in
	Region string `hcl:"region,attr"`

	// Namespace is the environment-level namespace
	Namespace string `hcl:"namespace,attr"`

	// Name is the application resource name (defaults to the app name)
	Name string `hcl:"name,optional"`
}

// HostConfig is the bare-host target.
type HostConfig struct {
	// Addr is the SSH address (host:port)
	Addr string `hcl:"addr,attr"`

	// User is the SSH user
	User string `hcl:"user,attr"`

	// KeyPath is the local path of the SSH private key
	KeyPath string `hcl:"key_path,optional"`

	// WorkDir is the remote application directory
	WorkDir string `hcl:"workdir,optional"`

	// Process is the command-line identity of the running instance
	Process string `hcl:"process,attr"`

	// Manifest is the remote dependency manifest path
	Manifest string `hcl:"manifest,optional"`

	// LogPath is the remote log sink for process output
	LogPath string `hcl:"log_path,optional"`
}

// ResourceConfig is the desired resource sizing and networking.
type ResourceConfig struct {
	// Port the application listens on; 0 means detect from the built image
	Port int `hcl:"port,optional"`

	// Ingress visibility: external or internal (defaults to external)
	Ingress string `hcl:"ingress,optional"`

	// CPU allocation in cores (defaults to 0.5)
	CPU float64 `hcl:"cpu,optional"`

	// Memory allocation (defaults to "1.0Gi")
	Memory string `hcl:"memory,optional"`

	// MinReplicas (defaults to 0)
	MinReplicas int `hcl:"min_replicas,optional"`

	// MaxReplicas (defaults to 2)
	MaxReplicas int `hcl:"max_replicas,optional"`
}

// GetApp returns an app configuration by name, or the only app when name is
// empty and exactly one is defined.
func (c *Config) GetApp(name string) *AppConfig {
	if name == "" && len(c.Apps) == 1 {
		return c.Apps[0]
	}
	for _, app := range c.Apps {
		if app.Name == name {
			return app
		}
	}
	return nil
}

// Target assembles the deployment target from the active variant.
func (a *AppConfig) Target() target.Target {
	var t target.Target
	if a.Platform != nil {
		name := a.Platform.Name
		if name == "" {
			name = a.Name
		}
		t.Platform = &target.PlatformTarget{
			Region:    a.Platform.Region,
			Namespace: a.Platform.Namespace,
			Name:      name,
		}
	}
	if a.Host != nil {
		t.Host = &target.HostTarget{
			Addr:     a.Host.Addr,
			User:     a.Host.User,
			WorkDir:  a.Host.WorkDir,
			Process:  a.Host.Process,
			Manifest: a.Host.Manifest,
			LogPath:  a.Host.LogPath,
		}
	}
	return t
}

// ArtifactRef assembles the artifact reference the app builds and deploys.
func (a *AppConfig) ArtifactRef() artifact.Reference {
	ref := artifact.Reference{Repository: a.Name, Tag: "latest"}
	if a.Registry != nil {
		ref.Registry = a.Registry.Host
		if a.Registry.Repository != "" {
			ref.Repository = a.Registry.Repository
		}
		if a.Registry.Tag != "" {
			ref.Tag = a.Registry.Tag
		}
	}
	return ref
}

// ResourceSpec assembles the desired spec with defaults applied.
func (a *AppConfig) ResourceSpec() deploy.Spec {
	spec := deploy.Spec{
		Ingress:     deploy.IngressExternal,
		CPU:         0.5,
		Memory:      "1.0Gi",
		MaxReplicas: 2,
	}
	if a.Resource == nil {
		return spec
	}
	if a.Resource.Port > 0 {
		spec.Port = a.Resource.Port
	}
	if a.Resource.Ingress != "" {
		spec.Ingress = a.Resource.Ingress
	}
	if a.Resource.CPU > 0 {
		spec.CPU = a.Resource.CPU
	}
	if a.Resource.Memory != "" {
		spec.Memory = a.Resource.Memory
	}
	if a.Resource.MinReplicas > 0 {
		spec.MinReplicas = a.Resource.MinReplicas
	}
	if a.Resource.MaxReplicas > 0 {
		spec.MaxReplicas = a.Resource.MaxReplicas
	}
	return spec
}
