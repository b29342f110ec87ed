// Package target identifies where an application instance runs: either an
// application resource on a managed container platform, or a named process on
// a fixed remote host. Exactly one variant is active per deployment.
package target

import "fmt"

// Target identifies the place an application should run. Exactly one of
// Platform or Host must be set.
type Target struct {
	// Platform is the managed-platform variant (nil when deploying to a host)
	Platform *PlatformTarget `json:"platform,omitempty"`

	// Host is the bare-host variant (nil when deploying to a platform)
	Host *HostTarget `json:"host,omitempty"`
}

// PlatformTarget names an application resource on a managed container
// platform. Its identity (Namespace + Name) is stable across deployments; the
// convergence engine must never create a second resource with the same
// identity.
type PlatformTarget struct {
	// Region is the platform region the namespace lives in (e.g., "westeurope")
	Region string `json:"region"`

	// Namespace is the environment-level grouping the app belongs to
	Namespace string `json:"namespace"`

	// Name is the application resource name
	Name string `json:"name"`
}

// HostTarget names a single process on a remote Linux host reached over SSH.
type HostTarget struct {
	// Addr is the SSH address (host:port)
	Addr string `json:"addr"`

	// User is the SSH user
	User string `json:"user"`

	// WorkDir is the remote directory the application runs from
	WorkDir string `json:"workdir"`

	// Process is the command-line identity used to match the running
	// instance (e.g., "streamlit run Home.py")
	Process string `json:"process"`

	// Manifest is the remote path of the dependency manifest
	Manifest string `json:"manifest,omitempty"`

	// LogPath is the remote file process output is redirected to
	LogPath string `json:"log_path"`
}

// Validate enforces the exactly-one-variant rule and the fields each variant
// needs to form a stable identity.
func (t Target) Validate() error {
	switch {
	case t.Platform == nil && t.Host == nil:
		return fmt.Errorf("deployment target requires either a platform or a host variant")
	case t.Platform != nil && t.Host != nil:
		return fmt.Errorf("deployment target cannot be both a platform and a host")
	case t.Platform != nil:
		if t.Platform.Namespace == "" || t.Platform.Name == "" {
			return fmt.Errorf("platform target requires namespace and name")
		}
		if t.Platform.Region == "" {
			return fmt.Errorf("platform target requires a region")
		}
	case t.Host != nil:
		if t.Host.Addr == "" {
			return fmt.Errorf("host target requires an address")
		}
		if t.Host.Process == "" {
			return fmt.Errorf("host target requires a process identity")
		}
	}
	return nil
}

// Identity returns the stable identity string of the target, used for
// logging and for the operator-side serialization the engine itself does not
// provide.
func (t Target) Identity() string {
	if t.Platform != nil {
		return fmt.Sprintf("%s/%s", t.Platform.Namespace, t.Platform.Name)
	}
	if t.Host != nil {
		return fmt.Sprintf("%s@%s", t.Host.User, t.Host.Addr)
	}
	return ""
}
