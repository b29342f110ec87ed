package artifact

import (
	"fmt"
	"strings"
	"time"
)

// Reference is a fully-qualified pointer to a container image: registry host,
// repository name and tag. A Reference is immutable once published; a new
// build always produces a new Reference value even when the tag string is
// reused.
type Reference struct {
	// Registry is the registry host (e.g., "registry.example.io")
	Registry string `json:"registry"`

	// Repository is the repository name within the registry (e.g., "antenna-lab")
	Repository string `json:"repository"`

	// Tag is the image tag (e.g., "v1", "latest")
	Tag string `json:"tag"`
}

// String returns the complete image reference (registry/repository:tag).
func (r Reference) String() string {
	tag := r.Tag
	if tag == "" {
		tag = "latest"
	}
	if r.Registry == "" {
		return fmt.Sprintf("%s:%s", r.Repository, tag)
	}
	return fmt.Sprintf("%s/%s:%s", r.Registry, r.Repository, tag)
}

// Validate checks that the reference names a pushable image.
func (r Reference) Validate() error {
	if r.Repository == "" {
		return fmt.Errorf("artifact reference requires a repository name")
	}
	if strings.ContainsAny(r.Repository, " \t") {
		return fmt.Errorf("repository name %q contains whitespace", r.Repository)
	}
	return nil
}

// Parse splits a full image string (registry/repository:tag) into a Reference.
// The registry part is recognized by containing a dot or a port, matching how
// container tools distinguish registry hosts from namespace prefixes.
func Parse(image string) (Reference, error) {
	if image == "" {
		return Reference{}, fmt.Errorf("image reference cannot be empty")
	}

	ref := Reference{Tag: "latest"}
	rest := image

	if idx := strings.IndexByte(rest, '/'); idx > 0 {
		head := rest[:idx]
		if strings.Contains(head, ".") || strings.Contains(head, ":") {
			ref.Registry = head
			rest = rest[idx+1:]
		}
	}

	if idx := strings.LastIndexByte(rest, ':'); idx > 0 {
		ref.Repository = rest[:idx]
		ref.Tag = rest[idx+1:]
	} else {
		ref.Repository = rest
	}

	if err := ref.Validate(); err != nil {
		return Reference{}, err
	}
	return ref, nil
}

// PushResult describes a completed publish of a Reference to its registry.
type PushResult struct {
	// Ref is the reference the image was pushed under
	Ref Reference `json:"ref"`

	// Digest is the SHA256 digest reported by the registry
	Digest string `json:"digest,omitempty"`

	// PushedAt is when the push completed
	PushedAt time.Time `json:"pushed_at"`
}
