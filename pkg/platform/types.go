package platform

import (
	"fmt"
	"time"

	"github.com/skiffdeploy/skiff/pkg/deploy"
)

// ResourceRequest carries the desired configuration for a create or update of
// an application resource.
type ResourceRequest struct {
	// Namespace is the environment-level namespace the resource lives in
	Namespace string `json:"namespace"`

	// Name is the application resource name
	Name string `json:"name"`

	// Image is the full artifact reference (registry/repository:tag)
	Image string `json:"image"`

	// Spec is the desired resource sizing and networking
	Spec deploy.Spec `json:"spec"`

	// RevisionSuffix, when set on an update, forces the platform to
	// materialize a new revision and pull the artifact fresh even if the tag
	// is unchanged. Never reused across updates.
	RevisionSuffix string `json:"revision_suffix,omitempty"`
}

// APIError is a non-2xx response from the platform API. The platform's error
// text is preserved verbatim for the operator.
type APIError struct {
	// StatusCode is the HTTP status of the response
	StatusCode int

	// Code is the platform error code, when the body carried one
	// (e.g., "AlreadyExists", "QuotaExceeded")
	Code string

	// Message is the platform error message, verbatim
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("platform returned %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("platform returned %d: %s", e.StatusCode, e.Message)
}

// IsConflict reports whether the response was an existence conflict, the only
// create failure the convergence engine absorbs.
func (e *APIError) IsConflict() bool {
	return e.StatusCode == 409 || e.Code == "AlreadyExists"
}

// IsNotFound reports whether the resource does not exist.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == 404 || e.Code == "NotFound"
}

// IsAuthRejected reports whether the platform rejected the caller's session.
func (e *APIError) IsAuthRejected() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

// describeResponse is the wire form of a DescribeResource call.
type describeResponse struct {
	Name     string `json:"name"`
	Health   string `json:"health"`
	Endpoint string `json:"endpoint,omitempty"`
	Ingress  string `json:"ingress"`
	Message  string `json:"message,omitempty"`
}

// revisionEntry is the wire form of one revision in a ListRevisions response.
type revisionEntry struct {
	Name          string    `json:"name"`
	TrafficWeight int       `json:"traffic_weight"`
	CreatedAt     time.Time `json:"created_at"`
}

type listRevisionsResponse struct {
	Revisions []revisionEntry `json:"revisions"`
}

type errorResponse struct {
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}
