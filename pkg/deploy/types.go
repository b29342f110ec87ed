package deploy

import "time"

// Spec is the desired running configuration of a deployment target. It is
// always supplied by the operator; the convergence engine never infers it.
type Spec struct {
	// Port is the port the application listens on
	Port int `json:"port"`

	// Ingress is the visibility of the application (external or internal)
	Ingress string `json:"ingress"`

	// CPU is the CPU allocation in cores (e.g., 0.5)
	CPU float64 `json:"cpu"`

	// Memory is the memory allocation (e.g., "1.0Gi")
	Memory string `json:"memory"`

	// MinReplicas is the minimum replica count
	MinReplicas int `json:"min_replicas"`

	// MaxReplicas is the maximum replica count
	MaxReplicas int `json:"max_replicas"`
}

// State is the live, observed state of a deployment target after
// convergence. It is read-only output of the engine, never constructed by
// callers.
type State struct {
	// Exists reports whether the target resource is present at all
	Exists bool `json:"exists"`

	// Health is the observed health (healthy, starting, unhealthy, unknown)
	Health string `json:"health"`

	// Endpoint is the externally reachable address. Set if and only if
	// ingress is external and health is healthy.
	Endpoint string `json:"endpoint,omitempty"`

	// Message carries platform-provided status detail, verbatim
	Message string `json:"message,omitempty"`
}

// Revision is one entry in the append-only history of converged states for a
// platform target. Revisions are never deleted; traffic is reassigned.
type Revision struct {
	// Name is the platform-assigned revision name
	Name string `json:"name"`

	// TrafficWeight is the share of traffic routed to this revision (0-100)
	TrafficWeight int `json:"traffic_weight"`

	// CreatedAt is when the revision was materialized
	CreatedAt time.Time `json:"created_at"`
}

// Ingress visibility values
const (
	IngressExternal = "external"
	IngressInternal = "internal"
)

// Health values
const (
	HealthHealthy   = "healthy"
	HealthStarting  = "starting"
	HealthUnhealthy = "unhealthy"
	HealthUnknown   = "unknown"
)
