// Package platform is the HTTP client for the managed container platform
// API. It exposes the declarative create/update/describe calls the
// convergence engine drives, and maps existence conflicts to a typed error
// the engine can branch on.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/skiffdeploy/skiff/pkg/deploy"
)

// Client is the HTTP client for the platform API.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *retryablehttp.Client
	logger      hclog.Logger
}

// NewClient creates a platform API client. Retries happen at the transport
// level only; a request that exhausts them surfaces as a single fatal error
// to the caller.
func NewClient(baseURL, accessToken string, logger hclog.Logger) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("platform URL cannot be empty")
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = nil // Disable default logging

	retryClient.HTTPClient.Timeout = 30 * time.Second

	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &Client{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		accessToken: accessToken,
		httpClient:  retryClient,
		logger:      logger,
	}, nil
}

// CheckAuth probes whether the caller holds a valid session. It returns nil
// when the platform confirms the session; an *APIError when the platform
// rejected it; any other error means the check could not be performed.
// GET /v1/session
func (c *Client) CheckAuth(ctx context.Context) error {
	return c.do(ctx, "GET", "/v1/session", nil, nil)
}

// CreateNamespace creates the environment-level namespace a target lives in.
// An existing namespace surfaces as an *APIError with IsConflict() true.
// PUT /v1/namespaces/{name}
func (c *Client) CreateNamespace(ctx context.Context, name, region string) error {
	if name == "" {
		return fmt.Errorf("namespace name cannot be empty")
	}

	c.logger.Debug("creating namespace", "namespace", name, "region", region)

	body := map[string]string{"region": region}
	path := fmt.Sprintf("/v1/namespaces/%s", url.PathEscape(name))
	if err := c.do(ctx, "PUT", path, body, nil); err != nil {
		return err
	}

	c.logger.Info("namespace created", "namespace", name)
	return nil
}

// CreateResource creates the application resource with the given image and
// spec. A colliding identity surfaces as an *APIError with IsConflict() true;
// the caller decides whether to fall back to update.
// POST /v1/namespaces/{ns}/apps
func (c *Client) CreateResource(ctx context.Context, req ResourceRequest) error {
	if req.Namespace == "" || req.Name == "" {
		return fmt.Errorf("resource request requires namespace and name")
	}

	c.logger.Debug("creating resource", "namespace", req.Namespace, "name", req.Name, "image", req.Image)

	path := fmt.Sprintf("/v1/namespaces/%s/apps", url.PathEscape(req.Namespace))
	if err := c.do(ctx, "POST", path, req, nil); err != nil {
		return err
	}

	c.logger.Info("resource created", "namespace", req.Namespace, "name", req.Name)
	return nil
}

// UpdateResource converges an existing resource to the given image and spec.
// When req.RevisionSuffix is set the platform materializes a new revision,
// routes 100% of traffic to it and zeroes prior weights.
// PUT /v1/namespaces/{ns}/apps/{name}
func (c *Client) UpdateResource(ctx context.Context, req ResourceRequest) error {
	if req.Namespace == "" || req.Name == "" {
		return fmt.Errorf("resource request requires namespace and name")
	}

	c.logger.Debug("updating resource",
		"namespace", req.Namespace,
		"name", req.Name,
		"image", req.Image,
		"revision_suffix", req.RevisionSuffix)

	path := fmt.Sprintf("/v1/namespaces/%s/apps/%s", url.PathEscape(req.Namespace), url.PathEscape(req.Name))
	if err := c.do(ctx, "PUT", path, req, nil); err != nil {
		return err
	}

	c.logger.Info("resource updated", "namespace", req.Namespace, "name", req.Name)
	return nil
}

// DescribeResource reads back the live state of a resource. A missing
// resource is not an error; it reports State.Exists false.
// GET /v1/namespaces/{ns}/apps/{name}
func (c *Client) DescribeResource(ctx context.Context, namespace, name string) (*deploy.State, error) {
	path := fmt.Sprintf("/v1/namespaces/%s/apps/%s", url.PathEscape(namespace), url.PathEscape(name))

	var resp describeResponse
	if err := c.do(ctx, "GET", path, nil, &resp); err != nil {
		if apiErr, ok := asAPIError(err); ok && apiErr.IsNotFound() {
			return &deploy.State{Exists: false, Health: deploy.HealthUnknown}, nil
		}
		return nil, err
	}

	state := &deploy.State{
		Exists:  true,
		Health:  resp.Health,
		Message: resp.Message,
	}
	if state.Health == "" {
		state.Health = deploy.HealthUnknown
	}
	// Endpoint is defined only for an externally reachable, healthy resource.
	if resp.Ingress == deploy.IngressExternal && state.Health == deploy.HealthHealthy {
		state.Endpoint = resp.Endpoint
	}
	return state, nil
}

// ListRevisions returns the ordered revision history of a resource with the
// current traffic weights.
// GET /v1/namespaces/{ns}/apps/{name}/revisions
func (c *Client) ListRevisions(ctx context.Context, namespace, name string) ([]deploy.Revision, error) {
	path := fmt.Sprintf("/v1/namespaces/%s/apps/%s/revisions", url.PathEscape(namespace), url.PathEscape(name))

	var resp listRevisionsResponse
	if err := c.do(ctx, "GET", path, nil, &resp); err != nil {
		return nil, err
	}

	revisions := make([]deploy.Revision, 0, len(resp.Revisions))
	for _, r := range resp.Revisions {
		revisions = append(revisions, deploy.Revision{
			Name:          r.Name,
			TrafficWeight: r.TrafficWeight,
			CreatedAt:     r.CreatedAt,
		})
	}
	return revisions, nil
}

// do performs one JSON request against the platform API. Non-2xx responses
// become an *APIError carrying the platform's error text verbatim.
func (c *Client) do(ctx context.Context, method, path string, reqBody, respBody interface{}) error {
	fullURL := c.baseURL + path

	var bodyReader io.Reader
	if reqBody != nil {
		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}

		var errResp errorResponse
		if jsonErr := json.Unmarshal(body, &errResp); jsonErr == nil {
			apiErr.Code = errResp.Code
			if errResp.Message != "" {
				apiErr.Message = errResp.Message
			} else {
				apiErr.Message = errResp.Error
			}
		}
		if apiErr.Message == "" {
			msg := string(body)
			if len(msg) > 200 {
				msg = msg[:200] + "..."
			}
			apiErr.Message = msg
		}
		return apiErr
	}

	if respBody != nil && len(body) > 0 {
		if err := json.Unmarshal(body, respBody); err != nil {
			return fmt.Errorf("failed to unmarshal response body: %w", err)
		}
	}

	return nil
}

// asAPIError unwraps an *APIError from an error chain.
func asAPIError(err error) (*APIError, bool) {
	apiErr, ok := err.(*APIError)
	return apiErr, ok
}
