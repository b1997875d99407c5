// Package client is a typed HTTP client for the coordinator API, shared by
// fleet-agent and fleetctl.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fleetdeploy/pkg/models"
)

// DefaultTimeout bounds a single API call
const DefaultTimeout = 10 * time.Second

// APIError is a non-2xx response from the coordinator
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("coordinator returned %d", e.StatusCode)
	}
	return fmt.Sprintf("coordinator returned %d: %s", e.StatusCode, e.Detail)
}

// IsNotFound reports whether err is a 404 from the coordinator
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client talks to one coordinator
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// New creates a client for the coordinator at endpoint, e.g. http://localhost:8000
func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Agents

func (c *Client) RegisterAgent(ctx context.Context, req models.RegisterAgentRequest) (*models.Agent, error) {
	var agent models.Agent
	if err := c.do(ctx, http.MethodPost, "/api/agents/register", req, &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

func (c *Client) ListAgents(ctx context.Context) ([]models.Agent, error) {
	var agents []models.Agent
	err := c.do(ctx, http.MethodGet, "/api/agents", nil, &agents)
	return agents, err
}

func (c *Client) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	var agent models.Agent
	if err := c.do(ctx, http.MethodGet, "/api/agents/"+url.PathEscape(id), nil, &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

func (c *Client) RenameAgent(ctx context.Context, id, name string) (*models.Agent, error) {
	var agent models.Agent
	req := models.UpdateAgentRequest{Name: &name}
	if err := c.do(ctx, http.MethodPut, "/api/agents/"+url.PathEscape(id), req, &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

func (c *Client) DeleteAgent(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/agents/"+url.PathEscape(id), nil, nil)
}

// Releases

func (c *Client) CreateRelease(ctx context.Context, githubURL string) (*models.Release, error) {
	var release models.Release
	req := models.CreateReleaseRequest{GitHubURL: githubURL}
	if err := c.do(ctx, http.MethodPost, "/api/releases", req, &release); err != nil {
		return nil, err
	}
	return &release, nil
}

func (c *Client) ListReleases(ctx context.Context) ([]models.Release, error) {
	var releases []models.Release
	err := c.do(ctx, http.MethodGet, "/api/releases", nil, &releases)
	return releases, err
}

func (c *Client) GetRelease(ctx context.Context, id string) (*models.Release, error) {
	var release models.Release
	if err := c.do(ctx, http.MethodGet, "/api/releases/"+url.PathEscape(id), nil, &release); err != nil {
		return nil, err
	}
	return &release, nil
}

func (c *Client) UpdateRelease(ctx context.Context, id string, req models.UpdateReleaseRequest) (*models.Release, error) {
	var release models.Release
	if err := c.do(ctx, http.MethodPut, "/api/releases/"+url.PathEscape(id), req, &release); err != nil {
		return nil, err
	}
	return &release, nil
}

func (c *Client) DeleteRelease(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/releases/"+url.PathEscape(id), nil, nil)
}

func (c *Client) ReleaseVersions(ctx context.Context, id string) ([]models.ReleaseVersion, error) {
	var versions []models.ReleaseVersion
	err := c.do(ctx, http.MethodGet, "/api/releases/"+url.PathEscape(id)+"/versions", nil, &versions)
	return versions, err
}

// Deployments

func (c *Client) CreateDeployment(ctx context.Context, req models.CreateDeploymentRequest) (*models.Deployment, error) {
	var d models.Deployment
	if err := c.do(ctx, http.MethodPost, "/api/deployments", req, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) ListDeployments(ctx context.Context, filter models.DeploymentFilter) ([]models.Deployment, error) {
	q := url.Values{}
	if filter.AgentID != "" {
		q.Set("agent_id", filter.AgentID)
	}
	if filter.Status != "" {
		q.Set("status", string(filter.Status))
	}
	path := "/api/deployments"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var deployments []models.Deployment
	err := c.do(ctx, http.MethodGet, path, nil, &deployments)
	return deployments, err
}

// DeploymentHistory returns the newest deployments; limit 0 uses the server default
func (c *Client) DeploymentHistory(ctx context.Context, limit int) ([]models.Deployment, error) {
	path := "/api/deployments/history"
	if limit != 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var deployments []models.Deployment
	err := c.do(ctx, http.MethodGet, path, nil, &deployments)
	return deployments, err
}

func (c *Client) GetDeployment(ctx context.Context, id string) (*models.Deployment, error) {
	var d models.Deployment
	if err := c.do(ctx, http.MethodGet, "/api/deployments/"+url.PathEscape(id), nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// ClaimDeployment claims the agent's oldest pending deployment. It returns
// nil, nil when nothing is pending.
func (c *Client) ClaimDeployment(ctx context.Context, agentID string) (*models.Deployment, error) {
	var d *models.Deployment
	if err := c.do(ctx, http.MethodGet, "/api/deployments/pending/"+url.PathEscape(agentID), nil, &d); err != nil {
		return nil, err
	}
	return d, nil
}

func (c *Client) CompleteDeployment(ctx context.Context, id string, req models.CompleteDeploymentRequest) (*models.CompleteDeploymentResponse, error) {
	var resp models.CompleteDeploymentResponse
	if err := c.do(ctx, http.MethodPost, "/api/deployments/"+url.PathEscape(id)+"/complete", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Settings

func (c *Client) TokenStatus(ctx context.Context) (*models.TokenStatus, error) {
	var status models.TokenStatus
	if err := c.do(ctx, http.MethodGet, "/api/settings/github-token", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) SetToken(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/api/settings/github-token", models.SetTokenRequest{Token: token}, nil)
}

func (c *Client) ClearToken(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/settings/github-token", nil, nil)
}

// System

func (c *Client) Health(ctx context.Context) (*models.HealthResponse, error) {
	var health models.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// Metrics returns the raw aggregator summary
func (c *Client) Metrics(ctx context.Context, pendingOnly bool) (json.RawMessage, error) {
	path := "/api/metrics"
	if pendingOnly {
		path += "/pending"
	}
	var raw json.RawMessage
	err := c.do(ctx, http.MethodGet, path, nil, &raw)
	return raw, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errBody models.ErrorResponse
		if data, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); readErr == nil {
			if json.Unmarshal(data, &errBody) == nil && errBody.Detail != "" {
				apiErr.Detail = errBody.Detail
			} else {
				apiErr.Detail = strings.TrimSpace(string(data))
			}
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}
