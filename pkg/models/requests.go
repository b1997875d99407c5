package models

import "time"

// RegisterAgentRequest is sent by agents on startup and as a heartbeat
type RegisterAgentRequest struct {
	Name      string   `json:"name"`
	Platform  Platform `json:"platform"`
	Version   string   `json:"version"`
	IPAddress string   `json:"ip_address,omitempty"`
}

// UpdateAgentRequest renames an agent
type UpdateAgentRequest struct {
	Name *string `json:"name,omitempty"`
}

// CreateReleaseRequest registers a release from a GitHub repository URL
type CreateReleaseRequest struct {
	GitHubURL string `json:"github_url"`
}

// UpdateReleaseRequest edits the display fields of a release
type UpdateReleaseRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	DownloadURL *string `json:"download_url,omitempty"`
}

// CreateDeploymentRequest assigns releases to an agent
type CreateDeploymentRequest struct {
	AgentID         string   `json:"agent_id"`
	ReleaseIDs      []string `json:"release_ids"`
	ReleaseVersions []string `json:"release_versions,omitempty"`
}

// CompleteDeploymentRequest is the agent's completion report
type CompleteDeploymentRequest struct {
	Status       DeploymentStatus `json:"status"`
	ErrorMessage string           `json:"error_message,omitempty"`
}

// CompleteDeploymentResponse acknowledges a completion report
type CompleteDeploymentResponse struct {
	Message      string           `json:"message"`
	DeploymentID string           `json:"deployment_id"`
	Status       DeploymentStatus `json:"status"`
}

// DeploymentFilter narrows a deployment listing; empty fields match everything
type DeploymentFilter struct {
	AgentID string
	Status  DeploymentStatus
}

// SetTokenRequest stores the GitHub API token
type SetTokenRequest struct {
	Token string `json:"token"`
}

// TokenStatus reports whether a GitHub token is configured, without revealing it
type TokenStatus struct {
	HasToken     bool   `json:"has_token"`
	TokenPreview string `json:"token_preview,omitempty"`
}

// MessageResponse is a generic acknowledgement body
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the body of every non-2xx API response
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// HealthResponse reports service status and entity counts
type HealthResponse struct {
	Status           string    `json:"status"`
	Timestamp        time.Time `json:"timestamp"`
	AgentsCount      int       `json:"agents_count"`
	OnlineAgents     int       `json:"online_agents"`
	ReleasesCount    int       `json:"releases_count"`
	DeploymentsCount int       `json:"deployments_count"`
}
