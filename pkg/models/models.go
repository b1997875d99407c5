package models

import (
	"fmt"
	"time"
)

// Platform is the operating system family an agent runs on
type Platform string

const (
	PlatformWindows Platform = "windows"
	PlatformMacOS   Platform = "macos"
)

// Valid reports whether p is a supported platform
func (p Platform) Valid() bool {
	return p == PlatformWindows || p == PlatformMacOS
}

// AgentStatus is the liveness state of an agent
type AgentStatus string

const (
	AgentStatusOnline  AgentStatus = "online"
	AgentStatusOffline AgentStatus = "offline"
	AgentStatusError   AgentStatus = "error"
)

// DeploymentStatus is a state of the deployment lifecycle
type DeploymentStatus string

const (
	DeploymentStatusPending    DeploymentStatus = "pending"
	DeploymentStatusInProgress DeploymentStatus = "in_progress"
	DeploymentStatusSuccess    DeploymentStatus = "success"
	DeploymentStatusFailed     DeploymentStatus = "failed"
)

// Valid reports whether s is one of the known deployment states
func (s DeploymentStatus) Valid() bool {
	switch s {
	case DeploymentStatusPending, DeploymentStatusInProgress, DeploymentStatusSuccess, DeploymentStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed out of s
func (s DeploymentStatus) Terminal() bool {
	return s == DeploymentStatusSuccess || s == DeploymentStatusFailed
}

// ParseDeploymentStatus validates a status received from a caller
func ParseDeploymentStatus(value string) (DeploymentStatus, error) {
	s := DeploymentStatus(value)
	if !s.Valid() {
		return "", fmt.Errorf("%w: unknown deployment status %q", ErrInvalidArgument, value)
	}
	return s, nil
}

// Agent is a remote machine that heartbeats and executes deployments
type Agent struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Platform  Platform    `json:"platform"`
	Version   string      `json:"version"`
	Status    AgentStatus `json:"status"`
	LastSeen  time.Time   `json:"last_seen"`
	IPAddress string      `json:"ip_address,omitempty"`
}

// Release is a deployable artifact set sourced from a GitHub repository
type Release struct {
	ID          string    `json:"id"`
	TagName     string    `json:"tag_name"`
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	ReleaseDate time.Time `json:"release_date"`
	DownloadURL string    `json:"download_url,omitempty"`
	Description string    `json:"description,omitempty"`
	Assets      []string  `json:"assets"`
}

// Deployment is one instruction to install releases on one agent
type Deployment struct {
	ID           string           `json:"id"`
	AgentID      string           `json:"agent_id"`
	AgentName    string           `json:"agent_name"`
	ReleaseIDs   []string         `json:"release_ids"`
	ReleaseTags  []string         `json:"release_tags"`
	Status       DeploymentStatus `json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
	StartedAt    *time.Time       `json:"started_at,omitempty"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
}

// ReleaseVersion is one published version of a release's source repository
type ReleaseVersion struct {
	TagName     string         `json:"tag_name"`
	Name        string         `json:"name"`
	PublishedAt string         `json:"published_at"`
	HTMLURL     string         `json:"html_url"`
	Assets      []ReleaseAsset `json:"assets"`
}

// ReleaseAsset describes a downloadable file attached to a release version
type ReleaseAsset struct {
	Name               string `json:"name"`
	Size               int64  `json:"size"`
	BrowserDownloadURL string `json:"browser_download_url"`
}
