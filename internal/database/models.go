package database

import (
	"time"

	"github.com/uptrace/bun"

	"fleetdeploy/pkg/models"
)

// Agent represents a fleet agent row
type Agent struct {
	bun.BaseModel `bun:"table:agents"`

	ID        string    `bun:"id,pk"`
	Name      string    `bun:"name,unique,notnull"`
	Platform  string    `bun:"platform,notnull"`
	Version   string    `bun:"version,notnull"`
	Status    string    `bun:"status,notnull,default:'offline'"`
	LastSeen  time.Time `bun:"last_seen,notnull"`
	IPAddress string    `bun:"ip_address,nullzero"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// ToModel converts database Agent to domain model
func (a *Agent) ToModel() *models.Agent {
	return &models.Agent{
		ID:        a.ID,
		Name:      a.Name,
		Platform:  models.Platform(a.Platform),
		Version:   a.Version,
		Status:    models.AgentStatus(a.Status),
		LastSeen:  a.LastSeen.UTC(),
		IPAddress: a.IPAddress,
	}
}

// AgentFromModel converts domain model to database Agent
func AgentFromModel(m *models.Agent) *Agent {
	return &Agent{
		ID:        m.ID,
		Name:      m.Name,
		Platform:  string(m.Platform),
		Version:   m.Version,
		Status:    string(m.Status),
		LastSeen:  m.LastSeen.UTC(),
		IPAddress: m.IPAddress,
	}
}

// Release represents a catalog release row
type Release struct {
	bun.BaseModel `bun:"table:releases"`

	ID          string    `bun:"id,pk"`
	TagName     string    `bun:"tag_name,notnull"`
	Name        string    `bun:"name,notnull"`
	Version     string    `bun:"version,notnull,default:''"`
	ReleaseDate time.Time `bun:"release_date,notnull"`
	DownloadURL string    `bun:"download_url,nullzero"`
	Description string    `bun:"description,nullzero"`
	Assets      []string  `bun:"assets,type:json,notnull"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// ToModel converts database Release to domain model
func (r *Release) ToModel() *models.Release {
	assets := r.Assets
	if assets == nil {
		assets = []string{}
	}
	return &models.Release{
		ID:          r.ID,
		TagName:     r.TagName,
		Name:        r.Name,
		Version:     r.Version,
		ReleaseDate: r.ReleaseDate.UTC(),
		DownloadURL: r.DownloadURL,
		Description: r.Description,
		Assets:      assets,
	}
}

// ReleaseFromModel converts domain model to database Release
func ReleaseFromModel(m *models.Release) *Release {
	assets := m.Assets
	if assets == nil {
		assets = []string{}
	}
	return &Release{
		ID:          m.ID,
		TagName:     m.TagName,
		Name:        m.Name,
		Version:     m.Version,
		ReleaseDate: m.ReleaseDate.UTC(),
		DownloadURL: m.DownloadURL,
		Description: m.Description,
		Assets:      assets,
	}
}

// Deployment represents a deployment row. Release ids and tags are stored as
// parallel JSON arrays and are not foreign keys.
type Deployment struct {
	bun.BaseModel `bun:"table:deployments,alias:d"`

	ID           string     `bun:"id,pk"`
	AgentID      string     `bun:"agent_id,notnull"`
	ReleaseIDs   []string   `bun:"release_ids,type:json,notnull"`
	ReleaseTags  []string   `bun:"release_tags,type:json,notnull"`
	Status       string     `bun:"status,notnull,default:'pending'"`
	CreatedAt    time.Time  `bun:"created_at,notnull"`
	StartedAt    *time.Time `bun:"started_at"`
	CompletedAt  *time.Time `bun:"completed_at"`
	ErrorMessage string     `bun:"error_message,nullzero"`

	// Relations
	Agent *Agent `bun:"rel:belongs-to,join:agent_id=id"`
}

// ToModel converts database Deployment to domain model
func (d *Deployment) ToModel() *models.Deployment {
	m := &models.Deployment{
		ID:           d.ID,
		AgentID:      d.AgentID,
		AgentName:    "Unknown",
		ReleaseIDs:   d.ReleaseIDs,
		ReleaseTags:  d.ReleaseTags,
		Status:       models.DeploymentStatus(d.Status),
		CreatedAt:    d.CreatedAt.UTC(),
		StartedAt:    utcPtr(d.StartedAt),
		CompletedAt:  utcPtr(d.CompletedAt),
		ErrorMessage: d.ErrorMessage,
	}
	if d.Agent != nil && d.Agent.Name != "" {
		m.AgentName = d.Agent.Name
	}
	return m
}

// DeploymentFromModel converts domain model to database Deployment
func DeploymentFromModel(m *models.Deployment) *Deployment {
	return &Deployment{
		ID:           m.ID,
		AgentID:      m.AgentID,
		ReleaseIDs:   m.ReleaseIDs,
		ReleaseTags:  m.ReleaseTags,
		Status:       string(m.Status),
		CreatedAt:    m.CreatedAt.UTC(),
		StartedAt:    utcPtr(m.StartedAt),
		CompletedAt:  utcPtr(m.CompletedAt),
		ErrorMessage: m.ErrorMessage,
	}
}

// Setting is a key/value row for coordinator settings
type Setting struct {
	bun.BaseModel `bun:"table:settings"`

	Key       string    `bun:"key,pk"`
	Value     string    `bun:"value,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
