package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"fleetdeploy/pkg/models"
)

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// AgentRepository provides database operations for agents
type AgentRepository interface {
	Get(ctx context.Context, id string) (*models.Agent, error)
	GetByName(ctx context.Context, name string) (*models.Agent, error)
	List(ctx context.Context) ([]*models.Agent, error)
	// Register inserts the agent or, when the name already exists, refreshes
	// its platform, version, status, last_seen and (if set) ip_address.
	Register(ctx context.Context, agent *models.Agent) (*models.Agent, error)
	Rename(ctx context.Context, id, name string) error
	// MarkOffline flips a stale online agent to offline. It reports whether a
	// row changed; a heartbeat newer than cutoff prevents the write.
	MarkOffline(ctx context.Context, id string, cutoff time.Time) (bool, error)
	// Delete removes the agent and all of its deployments
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

type agentRepository struct {
	db *bun.DB
}

// NewAgentRepository creates a new agent repository
func NewAgentRepository(db *bun.DB) AgentRepository {
	return &agentRepository{db: db}
}

func getAgent(ctx context.Context, db bun.IDB, column, value string) (*models.Agent, error) {
	agent := new(Agent)
	err := db.NewSelect().
		Model(agent).
		Where("? = ?", bun.Ident(column), value).
		Scan(ctx)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("agent %s: %w", value, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return agent.ToModel(), nil
}

func (r *agentRepository) Get(ctx context.Context, id string) (*models.Agent, error) {
	return getAgent(ctx, r.db, "id", id)
}

func (r *agentRepository) GetByName(ctx context.Context, name string) (*models.Agent, error) {
	return getAgent(ctx, r.db, "name", name)
}

func (r *agentRepository) List(ctx context.Context) ([]*models.Agent, error) {
	var agents []*Agent
	err := r.db.NewSelect().
		Model(&agents).
		Order("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*models.Agent, len(agents))
	for i, a := range agents {
		result[i] = a.ToModel()
	}
	return result, nil
}

func (r *agentRepository) Register(ctx context.Context, agent *models.Agent) (*models.Agent, error) {
	row := AgentFromModel(agent)
	row.CreatedAt = row.LastSeen

	var registered *models.Agent
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().
			Model(row).
			On("CONFLICT (name) DO UPDATE").
			Set("platform = EXCLUDED.platform").
			Set("version = EXCLUDED.version").
			Set("status = EXCLUDED.status").
			Set("last_seen = EXCLUDED.last_seen").
			Set("ip_address = COALESCE(EXCLUDED.ip_address, ip_address)").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("upsert agent %s: %w", agent.Name, err)
		}

		registered, err = getAgent(ctx, tx, "name", agent.Name)
		return err
	})
	if err != nil {
		return nil, err
	}
	return registered, nil
}

func (r *agentRepository) Rename(ctx context.Context, id, name string) error {
	res, err := r.db.NewUpdate().
		Model((*Agent)(nil)).
		Set("name = ?", name).
		Where("id = ?", id).
		Exec(ctx)
	if isUniqueViolation(err) {
		return fmt.Errorf("agent name %q already in use: %w", name, models.ErrConflict)
	}
	if err != nil {
		return err
	}
	return requireAffected(res, fmt.Errorf("agent %s: %w", id, models.ErrNotFound))
}

func (r *agentRepository) MarkOffline(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	res, err := r.db.NewUpdate().
		Model((*Agent)(nil)).
		Set("status = ?", string(models.AgentStatusOffline)).
		Where("id = ?", id).
		Where("status = ?", string(models.AgentStatusOnline)).
		Where("last_seen < ?", cutoff.UTC()).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *agentRepository) Delete(ctx context.Context, id string) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*Deployment)(nil)).
			Where("agent_id = ?", id).
			Exec(ctx); err != nil {
			return fmt.Errorf("delete deployments of agent %s: %w", id, err)
		}

		res, err := tx.NewDelete().
			Model((*Agent)(nil)).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return err
		}
		return requireAffected(res, fmt.Errorf("agent %s: %w", id, models.ErrNotFound))
	})
}

func (r *agentRepository) Count(ctx context.Context) (int, error) {
	return r.db.NewSelect().Model((*Agent)(nil)).Count(ctx)
}

// ReleaseRepository provides database operations for releases
type ReleaseRepository interface {
	Get(ctx context.Context, id string) (*models.Release, error)
	// GetMany returns the releases for ids keyed by id; unknown ids are absent
	GetMany(ctx context.Context, ids []string) (map[string]*models.Release, error)
	List(ctx context.Context) ([]*models.Release, error)
	// Create fails with models.ErrConflict when the repository id is already
	// registered. The API reports it as 409 rather than the legacy 400.
	Create(ctx context.Context, release *models.Release) error
	Update(ctx context.Context, release *models.Release) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

type releaseRepository struct {
	db *bun.DB
}

// NewReleaseRepository creates a new release repository
func NewReleaseRepository(db *bun.DB) ReleaseRepository {
	return &releaseRepository{db: db}
}

func (r *releaseRepository) Get(ctx context.Context, id string) (*models.Release, error) {
	release := new(Release)
	err := r.db.NewSelect().
		Model(release).
		Where("id = ?", id).
		Scan(ctx)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("release %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return release.ToModel(), nil
}

func (r *releaseRepository) GetMany(ctx context.Context, ids []string) (map[string]*models.Release, error) {
	result := make(map[string]*models.Release, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var releases []*Release
	err := r.db.NewSelect().
		Model(&releases).
		Where("id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	for _, rel := range releases {
		result[rel.ID] = rel.ToModel()
	}
	return result, nil
}

func (r *releaseRepository) List(ctx context.Context) ([]*models.Release, error) {
	var releases []*Release
	err := r.db.NewSelect().
		Model(&releases).
		Order("created_at DESC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*models.Release, len(releases))
	for i, rel := range releases {
		result[i] = rel.ToModel()
	}
	return result, nil
}

func (r *releaseRepository) Create(ctx context.Context, release *models.Release) error {
	row := ReleaseFromModel(release)
	row.CreatedAt = time.Now().UTC()

	_, err := r.db.NewInsert().
		Model(row).
		Exec(ctx)
	if isUniqueViolation(err) {
		return fmt.Errorf("release for repository '%s' already exists: %w", release.ID, models.ErrConflict)
	}
	return err
}

func (r *releaseRepository) Update(ctx context.Context, release *models.Release) error {
	res, err := r.db.NewUpdate().
		Model(ReleaseFromModel(release)).
		Column("tag_name", "name", "version", "release_date", "download_url", "description", "assets").
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res, fmt.Errorf("release %s: %w", release.ID, models.ErrNotFound))
}

func (r *releaseRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.NewDelete().
		Model((*Release)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res, fmt.Errorf("release %s: %w", id, models.ErrNotFound))
}

func (r *releaseRepository) Count(ctx context.Context) (int, error) {
	return r.db.NewSelect().Model((*Release)(nil)).Count(ctx)
}

// SettingRepository stores coordinator settings as key/value pairs
type SettingRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

type settingRepository struct {
	db *bun.DB
}

// NewSettingRepository creates a new setting repository
func NewSettingRepository(db *bun.DB) SettingRepository {
	return &settingRepository{db: db}
}

func (r *settingRepository) Get(ctx context.Context, key string) (string, error) {
	setting := &Setting{Key: key}
	err := r.db.NewSelect().
		Model(setting).
		WherePK().
		Scan(ctx)

	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("setting %s: %w", key, models.ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return setting.Value, nil
}

func (r *settingRepository) Set(ctx context.Context, key, value string) error {
	_, err := r.db.NewInsert().
		Model(&Setting{Key: key, Value: value, UpdatedAt: time.Now().UTC()}).
		On(`CONFLICT ("key") DO UPDATE`).
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (r *settingRepository) Delete(ctx context.Context, key string) error {
	_, err := r.db.NewDelete().
		Model(&Setting{Key: key}).
		WherePK().
		Exec(ctx)
	return err
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
