package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"fleetdeploy/pkg/models"
)

// maxClaimAttempts bounds reselection when a concurrent claimer wins the row
const maxClaimAttempts = 5

// DeploymentRepository provides database operations for deployments
type DeploymentRepository interface {
	Get(ctx context.Context, id string) (*models.Deployment, error)
	List(ctx context.Context, filter models.DeploymentFilter, limit int) ([]*models.Deployment, error)
	Create(ctx context.Context, deployment *models.Deployment) error
	// ClaimNext moves the oldest pending deployment of an agent to
	// in_progress and returns it, or returns nil when nothing is pending.
	ClaimNext(ctx context.Context, agentID string, now time.Time) (*models.Deployment, error)
	// Transition applies from -> to only if the row is still in from. It
	// stamps completed_at for terminal states and sets errorMessage when
	// non-empty. The bool reports whether the row changed.
	Transition(ctx context.Context, id string, from, to models.DeploymentStatus, at time.Time, errorMessage string) (bool, error)
	CountByStatus(ctx context.Context) (map[models.DeploymentStatus]int, error)
	Count(ctx context.Context) (int, error)
}

type deploymentRepository struct {
	db *bun.DB
}

// NewDeploymentRepository creates a new deployment repository
func NewDeploymentRepository(db *bun.DB) DeploymentRepository {
	return &deploymentRepository{db: db}
}

func getDeployment(ctx context.Context, db bun.IDB, id string) (*models.Deployment, error) {
	deployment := new(Deployment)
	err := db.NewSelect().
		Model(deployment).
		Relation("Agent").
		Where("d.id = ?", id).
		Scan(ctx)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("deployment %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return deployment.ToModel(), nil
}

func (r *deploymentRepository) Get(ctx context.Context, id string) (*models.Deployment, error) {
	return getDeployment(ctx, r.db, id)
}

func (r *deploymentRepository) List(ctx context.Context, filter models.DeploymentFilter, limit int) ([]*models.Deployment, error) {
	var deployments []*Deployment
	q := r.db.NewSelect().
		Model(&deployments).
		Relation("Agent")

	if filter.AgentID != "" {
		q = q.Where("d.agent_id = ?", filter.AgentID)
	}
	if filter.Status != "" {
		q = q.Where("d.status = ?", string(filter.Status))
	}
	q = q.OrderExpr("d.created_at DESC, d.id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*models.Deployment, len(deployments))
	for i, d := range deployments {
		result[i] = d.ToModel()
	}
	return result, nil
}

func (r *deploymentRepository) Create(ctx context.Context, deployment *models.Deployment) error {
	_, err := r.db.NewInsert().
		Model(DeploymentFromModel(deployment)).
		Exec(ctx)
	if isUniqueViolation(err) {
		return fmt.Errorf("deployment %s already exists: %w", deployment.ID, models.ErrConflict)
	}
	return err
}

func (r *deploymentRepository) ClaimNext(ctx context.Context, agentID string, now time.Time) (*models.Deployment, error) {
	var claimed *models.Deployment

	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for attempt := 0; attempt < maxClaimAttempts; attempt++ {
			var next Deployment
			err := tx.NewSelect().
				Model(&next).
				Column("id").
				Where("agent_id = ?", agentID).
				Where("status = ?", string(models.DeploymentStatusPending)).
				OrderExpr("created_at ASC, id ASC").
				Limit(1).
				Scan(ctx)
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("select pending deployment: %w", err)
			}

			res, err := tx.NewUpdate().
				Model((*Deployment)(nil)).
				Set("status = ?", string(models.DeploymentStatusInProgress)).
				Set("started_at = ?", now.UTC()).
				Where("id = ?", next.ID).
				Where("status = ?", string(models.DeploymentStatusPending)).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("claim deployment %s: %w", next.ID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n == 0 {
				continue
			}

			claimed, err = getDeployment(ctx, tx, next.ID)
			return err
		}
		return fmt.Errorf("claim for agent %s lost %d races: %w", agentID, maxClaimAttempts, models.ErrConflict)
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *deploymentRepository) Transition(ctx context.Context, id string, from, to models.DeploymentStatus, at time.Time, errorMessage string) (bool, error) {
	q := r.db.NewUpdate().
		Model((*Deployment)(nil)).
		Set("status = ?", string(to)).
		Where("id = ?", id).
		Where("status = ?", string(from))

	switch {
	case to == models.DeploymentStatusInProgress:
		q = q.Set("started_at = ?", at.UTC())
	case to.Terminal():
		q = q.Set("completed_at = ?", at.UTC())
	}
	if errorMessage != "" {
		q = q.Set("error_message = ?", errorMessage)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *deploymentRepository) CountByStatus(ctx context.Context) (map[models.DeploymentStatus]int, error) {
	var rows []struct {
		Status string `bun:"status"`
		Count  int    `bun:"count"`
	}
	err := r.db.NewSelect().
		Model((*Deployment)(nil)).
		Column("status").
		ColumnExpr("COUNT(*) AS count").
		Group("status").
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}

	counts := make(map[models.DeploymentStatus]int, len(rows))
	for _, row := range rows {
		counts[models.DeploymentStatus(row.Status)] = row.Count
	}
	return counts, nil
}

func (r *deploymentRepository) Count(ctx context.Context) (int, error) {
	return r.db.NewSelect().Model((*Deployment)(nil)).Count(ctx)
}
