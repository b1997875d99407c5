package deployment

import (
	"fmt"

	"fleetdeploy/pkg/models"
)

// ErrInvalidTransition is returned when a status change is not an edge of
// the lifecycle. It matches models.ErrInvalidArgument.
var ErrInvalidTransition = fmt.Errorf("%w: invalid status transition", models.ErrInvalidArgument)

// transitions lists the allowed edges of the lifecycle:
// pending -> in_progress -> success | failed.
var transitions = map[models.DeploymentStatus][]models.DeploymentStatus{
	models.DeploymentStatusPending:    {models.DeploymentStatusInProgress},
	models.DeploymentStatusInProgress: {models.DeploymentStatusSuccess, models.DeploymentStatusFailed},
}

// CanTransition reports whether from -> to is an allowed edge
func CanTransition(from, to models.DeploymentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns ErrInvalidTransition when from -> to is not allowed
func CheckTransition(from, to models.DeploymentStatus) error {
	if CanTransition(from, to) {
		return nil
	}
	if from.Terminal() {
		return fmt.Errorf("%w: deployment already %s", ErrInvalidTransition, from)
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
