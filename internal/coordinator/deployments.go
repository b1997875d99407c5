package coordinator

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"fleetdeploy/pkg/models"
)

func (s *Server) handleCreateDeployment(w http.ResponseWriter, r *http.Request) {
	var req models.CreateDeploymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	d, err := s.deployments.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) handleListDeployments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.DeploymentFilter{
		AgentID: q.Get("agent_id"),
		Status:  models.DeploymentStatus(q.Get("status")),
	}

	deployments, err := s.deployments.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(deployments))
}

func (s *Server) handleDeploymentHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeDetail(w, http.StatusBadRequest, fmt.Sprintf("limit must be a positive integer, got %q", raw))
			return
		}
		limit = n
	}

	deployments, err := s.deployments.History(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(deployments))
}

func (s *Server) handleGetDeployment(w http.ResponseWriter, r *http.Request) {
	d, err := s.deployments.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleClaimDeployment is polled by agents; the body is null when nothing
// is pending
func (s *Server) handleClaimDeployment(w http.ResponseWriter, r *http.Request) {
	d, err := s.deployments.ClaimNext(r.Context(), mux.Vars(r)["agent_id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	if d == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleCompleteDeployment(w http.ResponseWriter, r *http.Request) {
	var req models.CompleteDeploymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	d, err := s.deployments.Complete(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.CompleteDeploymentResponse{
		Message:      "Deployment status updated",
		DeploymentID: d.ID,
		Status:       d.Status,
	})
}
