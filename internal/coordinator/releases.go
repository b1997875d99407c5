package coordinator

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"fleetdeploy/pkg/models"
)

// handleCreateRelease answers 409 for an already registered repository id;
// older coordinators answered 400 for the same case.
func (s *Server) handleCreateRelease(w http.ResponseWriter, r *http.Request) {
	var req models.CreateReleaseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	release, err := s.releases.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, release)
}

func (s *Server) handleListReleases(w http.ResponseWriter, r *http.Request) {
	releases, err := s.releases.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(releases))
}

func (s *Server) handleGetRelease(w http.ResponseWriter, r *http.Request) {
	release, err := s.releases.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, release)
}

func (s *Server) handleUpdateRelease(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateReleaseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	release, err := s.releases.Update(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, release)
}

func (s *Server) handleDeleteRelease(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.releases.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.MessageResponse{Message: fmt.Sprintf("Release %s deleted", id)})
}

func (s *Server) handleReleaseVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.releases.Versions(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(versions))
}
