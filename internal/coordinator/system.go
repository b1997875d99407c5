package coordinator

import (
	"net"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"fleetdeploy/internal/metrics"
	"fleetdeploy/pkg/models"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := models.HealthResponse{
		Status:    "healthy",
		Timestamp: s.now().UTC(),
	}

	counts, err := s.agents.StatusCounts(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	for status, n := range counts {
		resp.AgentsCount += n
		if status == models.AgentStatusOnline {
			resp.OnlineAgents = n
		}
	}
	if resp.ReleasesCount, err = s.db.Releases.Count(ctx); err != nil {
		writeError(w, r, err)
		return
	}
	if resp.DeploymentsCount, err = s.db.Deployments.Count(ctx); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMetricsSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.aggregator.Summary())
}

func (s *Server) handlePendingMetrics(w http.ResponseWriter, r *http.Request) {
	summary, ok := s.aggregator.Endpoint(metrics.PendingPollEndpoint)
	if !ok {
		summary = metrics.EndpointSummary{
			Endpoint:    metrics.PendingPollEndpoint,
			StatusCodes: map[string]int64{},
		}
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	status, err := s.settings.TokenStatus(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleSetToken(w http.ResponseWriter, r *http.Request) {
	var req models.SetTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.settings.SetGitHubToken(r.Context(), req.Token); err != nil {
		writeError(w, r, err)
		return
	}
	log.Info().Msg("GitHub token updated")
	writeJSON(w, http.StatusOK, models.MessageResponse{Message: "GitHub token saved"})
}

func (s *Server) handleClearToken(w http.ResponseWriter, r *http.Request) {
	if err := s.settings.ClearGitHubToken(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	log.Info().Msg("GitHub token cleared")
	writeJSON(w, http.StatusOK, models.MessageResponse{Message: "GitHub token removed"})
}

// clientIP prefers the first X-Forwarded-For hop over the socket peer
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
