// Package coordinator exposes the fleet over HTTP/JSON.
package coordinator

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fleetdeploy/internal/database"
	"fleetdeploy/internal/deployment"
	"fleetdeploy/internal/fleet"
	"fleetdeploy/internal/metrics"
)

// Options tunes the HTTP layer
type Options struct {
	// RequestTimeout bounds every handler's context; zero disables it
	RequestTimeout time.Duration
	CORSOrigins    []string
}

// Server holds the services behind the HTTP API
type Server struct {
	db          *database.BunDB
	agents      *fleet.AgentService
	releases    *fleet.ReleaseService
	settings    *fleet.SettingsService
	deployments *deployment.Service
	aggregator  *metrics.Aggregator
	opts        Options
	now         func() time.Time
}

// NewServer wires the HTTP API to its services
func NewServer(
	db *database.BunDB,
	agents *fleet.AgentService,
	releases *fleet.ReleaseService,
	settings *fleet.SettingsService,
	deployments *deployment.Service,
	aggregator *metrics.Aggregator,
	opts Options,
) *Server {
	return &Server{
		db:          db,
		agents:      agents,
		releases:    releases,
		settings:    settings,
		deployments: deployments,
		aggregator:  aggregator,
		opts:        opts,
		now:         time.Now,
	}
}

// Router builds the route table. Static segments are registered before
// parameterized ones so /deployments/history never matches /deployments/{id}.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(metrics.HTTPMiddleware(s.aggregator))
	r.Use(requestTimeout(s.opts.RequestTimeout))

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/metrics", s.handleMetricsSummary).Methods(http.MethodGet)
	api.HandleFunc("/metrics/pending", s.handlePendingMetrics).Methods(http.MethodGet)

	api.HandleFunc("/agents/register", s.handleRegisterAgent).Methods(http.MethodPost)
	api.HandleFunc("/agents", s.handleListAgents).Methods(http.MethodGet)
	api.HandleFunc("/agents/{id}", s.handleGetAgent).Methods(http.MethodGet)
	api.HandleFunc("/agents/{id}", s.handleUpdateAgent).Methods(http.MethodPut)
	api.HandleFunc("/agents/{id}", s.handleDeleteAgent).Methods(http.MethodDelete)

	api.HandleFunc("/releases", s.handleCreateRelease).Methods(http.MethodPost)
	api.HandleFunc("/releases", s.handleListReleases).Methods(http.MethodGet)
	api.HandleFunc("/releases/{id}/versions", s.handleReleaseVersions).Methods(http.MethodGet)
	api.HandleFunc("/releases/{id}", s.handleGetRelease).Methods(http.MethodGet)
	api.HandleFunc("/releases/{id}", s.handleUpdateRelease).Methods(http.MethodPut)
	api.HandleFunc("/releases/{id}", s.handleDeleteRelease).Methods(http.MethodDelete)

	api.HandleFunc("/deployments", s.handleCreateDeployment).Methods(http.MethodPost)
	api.HandleFunc("/deployments", s.handleListDeployments).Methods(http.MethodGet)
	api.HandleFunc("/deployments/history", s.handleDeploymentHistory).Methods(http.MethodGet)
	api.HandleFunc("/deployments/pending/{agent_id}", s.handleClaimDeployment).Methods(http.MethodGet)
	api.HandleFunc("/deployments/{id}/complete", s.handleCompleteDeployment).Methods(http.MethodPost)
	api.HandleFunc("/deployments/{id}", s.handleGetDeployment).Methods(http.MethodGet)

	api.HandleFunc("/settings/github-token", s.handleGetToken).Methods(http.MethodGet)
	api.HandleFunc("/settings/github-token", s.handleSetToken).Methods(http.MethodPost)
	api.HandleFunc("/settings/github-token", s.handleClearToken).Methods(http.MethodDelete)

	notFound := metrics.UnmatchedHandler(s.aggregator, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusNotFound, "Not Found")
	}))
	methodNotAllowed := metrics.UnmatchedHandler(s.aggregator, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	}))
	for _, router := range []*mux.Router{r, api} {
		router.NotFoundHandler = notFound
		router.MethodNotAllowedHandler = methodNotAllowed
	}

	return cors(s.opts.CORSOrigins)(r)
}
