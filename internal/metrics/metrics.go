package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Coordinator metrics collectors
var (
	// HTTP

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetdeploy_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleetdeploy_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint"},
	)

	// Deployments

	DeploymentTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetdeploy_deployment_transitions_total",
			Help: "Total number of deployment status transitions by target status",
		},
		[]string{"to"},
	)

	ClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetdeploy_claims_total",
			Help: "Total number of agent claim polls by result (claimed, empty, error)",
		},
		[]string{"result"},
	)

	DeploymentsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleetdeploy_deployments",
			Help: "Current number of deployments by status",
		},
		[]string{"status"},
	)

	// Agents

	AgentsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleetdeploy_agents",
			Help: "Current number of agents by effective status",
		},
		[]string{"status"},
	)

	AgentRegistrationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetdeploy_agent_registrations_total",
			Help: "Total number of agent registration and heartbeat calls",
		},
	)
)
