// Package metrics exposes DroneHub's Prometheus metrics as package-level
// collectors, registered with the default registry via promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DronesTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dronehub_drones_total",
		Help: "Total number of drones currently in the registry.",
	})
	DronesByPhase = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dronehub_drones_by_phase",
		Help: "Number of drones in each hub phase.",
	}, []string{"phase"})
	LifecycleTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dronehub_lifecycle_transitions_total",
		Help: "Total number of registry phase transitions by resulting phase.",
	}, []string{"phase"})
	LifecycleOpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dronehub_lifecycle_op_duration_seconds",
		Help:    "Duration of lifecycle orchestrator operations by kind.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
	ContainerOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dronehub_container_ops_total",
		Help: "Total number of container adapter operations by op and outcome.",
	}, []string{"op", "outcome"})
	ContainerOpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dronehub_container_op_duration_seconds",
		Help:    "Duration of container adapter operations by op.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
	RepoSyncOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dronehub_repo_sync_ops_total",
		Help: "Total number of repo sync operations by op and outcome.",
	}, []string{"op", "outcome"})
	PromptsDispatchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dronehub_prompts_dispatched_total",
		Help: "Total number of prompts dispatched by resulting state.",
	}, []string{"state"})
	PendingPrompts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dronehub_pending_prompts",
		Help: "Number of prompts currently pending across all drones.",
	})
	TerminalSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dronehub_terminal_sessions_active",
		Help: "Number of open terminal sessions.",
	})
	TerminalBytesStreamed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dronehub_terminal_bytes_streamed_total",
		Help: "Total bytes streamed to terminal clients.",
	})
	PRControllerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dronehub_pr_controller_requests_total",
		Help: "Total number of PR controller requests by op and outcome.",
	}, []string{"op", "outcome"})
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dronehub_http_requests_total",
		Help: "Total number of HTTP API requests by route pattern and status class.",
	}, []string{"pattern", "status"})
)
