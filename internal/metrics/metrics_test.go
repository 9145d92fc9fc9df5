package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsRegistered(t *testing.T) {
	// Initialise label combinations so vec metrics appear in Gather output.
	PromptsDispatchedTotal.WithLabelValues("sent")
	ContainerOpsTotal.WithLabelValues("exec", "ok")
	RepoSyncOpsTotal.WithLabelValues("pull", "ok")
	PRControllerRequestsTotal.WithLabelValues("merge", "ok")
	DronesByPhase.WithLabelValues("ready")
	LifecycleTransitionsTotal.WithLabelValues("ready")
	ContainerOpDuration.WithLabelValues("exec")
	LifecycleOpDuration.WithLabelValues("create")

	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	expected := map[string]bool{
		"dronehub_drones_total":                  false,
		"dronehub_drones_by_phase":               false,
		"dronehub_lifecycle_transitions_total":   false,
		"dronehub_lifecycle_op_duration_seconds": false,
		"dronehub_container_ops_total":           false,
		"dronehub_container_op_duration_seconds": false,
		"dronehub_repo_sync_ops_total":           false,
		"dronehub_prompts_dispatched_total":      false,
		"dronehub_pending_prompts":               false,
		"dronehub_terminal_sessions_active":      false,
		"dronehub_terminal_bytes_streamed_total": false,
		"dronehub_pr_controller_requests_total":  false,
	}

	for _, mf := range mfs {
		if _, ok := expected[mf.GetName()]; ok {
			expected[mf.GetName()] = true
		}
	}

	for name, found := range expected {
		if !found {
			t.Errorf("metric %q not registered", name)
		}
	}
}

func TestCounterIncrements(t *testing.T) {
	TerminalBytesStreamed.Add(128)
	PromptsDispatchedTotal.WithLabelValues("sent").Inc()
	PromptsDispatchedTotal.WithLabelValues("failed").Inc()
}

func TestGaugeSets(t *testing.T) {
	DronesTotal.Set(10)
	PendingPrompts.Set(3)
	TerminalSessionsActive.Set(2)
}
