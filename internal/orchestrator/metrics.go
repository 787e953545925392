package orchestrator

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the orchestrator's internal prometheus collectors. No HTTP
// listener is exposed here (spec.md's Non-goals exclude a metrics
// endpoint); the registry is still kept so a caller's own /metrics surface
// (or a test) can scrape these collectors, grounded in jordigilh-kubernaut's
// prometheus.NewRegistry + manual collector registration pattern.
type Metrics struct {
	Registry *prometheus.Registry

	TasksClaimed   prometheus.Counter
	TasksCompleted *prometheus.CounterVec
	StepDuration   *prometheus.HistogramVec
	DepsAnalyzed   prometheus.Counter
	RunningTasks   prometheus.Gauge
}

// NewMetrics constructs and registers the orchestrator's collectors against
// a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		TasksClaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agentctl", Subsystem: "orchestrator", Name: "tasks_claimed_total",
			Help: "Total tasks claimed for execution.",
		}),
		TasksCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentctl", Subsystem: "orchestrator", Name: "tasks_completed_total",
			Help: "Total tasks that finished execution, labeled by final status.",
		}, []string{"status"}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentctl", Subsystem: "pipeline", Name: "step_duration_seconds",
			Help: "Duration of each pipeline step invocation.", Buckets: prometheus.DefBuckets,
		}, []string{"step"}),
		DepsAnalyzed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agentctl", Subsystem: "depgraph", Name: "sweeps_total",
			Help: "Total dependency analyzer sweeps run.",
		}),
		RunningTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agentctl", Subsystem: "orchestrator", Name: "running_tasks",
			Help: "Tasks currently in_progress under the pool.",
		}),
	}
	reg.MustRegister(m.TasksClaimed, m.TasksCompleted, m.StepDuration, m.DepsAnalyzed, m.RunningTasks)
	return m
}
