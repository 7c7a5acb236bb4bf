// Package genmetrics wires a ckbdynamic.Engine to Prometheus, mirroring
// the graph-storage layer's own Registry: one struct holding every
// metric, initialised in one place, exposed through a plain
// *prometheus.Registry for an HTTP handler to serve.
package genmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dd0wney/ckbdynamic/pkg/ckbdynamic"
)

// Registry holds every metric a running generator reports.
type Registry struct {
	NodesAlive           prometheus.Gauge
	Communities          prometheus.Gauge
	AvailableCommunities prometheus.Gauge
	ActiveEvents         prometheus.Gauge

	GraphEventsTotal     *prometheus.CounterVec
	CommunityEventsTotal *prometheus.CounterVec

	SolverMissingMembersBefore prometheus.Histogram
	SolverMissingMembersAfter  prometheus.Histogram
	SolverOverassignmentRounds prometheus.Histogram

	registry *prometheus.Registry
}

// NewRegistry initialises every metric against reg. Passing a fresh
// prometheus.NewRegistry() keeps generator metrics out of the default
// global registry, the same isolation storage.Registry uses.
func NewRegistry(reg *prometheus.Registry) *Registry {
	r := &Registry{registry: reg}

	r.NodesAlive = promauto.With(reg).NewGauge(prometheus.GaugeOpts{
		Name: "ckbdynamic_nodes_alive",
		Help: "Number of nodes currently alive in the generated graph.",
	})
	r.Communities = promauto.With(reg).NewGauge(prometheus.GaugeOpts{
		Name: "ckbdynamic_communities_total",
		Help: "Number of non-global communities currently tracked.",
	})
	r.AvailableCommunities = promauto.With(reg).NewGauge(prometheus.GaugeOpts{
		Name: "ckbdynamic_communities_available",
		Help: "Number of communities eligible to be selected for a new long-running event.",
	})
	r.ActiveEvents = promauto.With(reg).NewGauge(prometheus.GaugeOpts{
		Name: "ckbdynamic_active_events",
		Help: "Number of in-progress Birth/Death/Split/Merge events.",
	})

	r.GraphEventsTotal = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Name: "ckbdynamic_graph_events_total",
		Help: "Graph-stream events emitted, by kind.",
	}, []string{"kind"})
	r.CommunityEventsTotal = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Name: "ckbdynamic_community_events_total",
		Help: "Community-stream events emitted, by kind.",
	}, []string{"kind"})

	r.SolverMissingMembersBefore = promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
		Name:    "ckbdynamic_solver_missing_members_before",
		Help:    "Total community membership deficit measured before a solver run.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
	r.SolverMissingMembersAfter = promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
		Name:    "ckbdynamic_solver_missing_members_after",
		Help:    "Total community membership deficit remaining after a solver run.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
	r.SolverOverassignmentRounds = promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
		Name:    "ckbdynamic_solver_overassignment_rounds",
		Help:    "Number of overassignment rounds (solver Phase C) run in a single solver run.",
		Buckets: prometheus.LinearBuckets(0, 1, 10),
	})

	return r
}

// GetPrometheusRegistry returns the underlying registry, for wiring into
// promhttp.HandlerFor.
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}

// The methods below satisfy ckbdynamic.EngineMetrics. A nil *Registry is
// not itself nil-safe (unlike middleware.MetricsRecorder, Config.Metrics
// is only ever set to a non-nil Registry or left as the nil interface),
// so callers pass Config.Metrics = nil to opt out entirely rather than a
// nil *Registry.

func (r *Registry) SetNodesAlive(n int)           { r.NodesAlive.Set(float64(n)) }
func (r *Registry) SetCommunities(n int)          { r.Communities.Set(float64(n)) }
func (r *Registry) SetAvailableCommunities(n int) { r.AvailableCommunities.Set(float64(n)) }
func (r *Registry) SetActiveEvents(n int)         { r.ActiveEvents.Set(float64(n)) }

func (r *Registry) IncGraphEvents(kind ckbdynamic.GraphEventKind) {
	r.GraphEventsTotal.WithLabelValues(kind.String()).Inc()
}

func (r *Registry) IncCommunityEvents(kind ckbdynamic.CommunityEventKind) {
	r.CommunityEventsTotal.WithLabelValues(kind.String()).Inc()
}

func (r *Registry) ObserveSolverRun(missingMembersBefore, missingMembersAfter, overassignmentRounds int) {
	r.SolverMissingMembersBefore.Observe(float64(missingMembersBefore))
	r.SolverMissingMembersAfter.Observe(float64(missingMembersAfter))
	r.SolverOverassignmentRounds.Observe(float64(overassignmentRounds))
}
