package genmetrics

import (
	"testing"

	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/ckbdynamic/pkg/ckbdynamic"
)

func TestRegistry_ImplementsEngineMetrics(t *testing.T) {
	var _ ckbdynamic.EngineMetrics = (*Registry)(nil)
}

func TestRegistry_GaugesAndCountersUpdate(t *testing.T) {
	reg := NewRegistry(prometheus.NewRegistry())

	reg.SetNodesAlive(42)
	reg.SetCommunities(7)
	reg.SetAvailableCommunities(3)
	reg.SetActiveEvents(2)
	reg.IncGraphEvents(ckbdynamic.AddEdge)
	reg.IncCommunityEvents(ckbdynamic.Join)
	reg.ObserveSolverRun(10, 2, 1)

	assert.Equal(t, float64(42), readGauge(t, reg.NodesAlive))
	assert.Equal(t, float64(7), readGauge(t, reg.Communities))
	assert.Equal(t, float64(3), readGauge(t, reg.AvailableCommunities))
	assert.Equal(t, float64(2), readGauge(t, reg.ActiveEvents))

	var graphCounter, communityCounter dto.Metric
	require.NoError(t, reg.GraphEventsTotal.WithLabelValues(ckbdynamic.AddEdge.String()).Write(&graphCounter))
	assert.Equal(t, float64(1), graphCounter.GetCounter().GetValue())
	require.NoError(t, reg.CommunityEventsTotal.WithLabelValues(ckbdynamic.Join.String()).Write(&communityCounter))
	assert.Equal(t, float64(1), communityCounter.GetCounter().GetValue())

	metricFamilies, err := reg.GetPrometheusRegistry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, metricFamilies)
}

func readGauge(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}
