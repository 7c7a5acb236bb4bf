package ckbdynamic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommunity_AddNodeTracksMembershipAndEdges(t *testing.T) {
	e := newTestEngine(1, 10)
	c := e.newCommunity(false)
	c.edgeProb = 1.0 // deterministic: every pair gets an edge
	c.setDesiredSize(3)
	e.syncAvailability(c)

	c.AddNode(e, 0)
	c.AddNode(e, 1)
	c.AddNode(e, 2)

	require.Equal(t, 3, c.Size())
	assert.True(t, c.HasNode(0))
	assert.True(t, e.nodeCommunities[0].Contains(c.ID()))
	assert.True(t, e.nodeCommunities[1].Contains(c.ID()))

	assert.Contains(t, c.edges, canonicalEdge(0, 1))
	assert.Contains(t, c.edges, canonicalEdge(0, 2))
	assert.Contains(t, c.edges, canonicalEdge(1, 2))

	graphEvents, communityEvents := e.stream.finalize()
	addEdgeCount := 0
	for _, ev := range graphEvents {
		if ev.Kind == AddEdge {
			addEdgeCount++
		}
	}
	assert.Equal(t, 3, addEdgeCount)

	joinCount := 0
	for _, ev := range communityEvents {
		if ev.Kind == Join {
			joinCount++
		}
	}
	assert.Equal(t, 3, joinCount)
}

func TestCommunity_RemoveNodeClearsIncidentEdges(t *testing.T) {
	e := newTestEngine(2, 10)
	c := e.newCommunity(false)
	c.edgeProb = 1.0
	c.AddNode(e, 0)
	c.AddNode(e, 1)
	c.AddNode(e, 2)
	require.Len(t, c.edges, 3)

	c.RemoveNode(e, 1)

	assert.False(t, c.HasNode(1))
	assert.False(t, e.nodeCommunities[1].Contains(c.ID()))
	assert.NotContains(t, c.edges, canonicalEdge(0, 1))
	assert.NotContains(t, c.edges, canonicalEdge(1, 2))
	assert.Contains(t, c.edges, canonicalEdge(0, 2))
}

func TestCommunity_GlobalAddNodeSkipsMembershipBookkeeping(t *testing.T) {
	e := newTestEngine(3, 5)
	global := e.newCommunity(true)
	global.edgeProb = 1.0

	global.AddNode(e, 0)
	global.AddNode(e, 1)

	assert.True(t, global.HasNode(0))
	assert.Equal(t, 0, e.nodeCommunities[0].Len(), "global membership must not appear in per-node community sets")
}

func TestCommunity_CanRemoveNodeRespectsFloorAndLock(t *testing.T) {
	e := newTestEngine(4, 10)
	c := e.newCommunity(false)
	c.setDesiredSize(5)
	for i := 0; i < 5; i++ {
		c.AddNode(e, NodeID(i))
	}

	assert.True(t, c.CanRemoveNode(3))
	assert.False(t, c.CanRemoveNode(5), "cannot shrink below the floor")

	c.setLocked(true)
	assert.False(t, c.CanRemoveNode(0), "a locked community refuses every removal")
}

func TestCommunity_ChangeEdgeProbabilityConvergesToNewDensity(t *testing.T) {
	e := newTestEngine(5, 30)
	c := e.newCommunity(false)
	c.edgeProb = 0
	for i := 0; i < 20; i++ {
		c.AddNode(e, NodeID(i))
	}
	require.Empty(t, c.edges)

	c.ChangeEdgeProbability(e, 1.0)

	n := 20
	assert.Equal(t, n*(n-1)/2, len(c.edges))
	assert.Equal(t, 1.0, c.EdgeProbability())
}

func TestCommunity_RecomputeAvailability(t *testing.T) {
	c := newCommunity(1, false)
	assert.True(t, c.IsAvailable(), "a fresh Stable, unlocked community is available")

	c.setState(Growing)
	assert.False(t, c.IsAvailable())

	c.setState(Stable)
	assert.True(t, c.IsAvailable())

	c.setLocked(true)
	assert.False(t, c.IsAvailable())
}
