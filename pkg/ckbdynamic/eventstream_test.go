package ckbdynamic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalEdge_OrdersRegardlessOfArgumentOrder(t *testing.T) {
	assert.Equal(t, canonicalEdge(1, 2), canonicalEdge(2, 1))
	assert.Equal(t, edgeKey{u: 1, v: 2}, canonicalEdge(2, 1))
}

func TestEventStreamBuffer_ExactlyOneMarkerPerTimestep(t *testing.T) {
	b := newEventStreamBuffer(3)
	b.addNode(0, 1)
	b.addNode(0, 2)
	b.addEdge(1, 1, 2)
	// timestep 2 has no events of its own but must still get a marker.
	b.addNode(3, 3)

	graphEvents, communityEvents := b.finalize()

	markerCount := 0
	for _, e := range graphEvents {
		if e.Kind == GraphTimeStep {
			markerCount++
		}
	}
	assert.Equal(t, 3, markerCount)
	assert.Empty(t, communityEvents)

	// Construction-phase (timestep 0) events precede the first marker and
	// carry no marker of their own.
	require.GreaterOrEqual(t, len(graphEvents), 2)
	assert.Equal(t, AddNode, graphEvents[0].Kind)
	assert.Equal(t, AddNode, graphEvents[1].Kind)
}

func TestEventStreamBuffer_DedupesAddRemovePairsWithinATimestep(t *testing.T) {
	b := newEventStreamBuffer(1)
	b.addEdge(1, 1, 2)
	b.removeEdge(1, 2, 1) // same canonical edge, reversed argument order
	b.addEdge(1, 3, 4)

	graphEvents, _ := b.finalize()

	var survivors []GraphEvent
	for _, e := range graphEvents {
		if e.Kind == AddEdge || e.Kind == RemoveEdge {
			survivors = append(survivors, e)
		}
	}
	require.Len(t, survivors, 1)
	assert.Equal(t, AddEdge, survivors[0].Kind)
	assert.Equal(t, NodeID(3), survivors[0].U)
	assert.Equal(t, NodeID(4), survivors[0].V)
}

func TestEventStreamBuffer_DedupePreservesSurvivorOrder(t *testing.T) {
	b := newEventStreamBuffer(1)
	b.addEdge(1, 1, 2)
	b.addEdge(1, 1, 2) // two adds, one remove: one add survives
	b.removeEdge(1, 1, 2)
	b.addEdge(1, 5, 6)

	graphEvents, _ := b.finalize()
	var survivors []GraphEvent
	for _, e := range graphEvents {
		if e.Kind == AddEdge || e.Kind == RemoveEdge {
			survivors = append(survivors, e)
		}
	}
	require.Len(t, survivors, 2)
	assert.Equal(t, canonicalEdge(1, 2), edgeKey{survivors[0].U, survivors[0].V})
	assert.Equal(t, canonicalEdge(5, 6), edgeKey{survivors[1].U, survivors[1].V})
}

func TestEventStreamBuffer_ClampsOutOfRangeTimesteps(t *testing.T) {
	b := newEventStreamBuffer(2)
	b.addNode(-5, 1)
	b.addNode(999, 2)

	graphEvents, _ := b.finalize()
	require.Len(t, graphEvents, 4) // 2 AddNode + 2 markers (timesteps 1 and 2)
	assert.Equal(t, 0, graphEvents[0].Timestep)
}
