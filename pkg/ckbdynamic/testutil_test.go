package ckbdynamic

import (
	"io"
	"log/slog"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEngine builds a minimal Engine wired well enough to exercise
// Community and the long-running events directly, without going through
// New/Run. numNodes pre-allocates per-node bookkeeping slices as
// generateNode would.
func newTestEngine(seed uint64, numNodes int) *Engine {
	e := &Engine{
		cfg:                      DefaultConfig(),
		rng:                      newRNG(seed),
		communities:              make(map[CommunityID]*Community),
		allCommunities:           NewIndexedSet[CommunityID](),
		availableCommunities:     NewIndexedSet[CommunityID](),
		nodesAlive:               NewIndexedSet[NodeID](),
		nodesWithOverassignments: NewIndexedSet[NodeID](),
		edgeRefs:                 make(map[edgeKey]int),
		stream:                   newEventStreamBuffer(10),
		logger:                   discardLogger(),
	}
	for i := 0; i < numNodes; i++ {
		e.nodesAlive.Insert(NodeID(i))
		e.desiredMemberships = append(e.desiredMemberships, 2)
		e.nodeCommunities = append(e.nodeCommunities, NewIndexedSet[CommunityID]())
	}
	e.nextNodeID = NodeID(numNodes)
	e.globalCommunity = e.newCommunity(true)
	return e
}
