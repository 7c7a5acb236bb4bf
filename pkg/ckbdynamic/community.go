package ckbdynamic

// Community holds a set of nodes, an edge probability, and the private
// Bernoulli-populated edge set materialized from that probability
// (spec.md §4.4, component C4). It never touches the engine's node or
// community indices directly — every cross-cutting update (membership
// bookkeeping, overassignment tracking, event emission, availability
// indices) is routed back through the *Engine argument each method
// takes, so Community and Engine never hold references to each other.
type Community struct {
	id       CommunityID
	global   bool
	nodes    *IndexedSet[NodeID]
	edges    map[edgeKey]struct{}
	edgeProb float64
	desired  int
	state    CommunityState
	available bool
	locked   bool // owned by an in-progress Split or Merge
}

func newCommunity(id CommunityID, global bool) *Community {
	c := &Community{
		id:     id,
		global: global,
		nodes:  NewIndexedSet[NodeID](),
		edges:  make(map[edgeKey]struct{}),
		state:  Stable,
	}
	c.recomputeAvailability()
	return c
}

func (c *Community) ID() CommunityID    { return c.id }
func (c *Community) IsGlobal() bool     { return c.global }
func (c *Community) Size() int          { return c.nodes.Len() }
func (c *Community) DesiredSize() int   { return c.desired }
func (c *Community) EdgeProbability() float64 { return c.edgeProb }
func (c *Community) State() CommunityState    { return c.state }
func (c *Community) IsLocked() bool     { return c.locked }
func (c *Community) HasNode(u NodeID) bool { return c.nodes.Contains(u) }
func (c *Community) Nodes() []NodeID    { return c.nodes.Items() }

// IsAvailable reports whether the community is stable and not currently
// owned by a long-running event (spec.md §4.4).
func (c *Community) IsAvailable() bool {
	return c.available
}

func (c *Community) setDesiredSize(size int) {
	c.desired = size
}

// setState updates state and recomputes availability; callers must sync
// the engine's availableCommunities index afterwards (engine.syncAvailability).
func (c *Community) setState(s CommunityState) {
	c.state = s
	c.recomputeAvailability()
}

func (c *Community) setLocked(locked bool) {
	c.locked = locked
	c.recomputeAvailability()
}

func (c *Community) recomputeAvailability() {
	c.available = c.state == Stable && !c.locked
}

// CanRemoveNode reports whether a node may be pulled out of this
// community by the assignment solver (spec.md §4.4): the community must
// stay at or above min(minSize, desiredSize), and it must not be locked
// by an in-progress Split or Merge.
func (c *Community) CanRemoveNode(minSize int) bool {
	if c.locked {
		return false
	}
	floor := minSize
	if c.desired < floor {
		floor = c.desired
	}
	return c.nodes.Len() > floor
}

// AddNode inserts u into the community, rolling a Bernoulli(edgeProb)
// trial against every existing member to decide whether to materialize
// the new edge, then routes membership bookkeeping and event emission
// through the engine (spec.md §4.4).
func (c *Community) AddNode(e *Engine, u NodeID) {
	for _, v := range c.nodes.Items() {
		if v == u {
			continue
		}
		if e.rng.drawProbability() < c.edgeProb {
			c.edges[canonicalEdge(u, v)] = struct{}{}
			e.materializeEdge(u, v, true)
		}
	}
	c.nodes.Insert(u)
	if !c.global {
		e.addNodeToCommunity(u, c)
	}
}

// RemoveNode drops u from the community, emitting RemoveEdge for every
// materialized incident edge first (spec.md §4.4).
func (c *Community) RemoveNode(e *Engine, u NodeID) {
	for _, v := range c.nodes.Items() {
		if v == u {
			continue
		}
		key := canonicalEdge(u, v)
		if _, ok := c.edges[key]; ok {
			delete(c.edges, key)
			e.dematerializeEdge(u, v, true)
		}
	}
	c.nodes.Erase(u)
	if !c.global {
		e.removeNodeFromCommunity(u, c)
	}
}

// PerturbEdges resamples a p-fraction of all possible internal pairs:
// with probability p an existing edge is dropped and independently
// re-rolled at edgeProb, and an absent pair gets the same re-roll. Rather
// than testing every O(n^2) pair against p, pairs are visited by skipping
// ahead with a geometric(p) stride (spec.md §4.4), so the expected number
// of pairs touched is p * n(n-1)/2.
func (c *Community) PerturbEdges(e *Engine, p float64) {
	if p <= 0 {
		return
	}
	n := c.nodes.Len()
	total := n * (n - 1) / 2
	if total == 0 {
		return
	}
	members := c.nodes.Items()
	idx := e.rng.drawGeometric(p)
	for idx < total {
		u, v := pairAt(members, idx)
		key := canonicalEdge(u, v)
		_, exists := c.edges[key]
		roll := e.rng.drawProbability() < c.edgeProb
		switch {
		case exists && !roll:
			delete(c.edges, key)
			e.dematerializeEdge(u, v, false)
		case exists && roll:
			// re-rolled and kept: nothing changes.
		case !exists && roll:
			c.edges[key] = struct{}{}
			e.materializeEdge(u, v, false)
		}
		idx += 1 + e.rng.drawGeometric(p)
	}
}

// ChangeEdgeProbability resamples every internal pair against a new
// density, used when merging communities at a blended probability
// (spec.md §4.4, §4.5).
func (c *Community) ChangeEdgeProbability(e *Engine, newProb float64) {
	members := c.nodes.Items()
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			u, v := members[i], members[j]
			key := canonicalEdge(u, v)
			_, exists := c.edges[key]
			roll := e.rng.drawProbability() < newProb
			switch {
			case exists && !roll:
				delete(c.edges, key)
				e.dematerializeEdge(u, v, false)
			case !exists && roll:
				c.edges[key] = struct{}{}
				e.materializeEdge(u, v, false)
			}
		}
	}
	c.edgeProb = newProb
}

// pairAt maps a linear index in [0, n(n-1)/2) to the pair of members at
// that position under the standard triangular enumeration i<j.
func pairAt(members []NodeID, idx int) (NodeID, NodeID) {
	i := 0
	n := len(members)
	remaining := idx
	for {
		rowLen := n - i - 1
		if remaining < rowLen {
			return members[i], members[i+1+remaining]
		}
		remaining -= rowLen
		i++
	}
}
