package ckbdynamic

import "math"

// longRunningEvent is the tagged-variant interface described in
// spec.md's Design Notes: Birth/Death/Split/Merge all implement it and
// are driven through a single flat slice with swap-pop removal
// (the event-tick loop in Engine.Run), rather than through inheritance.
type longRunningEvent interface {
	// tick advances the event by one timestep and reports whether it is
	// still active. Once it returns false the engine drops it.
	tick(e *Engine) bool
}

func ceilDiv(a, remaining int) int {
	if remaining <= 0 {
		return a
	}
	return (a + remaining - 1) / remaining
}

// birthEvent grows a freshly created empty community up to targetSize
// over tEffect ticks (spec.md §4.5). Recruitment itself happens through
// the assignment solver: each tick only raises the community's desired
// size, and the solver (run once per timestep, after all events tick)
// fills the gap from its normal candidate pool.
type birthEvent struct {
	community      CommunityID
	targetSize     int
	ticksRemaining int
}

func newBirthEvent(e *Engine, coreSize, targetSize, tEffect int) *birthEvent {
	c := e.newCommunity(false)
	c.setState(Growing)
	c.setDesiredSize(coreSize)
	e.syncAvailability(c)
	return &birthEvent{community: c.id, targetSize: targetSize, ticksRemaining: tEffect}
}

func (b *birthEvent) tick(e *Engine) bool {
	c := e.mustCommunity(b.community)
	remaining := b.ticksRemaining
	recruit := ceilDiv(b.targetSize-c.desired, remaining)
	c.setDesiredSize(c.desired + recruit)
	b.ticksRemaining--
	if b.ticksRemaining == 0 {
		c.setDesiredSize(b.targetSize)
		c.setState(Stable)
		e.syncAvailability(c)
		return false
	}
	return true
}

// deathEvent shrinks a community down to a residual core over tEffect
// ticks, removing the least-overlapping members first (those currently
// belonging to the fewest other communities, so the removal frees nodes
// that were otherwise least entangled elsewhere), then dissolves the
// residual core entirely on the final tick.
type deathEvent struct {
	community      CommunityID
	coreSize       int
	ticksRemaining int
}

func newDeathEvent(e *Engine, com *Community, coreSize, tEffect int) *deathEvent {
	com.setState(Shrinking)
	e.syncAvailability(com)
	return &deathEvent{community: com.id, coreSize: coreSize, ticksRemaining: tEffect}
}

func (d *deathEvent) tick(e *Engine) bool {
	c := e.mustCommunity(d.community)
	remaining := d.ticksRemaining
	toRemove := ceilDiv(c.Size()-d.coreSize, remaining)
	if toRemove < 0 {
		toRemove = 0
	}
	if toRemove > c.Size() {
		toRemove = c.Size()
	}
	for _, u := range e.leastOverlappingNodes(c, toRemove) {
		c.RemoveNode(e, u)
	}
	c.setDesiredSize(c.Size())
	d.ticksRemaining--
	if d.ticksRemaining == 0 {
		for _, u := range append([]NodeID(nil), c.Nodes()...) {
			c.RemoveNode(e, u)
		}
		c.setDesiredSize(0)
		e.destroyCommunity(c)
		return false
	}
	return true
}

// splitEvent partitions a community's current members into two groups by
// a random balanced cut proportional to the two target sizes at
// creation, then migrates the second group into a freshly created
// community, a proportional share per tick (spec.md §4.5).
type splitEvent struct {
	communityA     CommunityID
	communityB     CommunityID
	sizeA, sizeB   int
	pendingToB     []NodeID
	ticksRemaining int
}

func newSplitEvent(e *Engine, com *Community, sizeA, sizeB, tEffect int) *splitEvent {
	com.setLocked(true)
	e.syncAvailability(com)

	comB := e.newCommunity(false)
	comB.edgeProb = com.edgeProb
	comB.setLocked(true)
	comB.setDesiredSize(0)
	e.syncAvailability(comB)

	members := append([]NodeID(nil), com.Nodes()...)
	e.rng.shuffle(members)
	fractionB := float64(sizeB) / float64(sizeA+sizeB)
	splitAt := int(math.Round(float64(len(members)) * fractionB))
	if splitAt > len(members) {
		splitAt = len(members)
	}
	pendingToB := members[:splitAt]

	return &splitEvent{
		communityA:     com.id,
		communityB:     comB.id,
		sizeA:          sizeA,
		sizeB:          sizeB,
		pendingToB:     pendingToB,
		ticksRemaining: tEffect,
	}
}

func (s *splitEvent) tick(e *Engine) bool {
	comA := e.mustCommunity(s.communityA)
	comB := e.mustCommunity(s.communityB)

	remaining := s.ticksRemaining
	numToMove := ceilDiv(len(s.pendingToB), remaining)
	if numToMove > len(s.pendingToB) {
		numToMove = len(s.pendingToB)
	}
	moving := s.pendingToB[:numToMove]
	s.pendingToB = s.pendingToB[numToMove:]

	for _, u := range moving {
		if !comA.HasNode(u) {
			continue // left comA since the split began (e.g. the node died)
		}
		comA.RemoveNode(e, u)
		comB.AddNode(e, u)
	}

	comA.setDesiredSize(comA.Size())
	comB.setDesiredSize(comB.Size())

	s.ticksRemaining--
	if s.ticksRemaining == 0 {
		comA.setDesiredSize(s.sizeA)
		comB.setDesiredSize(s.sizeB)
		comA.setLocked(false)
		comB.setLocked(false)
		e.syncAvailability(comA)
		e.syncAvailability(comB)
		return false
	}
	return true
}

// mergeEvent folds communityB into communityA over tEffect ticks,
// blending their edge probabilities toward the eventual combined
// density as members transfer (spec.md §4.5).
type mergeEvent struct {
	communityA     CommunityID
	communityB     CommunityID
	targetSize     int
	ticksRemaining int
	ticksTotal     int
}

func newMergeEvent(e *Engine, comA, comB *Community, targetSize, tEffect int) *mergeEvent {
	comA.setLocked(true)
	comB.setLocked(true)
	e.syncAvailability(comA)
	e.syncAvailability(comB)
	return &mergeEvent{communityA: comA.id, communityB: comB.id, targetSize: targetSize, ticksRemaining: tEffect, ticksTotal: tEffect}
}

func (m *mergeEvent) tick(e *Engine) bool {
	comA := e.mustCommunity(m.communityA)
	comB := e.mustCommunity(m.communityB)

	remaining := m.ticksRemaining
	toMove := ceilDiv(comB.Size(), remaining)
	if toMove > comB.Size() {
		toMove = comB.Size()
	}
	moving := append([]NodeID(nil), comB.Nodes()[:toMove]...)

	progress := float64(m.ticksTotal-remaining+1) / float64(m.ticksTotal)
	blended := comA.edgeProb + (comB.edgeProb-comA.edgeProb)*progress
	comA.ChangeEdgeProbability(e, blended)

	for _, u := range moving {
		comB.RemoveNode(e, u)
		if !comA.HasNode(u) {
			comA.AddNode(e, u)
		}
	}

	m.ticksRemaining--
	if m.ticksRemaining == 0 {
		for _, u := range append([]NodeID(nil), comB.Nodes()...) {
			comB.RemoveNode(e, u)
			if !comA.HasNode(u) {
				comA.AddNode(e, u)
			}
		}
		e.destroyCommunity(comB)
		comA.setDesiredSize(m.targetSize)
		comA.setLocked(false)
		e.syncAvailability(comA)
		return false
	}
	comA.setDesiredSize(comA.Size())
	return true
}
