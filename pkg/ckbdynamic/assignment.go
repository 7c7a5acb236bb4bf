package ckbdynamic

import (
	"context"
	"math"
	"sort"
)

// assignmentKey is a pending (node, community) placement the solver has
// decided on but not yet materialized (spec.md §4.6's freshAssignments).
type assignmentKey struct {
	node      NodeID
	community CommunityID
}

// freshSet is the idempotent freshAssignments sampling set: an
// IndexedSet[assignmentKey] for O(1) insert/erase/uniform-sample, plus a
// per-node count so Phase C/D can compute a node's projected membership
// count (real + fresh) without rescanning every entry.
type freshSet struct {
	entries *IndexedSet[assignmentKey]
	counts  map[NodeID]int
}

func newFreshSet() *freshSet {
	return &freshSet{entries: NewIndexedSet[assignmentKey](), counts: make(map[NodeID]int)}
}

func (f *freshSet) has(u NodeID, c CommunityID) bool {
	return f.entries.Contains(assignmentKey{u, c})
}

func (f *freshSet) add(u NodeID, c CommunityID) bool {
	if !f.entries.Insert(assignmentKey{u, c}) {
		return false
	}
	f.counts[u]++
	return true
}

func (f *freshSet) remove(u NodeID, c CommunityID) bool {
	if !f.entries.Erase(assignmentKey{u, c}) {
		return false
	}
	f.counts[u]--
	if f.counts[u] <= 0 {
		delete(f.counts, u)
	}
	return true
}

func (f *freshSet) countFor(u NodeID) int { return f.counts[u] }
func (f *freshSet) Len() int              { return f.entries.Len() }
func (f *freshSet) At(i int) assignmentKey { return f.entries.At(i) }

// solverState threads the working data of a single runAssignmentSolver
// call through phases B-D: the fresh assignments made so far, each
// candidate community's remaining deficit, communities in scan order
// (largest desired_size first, spec.md §4.6 Phase B), and the nodes still
// short of their full desired membership count after greedy assignment.
type solverState struct {
	fresh      *freshSet
	deficits   map[CommunityID]int
	order      []CommunityID
	wanting    map[NodeID]int
	wantingSet *IndexedSet[NodeID]
}

func (st *solverState) addWanting(u NodeID, n int) {
	if n <= 0 {
		return
	}
	st.wanting[u] += n
	st.wantingSet.Insert(u)
}

func (st *solverState) fulfillWanting(u NodeID, n int) {
	st.wanting[u] -= n
	if st.wanting[u] <= 0 {
		delete(st.wanting, u)
		st.wantingSet.Erase(u)
	}
}

// runAssignmentSolver is component C6, the reconciliation pass run once
// per timestep after every long-running event has ticked. It reconciles
// each node's desired membership count against every community's desired
// size in the five strictly ordered phases of spec.md §4.6:
//
//	A. supply relaxation      - evict overassigned nodes from communities
//	                            that can spare them until the total open
//	                            slot count catches up with total node
//	                            demand, or the overassignment pool is
//	                            empty.
//	B. bucketed greedy        - widest-joining nodes first, greedily wire
//	   assignment                nodes into the largest-desired-size
//	                            communities that still have room, landing
//	                            placements in the idempotent freshAssignments
//	                            set rather than materializing immediately.
//	C. overassignment rounds  - while communities remain short, grow a
//	                            global overassignment factor and let the
//	                            nodes Phase B fully satisfied take on a
//	                            stochastically rounded excess above their
//	                            desired count.
//	D. randomized rebalancing - repeatedly sample a fresh placement and a
//	                            comparison slot, applying whichever
//	                            reassignment strictly reduces the worse of
//	                            the two nodes' projected overassignment
//	                            ratio.
//	E. materialization        - call Community.AddNode for every surviving
//	                            fresh placement; this is where AddEdge
//	                            events actually get emitted.
//
// A community whose desired_size drops below its actual size (the tail
// end of a Split or Merge) is not something any of the five
// phases above shrinks — none of them remove members from a community
// that Phase A itself didn't already target — so a supplemental shrink
// pass runs after Phase E to restore the |nodes| = desired_size
// postcondition in that case.
//
// The global community and any locked community (owned by an in-flight
// Split or Merge) are excluded from every phase; those manage their own
// membership directly.
func (e *Engine) runAssignmentSolver(ctx context.Context) error {
	missingBefore := e.totalMissingMembers()

	if err := ctx.Err(); err != nil {
		return e.cancelledErr()
	}
	e.relaxSupply()

	if err := ctx.Err(); err != nil {
		return e.cancelledErr()
	}
	st := e.bucketedAssign()

	if err := ctx.Err(); err != nil {
		return e.cancelledErr()
	}
	overassignmentRounds := e.overassignRemaining(st)

	if err := ctx.Err(); err != nil {
		return e.cancelledErr()
	}
	e.rebalance(st)

	if err := ctx.Err(); err != nil {
		return e.cancelledErr()
	}
	e.materialize(st)
	e.shrinkOversizedCommunities()

	missingAfter := e.totalMissingMembers()

	if e.metrics != nil {
		e.metrics.ObserveSolverRun(missingBefore, missingAfter, overassignmentRounds)
	}

	if e.cfg.Debug {
		if err := e.assertSolverInvariants(); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) totalMissingMembers() int {
	total := 0
	for _, cid := range e.allCommunities.Items() {
		c := e.communities[cid]
		if c.IsLocked() {
			continue
		}
		if d := c.DesiredSize() - c.Size(); d > 0 {
			total += d
		}
	}
	return total
}

func (e *Engine) totalMissingMemberships() int {
	total := 0
	for _, u := range e.nodesAlive.Items() {
		if d := e.desiredMemberships[u] - e.nodeCommunities[u].Len(); d > 0 {
			total += d
		}
	}
	return total
}

// relaxSupply is Phase A. While the total number of open community slots
// is short of total node demand, it pulls a node out of nodesWithOverassignments
// from one of its own communities, preferring a community that is
// already under-full so the eviction directly creates the deficit Phase
// B/C will refill from the wider candidate pool. It stops once the two
// totals meet or no eligible eviction remains.
func (e *Engine) relaxSupply() {
	missingMembers := e.totalMissingMembers()
	missingMemberships := e.totalMissingMemberships()
	for missingMembers < missingMemberships {
		u, c, ok := e.pickOverassignmentRelief()
		if !ok {
			return
		}
		c.RemoveNode(e, u)
		missingMembers++
	}
}

func (e *Engine) pickOverassignmentRelief() (NodeID, *Community, bool) {
	for _, u := range e.nodesWithOverassignments.Items() {
		var fallback *Community
		for _, cid := range e.nodeCommunities[u].Items() {
			c := e.communities[cid]
			if c.IsGlobal() || !c.CanRemoveNode(e.cfg.MinCommunitySize) {
				continue
			}
			if c.Size() < c.DesiredSize() {
				return u, c, true
			}
			if fallback == nil {
				fallback = c
			}
		}
		if fallback != nil {
			return u, fallback, true
		}
	}
	return 0, nil, false
}

// bucketedAssign is Phase B. Nodes are visited by decreasing desired
// membership count (widest joiners settle first); each is greedily wired
// into communities scanned from the largest desired_size down, landing
// successful placements in freshAssignments. Nodes that cannot reach
// their full desired count are recorded in the returned state's wanting
// set with their shortfall.
func (e *Engine) bucketedAssign() *solverState {
	st := &solverState{
		fresh:      newFreshSet(),
		deficits:   make(map[CommunityID]int),
		wanting:    make(map[NodeID]int),
		wantingSet: NewIndexedSet[NodeID](),
	}

	for _, cid := range e.allCommunities.Items() {
		c := e.communities[cid]
		if c.IsLocked() {
			continue
		}
		if d := c.DesiredSize() - c.Size(); d > 0 {
			st.deficits[cid] = d
			st.order = append(st.order, cid)
		}
	}
	sort.SliceStable(st.order, func(i, j int) bool {
		ci, cj := e.communities[st.order[i]], e.communities[st.order[j]]
		if ci.DesiredSize() != cj.DesiredSize() {
			return ci.DesiredSize() > cj.DesiredSize()
		}
		return st.order[i] < st.order[j]
	})

	nodes := append([]NodeID(nil), e.nodesAlive.Items()...)
	sort.SliceStable(nodes, func(i, j int) bool {
		if e.desiredMemberships[nodes[i]] != e.desiredMemberships[nodes[j]] {
			return e.desiredMemberships[nodes[i]] > e.desiredMemberships[nodes[j]]
		}
		return nodes[i] < nodes[j]
	})

	for _, u := range nodes {
		want := e.desiredMemberships[u] - e.nodeCommunities[u].Len()
		if want <= 0 {
			continue
		}
		placed := e.fillFromOrder(st, u, want)
		st.addWanting(u, want-placed)
	}
	return st
}

// fillFromOrder greedily wires u into up to n communities from st.order
// that still have a positive deficit and don't already hold u, in either
// fresh or real membership. Communities whose deficit has hit zero are
// skipped rather than physically swept out of st.order (spec.md §4.6's
// "lazily swept out during a linear compaction step", implemented here as
// a cheap skip check instead of a separate compaction pass). Reused by
// Phase C's overassignment excess against the same candidate order.
func (e *Engine) fillFromOrder(st *solverState, u NodeID, n int) int {
	placed := 0
	for _, cid := range st.order {
		if placed == n {
			break
		}
		if st.deficits[cid] <= 0 {
			continue
		}
		c := e.communities[cid]
		if c.HasNode(u) || st.fresh.has(u, cid) {
			continue
		}
		if st.fresh.add(u, cid) {
			st.deficits[cid]--
			placed++
		}
	}
	return placed
}

// overassignRemaining is Phase C. While any candidate community still has
// an unfilled deficit, it grows a global overAssignment factor by at
// least 0.01 per round and offers every node with *no* positive
// additionalMembersWanted — i.e. every node Phase B already fully
// satisfied, since a node still short of even its base desire has no
// valid community left for it and pushing it further would be pointless
// (spec.md §4.6) — a stochastically rounded target of
// desired_memberships[u]*(1+overAssignment); any excess over the node's
// current real+fresh count is greedily wired in through the same
// candidate order as Phase B, tagged as overassignment simply by virtue
// of exceeding desired_memberships[u]. A round that places nothing ends
// the loop; maxRounds is a defensive backstop against float64 rounding
// noise stalling overAssignment's growth, not a documented spec behavior.
// Returns the number of rounds run, reported to EngineMetrics.ObserveSolverRun.
func (e *Engine) overassignRemaining(st *solverState) int {
	rounds := 0
	overAssignment := 0.0
	maxRounds := e.cfg.N + len(e.communities) + 16

	for rounds < maxRounds {
		stillMissing := 0
		for _, d := range st.deficits {
			if d > 0 {
				stillMissing += d
			}
		}
		if stillMissing <= 0 {
			break
		}
		rounds++

		step := float64(stillMissing) / float64(maxInt(e.sumDesiredMemberships, 1))
		if step < 0.01 {
			step = 0.01
		}
		overAssignment += step

		progressed := false
		for _, u := range e.nodesAlive.Items() {
			if st.wanting[u] > 0 {
				continue
			}
			target := float64(e.desiredMemberships[u]) * (1 + overAssignment)
			dwo := e.rng.stochasticRound(target)
			current := e.nodeCommunities[u].Len() + st.fresh.countFor(u)
			excess := dwo - current
			if excess <= 0 {
				continue
			}
			if placed := e.fillFromOrder(st, u, excess); placed > 0 {
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}
	return rounds
}

// over reports a node's projected overassignment ratio (|mem[u]| + fresh[u])
// / desired_memberships[u], the quantity Phase D's swap heuristic minimizes.
func (e *Engine) over(st *solverState, u NodeID) float64 {
	des := e.desiredMemberships[u]
	if des <= 0 {
		return math.Inf(1)
	}
	return float64(e.nodeCommunities[u].Len()+st.fresh.countFor(u)) / float64(des)
}

// rebalance is Phase D. For 10*(totalMissingMembers + |wanting|)
// iterations it samples one existing fresh placement (u0,c0) and a second
// slot — either another fresh placement or a still-wanting node with no
// community — and applies whichever reassignment strictly reduces the
// worse of the two nodes' projected overassignment ratio, skipping any
// move that would duplicate an existing (u,c) pair or re-add a node to a
// community it already belongs to (spec.md §4.6 Phase D).
func (e *Engine) rebalance(st *solverState) {
	totalMissing := 0
	for _, d := range st.deficits {
		if d > 0 {
			totalMissing += d
		}
	}
	iterations := 10 * (totalMissing + st.wantingSet.Len())

	for i := 0; i < iterations; i++ {
		if st.fresh.Len() == 0 {
			return
		}
		k0 := st.fresh.At(e.rng.drawIndexN(st.fresh.Len()))

		total := st.fresh.Len() + st.wantingSet.Len()
		if total == 0 {
			return
		}
		pick := e.rng.drawIndexN(total)
		if pick < st.fresh.Len() {
			k1 := st.fresh.At(pick)
			if k1 == k0 {
				continue
			}
			e.trySwapPair(st, k0, k1)
		} else {
			u1 := st.wantingSet.At(pick - st.fresh.Len())
			if u1 == k0.node {
				continue
			}
			e.tryFillWantingFromPair(st, k0, u1)
		}
	}
}

// tryFillWantingFromPair handles the "second slot has no community" case
// of Phase D: u1 wants a community and currently has none from this
// solver run. Give it c0 instead of u0 when u0 giving it up leaves u0 no
// worse off than u1 currently is.
func (e *Engine) tryFillWantingFromPair(st *solverState, k0 assignmentKey, u1 NodeID) {
	u0, c0 := k0.node, k0.community
	c := e.communities[c0]
	if c.HasNode(u1) || st.fresh.has(u1, c0) {
		return
	}
	if e.desiredMemberships[u0] <= 0 {
		return
	}
	if e.over(st, u0)-1/float64(e.desiredMemberships[u0]) >= e.over(st, u1) {
		st.fresh.remove(u0, c0)
		st.fresh.add(u1, c0)
		st.fulfillWanting(u1, 1)
		st.addWanting(u0, 1)
	}
}

// trySwapPair handles two existing fresh placements: try assigning u0 to
// c1, u1 to c0, or swapping both, keeping whichever candidate strictly
// reduces max(over(u0), over(u1)) versus doing nothing.
func (e *Engine) trySwapPair(st *solverState, k0, k1 assignmentKey) {
	u0, c0 := k0.node, k0.community
	u1, c1 := k1.node, k1.community
	if u0 == u1 || c0 == c1 {
		return
	}
	comm0, comm1 := e.communities[c0], e.communities[c1]

	canGiveC0ToU1 := !comm0.HasNode(u1) && !st.fresh.has(u1, c0)
	canGiveC1ToU0 := !comm1.HasNode(u0) && !st.fresh.has(u0, c1)

	before := math.Max(e.over(st, u0), e.over(st, u1))
	best := before
	var apply func()

	projectedOver := func(u NodeID, delta int) float64 {
		des := e.desiredMemberships[u]
		if des <= 0 {
			return math.Inf(1)
		}
		return float64(e.nodeCommunities[u].Len()+st.fresh.countFor(u)+delta) / float64(des)
	}

	if canGiveC0ToU1 {
		cand := math.Max(projectedOver(u0, -1), projectedOver(u1, +1))
		if cand < best {
			best = cand
			apply = func() {
				st.fresh.remove(u0, c0)
				st.fresh.add(u1, c0)
				st.addWanting(u0, 1)
			}
		}
	}
	if canGiveC1ToU0 {
		cand := math.Max(projectedOver(u1, -1), projectedOver(u0, +1))
		if cand < best {
			best = cand
			apply = func() {
				st.fresh.remove(u1, c1)
				st.fresh.add(u0, c1)
				st.addWanting(u1, 1)
			}
		}
	}
	if canGiveC0ToU1 && canGiveC1ToU0 {
		cand := before // swapping both leaves each node's total count unchanged
		if cand < best {
			best = cand
			apply = func() {
				st.fresh.remove(u0, c0)
				st.fresh.remove(u1, c1)
				st.fresh.add(u0, c1)
				st.fresh.add(u1, c0)
			}
		}
	}
	if apply != nil {
		apply()
	}
}

// materialize is Phase E: every surviving fresh placement becomes a real
// Community.AddNode call, which is where AddEdge events actually get
// emitted.
func (e *Engine) materialize(st *solverState) {
	for i := 0; i < st.fresh.Len(); i++ {
		k := st.fresh.At(i)
		c := e.communities[k.community]
		if c.HasNode(k.node) {
			continue
		}
		c.AddNode(e, k.node)
	}
}

// shrinkOversizedCommunities is a supplemental step beyond spec.md's four
// solver phases: a community's desired_size can drop below its actual
// accumulated size when a Split or Merge event finishes with a
// smaller final desired_size than the community had grown to, and none of
// Phases A-E above remove members from a community that Phase A itself
// didn't already target. This restores |nodes| = desired_size in that
// case, picking victims uniformly at random since it is routine upkeep,
// not a deliberate community-level wind-down.
func (e *Engine) shrinkOversizedCommunities() {
	for _, cid := range e.allCommunities.Items() {
		c := e.communities[cid]
		if c.IsLocked() {
			continue
		}
		for c.Size() > c.DesiredSize() && c.CanRemoveNode(e.cfg.MinCommunitySize) {
			members := c.Nodes()
			victim := members[e.rng.drawIndexN(len(members))]
			c.RemoveNode(e, victim)
		}
	}
}

func (e *Engine) assertSolverInvariants() error {
	for _, cid := range e.allCommunities.Items() {
		c := e.communities[cid]
		if c.IsLocked() {
			continue
		}
		if c.Size() != c.DesiredSize() {
			return NewError("runAssignmentSolver").
				Kind(KindInternalInvariantViolated).
				Context("community size diverged from its desired size after solver reconciliation").
				Err()
		}
	}
	return nil
}
