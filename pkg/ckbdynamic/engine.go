// Package ckbdynamic generates a synthetic dynamic graph with
// overlapping, time-varying community structure (a CKB-style dynamic
// benchmark), producing a graph-event stream and a community-event
// stream suitable as ground truth for dynamic-community-detection
// benchmarks.
package ckbdynamic

import (
	"context"
	"log/slog"
	"math"
	"os"
	"sort"

	"github.com/google/uuid"
	"github.com/lmittmann/tint"
)

// Engine is the per-timestep simulation driver (component C7). It owns
// every community in an arena keyed by CommunityID, the single seeded
// PRNG, and the event-stream buffer; Community and the long-running
// events never hold a reference back to it, so all cross-cutting state
// changes are routed through Engine methods (spec.md Design Notes).
type Engine struct {
	cfg    Config
	rng    *rng
	runID  uuid.UUID
	logger *slog.Logger
	metrics EngineMetrics

	sizeDist SizeDistribution
	memDist  MembershipDistribution

	communities          map[CommunityID]*Community
	nextCommunityID      CommunityID
	allCommunities       *IndexedSet[CommunityID]
	availableCommunities *IndexedSet[CommunityID]
	globalCommunity      *Community

	nodesAlive               *IndexedSet[NodeID]
	nextNodeID               NodeID
	desiredMemberships       []int
	nodeCommunities          []*IndexedSet[CommunityID]
	nodesWithOverassignments *IndexedSet[NodeID]
	sumDesiredMemberships    int
	currentMemberships       int

	currentEvents []longRunningEvent

	// edgeRefs counts, per canonical pair, how many communities currently
	// hold that pair as a materialized internal edge. AddEdge/RemoveEdge
	// are emitted only on the 0->1 and 1->0 transitions of this count, so
	// two overlapping communities that both roll the same pair (or one
	// dropping it while another still holds it) never produce a spurious
	// duplicate add or a remove for an edge that is still live elsewhere
	// (spec.md §3: the emitted graph is the multiset union of every
	// community's internal edges, collapsed to the live set).
	edgeRefs map[edgeKey]int

	currentTimestep int
	stream          *eventStreamBuffer

	hasRun   bool
	finished bool

	graphEvents     []GraphEvent
	communityEvents []CommunityEvent
}

// New constructs an Engine, checking the feasibility precondition from
// spec.md §4.1 (avgMemberships * n / avgSize >= maxMemberships) before
// any state is allocated.
func New(cfg Config) (*Engine, error) {
	sizeDist := cfg.SizeDistribution
	if sizeDist == nil {
		r := newRNG(cfg.Seed)
		sizeDist = NewPowerLawSizeDistribution(cfg.MinCommunitySize, cfg.MaxCommunitySize, cfg.CommunitySizeExponent, cfg.IntraCommunityEdgeProbability, cfg.IntraCommunityEdgeExponent, r)
	}
	memDist := cfg.MembershipDistribution
	if memDist == nil {
		r := newRNG(cfg.Seed + 1)
		memDist = NewPowerLawMembershipDistribution(cfg.MinCommunityMembership, cfg.MaxCommunityMembership, cfg.CommunityMembershipExponent, r)
	}

	expectedCommunities := memDist.AvgMemberships() * float64(cfg.N) / sizeDist.AvgSize()
	if expectedCommunities < float64(memDist.MaxMemberships()) {
		return nil, NewError("New").Kind(KindConfigurationInfeasible).
			Context("graph impossible to realize: too few expected communities for the widest desired membership count").Err()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(tint.NewHandler(os.Stderr, nil))
	}

	e := &Engine{
		cfg:                      cfg,
		rng:                      newRNG(cfg.Seed),
		runID:                    uuid.New(),
		logger:                   logger,
		metrics:                  cfg.Metrics,
		sizeDist:                 sizeDist,
		memDist:                  memDist,
		communities:              make(map[CommunityID]*Community),
		allCommunities:           NewIndexedSet[CommunityID](),
		availableCommunities:     NewIndexedSet[CommunityID](),
		nodesAlive:               NewIndexedSet[NodeID](),
		nodesWithOverassignments: NewIndexedSet[NodeID](),
		edgeRefs:                 make(map[edgeKey]int),
		stream:                   newEventStreamBuffer(cfg.NumTimesteps),
	}
	return e, nil
}

// RunID identifies this engine instance across log lines and metrics.
func (e *Engine) RunID() uuid.UUID { return e.runID }

// GraphEvents returns the ordered graph-event stream. Fails with
// NotFinished if Run has not completed.
func (e *Engine) GraphEvents() ([]GraphEvent, error) {
	if !e.finished {
		return nil, NewError("GraphEvents").Kind(KindNotFinished).Err()
	}
	return e.graphEvents, nil
}

// CommunityEvents returns the ordered community-event stream. Fails with
// NotFinished if Run has not completed.
func (e *Engine) CommunityEvents() ([]CommunityEvent, error) {
	if !e.finished {
		return nil, NewError("CommunityEvents").Kind(KindNotFinished).Err()
	}
	return e.communityEvents, nil
}

// Run executes the full simulation described in spec.md §4.7. It may be
// called exactly once per Engine; a second call fails with AlreadyRun.
// ctx is polled at every loop head (outer timestep, event generation,
// event ticking, perturbation) and Run fails fast with Cancelled,
// producing no partial streams, if it is done.
func (e *Engine) Run(ctx context.Context) error {
	if e.hasRun {
		return NewError("Run").Kind(KindAlreadyRun).Err()
	}
	e.hasRun = true

	if err := ctx.Err(); err != nil {
		return e.cancelledErr()
	}

	e.globalCommunity = e.newCommunity(true)
	e.globalCommunity.edgeProb = e.cfg.Epsilon
	e.currentTimestep = 0

	for i := 0; i < e.cfg.N; i++ {
		e.generateNode()
	}
	initialNumberOfNodes := e.nodesAlive.Len()

	sumDesiredMembers := 0
	for sumDesiredMembers < e.sumDesiredMemberships {
		if err := ctx.Err(); err != nil {
			return e.cancelledErr()
		}
		size := e.sizeDist.DrawCommunitySize()
		c := e.newCommunity(false)
		c.edgeProb = e.edgeProbabilityForSize(size)
		c.setDesiredSize(size)
		e.syncAvailability(c)
		sumDesiredMembers += size
	}

	if err := e.runAssignmentSolver(ctx); err != nil {
		return err
	}
	e.reportMetrics()

	for e.currentTimestep = 1; e.currentTimestep <= e.cfg.NumTimesteps; e.currentTimestep++ {
		if err := ctx.Err(); err != nil {
			return e.cancelledErr()
		}

		numCommunityEvents := e.rng.drawBinomial(e.allCommunities.Len(), e.cfg.CommunityEventProbability)
		numNodeEvents := e.rng.drawBinomial(e.allCommunities.Len(), e.cfg.NodeEventProbability)

		for i := 0; i < numCommunityEvents; i++ {
			if err := ctx.Err(); err != nil {
				return e.cancelledErr()
			}
			e.generateCommunityEvent(&sumDesiredMembers)
		}

		wantedNodeFraction := float64(initialNumberOfNodes) / float64(e.nodesAlive.Len())
		nodeBirthProbability := wantedNodeFraction / (1 + wantedNodeFraction)
		nodesBorn := e.rng.drawBinomial(numNodeEvents, nodeBirthProbability)

		for j := 0; j < numNodeEvents-nodesBorn && e.nodesAlive.Len() > 0; j++ {
			e.eraseNode()
		}
		for j := 0; j < nodesBorn; j++ {
			e.generateNode()
		}

		for i := 0; i < len(e.currentEvents); {
			if err := ctx.Err(); err != nil {
				return e.cancelledErr()
			}
			if active := e.currentEvents[i].tick(e); !active {
				last := len(e.currentEvents) - 1
				e.currentEvents[i] = e.currentEvents[last]
				e.currentEvents = e.currentEvents[:last]
			} else {
				i++
			}
		}

		if e.cfg.PerturbationProbability > 0 {
			e.globalCommunity.PerturbEdges(e, e.cfg.PerturbationProbability)
			for _, cid := range e.allCommunities.Items() {
				if err := ctx.Err(); err != nil {
					return e.cancelledErr()
				}
				e.communities[cid].PerturbEdges(e, e.cfg.PerturbationProbability)
			}
		}

		if err := e.runAssignmentSolver(ctx); err != nil {
			return err
		}
		e.reportMetrics()

		e.logger.Debug("timestep complete",
			"timestep", e.currentTimestep,
			"communityEvents", numCommunityEvents,
			"nodeEvents", numNodeEvents,
			"nodesAlive", e.nodesAlive.Len(),
			"communities", e.allCommunities.Len(),
			"available", e.availableCommunities.Len(),
			"activeEvents", len(e.currentEvents),
		)
	}

	e.communities = make(map[CommunityID]*Community)
	e.allCommunities = NewIndexedSet[CommunityID]()
	e.availableCommunities = NewIndexedSet[CommunityID]()
	e.globalCommunity = nil
	e.currentEvents = nil

	e.graphEvents, e.communityEvents = e.stream.finalize()
	e.finished = true
	return nil
}

func (e *Engine) generateCommunityEvent(sumDesiredMembers *int) {
	x := float64(e.sumDesiredMemberships) / float64(maxInt(*sumDesiredMembers, 1))
	birthProbability := 0.5 * x / (1 + x)
	splitProbability := birthProbability
	deathProbability := 0.5 - birthProbability

	r := e.rng.drawProbability()
	switch {
	case r < birthProbability:
		coreSize := e.sizeDist.MinSize()
		targetSize := e.sizeDist.DrawCommunitySize()
		*sumDesiredMembers += targetSize
		e.currentEvents = append(e.currentEvents, newBirthEvent(e, coreSize, targetSize, e.cfg.TEffect))

	case r < birthProbability+deathProbability:
		if e.availableCommunities.Len() == 0 {
			e.logger.Warn("no community available for death event")
			return
		}
		com := e.communities[e.availableCommunities.At(e.rng.drawIndexN(e.availableCommunities.Len()))]
		*sumDesiredMembers -= com.DesiredSize()
		coreSize := e.sizeDist.MinSize()
		e.currentEvents = append(e.currentEvents, newDeathEvent(e, com, coreSize, e.cfg.TEffect))

	case r < birthProbability+deathProbability+splitProbability:
		if e.availableCommunities.Len() == 0 {
			e.logger.Warn("no community available for split event")
			return
		}
		com := e.communities[e.availableCommunities.At(e.rng.drawIndexN(e.availableCommunities.Len()))]
		*sumDesiredMembers -= com.DesiredSize()
		sizeA := e.sizeDist.DrawCommunitySize()
		sizeB := e.sizeDist.DrawCommunitySize()
		*sumDesiredMembers += sizeA + sizeB
		e.currentEvents = append(e.currentEvents, newSplitEvent(e, com, sizeA, sizeB, e.cfg.TEffect))

	default:
		if e.availableCommunities.Len() < 2 {
			e.logger.Warn("no two communities available for merge event")
			return
		}
		ia, ib := e.drawMergePartners()
		comA := e.communities[e.availableCommunities.At(ia)]
		comB := e.communities[e.availableCommunities.At(ib)]
		*sumDesiredMembers -= comA.DesiredSize() + comB.DesiredSize()
		targetSize := e.sizeDist.DrawCommunitySize()
		*sumDesiredMembers += targetSize
		e.currentEvents = append(e.currentEvents, newMergeEvent(e, comA, comB, targetSize, e.cfg.TEffect))
	}
}

// drawMergePartners draws two distinct indices into availableCommunities.
// With Config.LegacyMergeBias set (the default) it reproduces the
// original generator's biased draw: ia in [0,N), ib in [1,N), and any
// collision is resolved by forcing ib to 0 rather than redrawing, which
// makes index 0 an over-represented merge partner (spec.md §9).
func (e *Engine) drawMergePartners() (int, int) {
	n := e.availableCommunities.Len()
	ia := e.rng.drawIndexN(n)
	if e.cfg.LegacyMergeBias {
		ib := e.rng.drawIndexRange(1, n)
		if ia == ib {
			ib = 0
		}
		return ia, ib
	}
	ib := e.rng.drawIndexN(n - 1)
	if ib >= ia {
		ib++
	}
	return ia, ib
}

func (e *Engine) cancelledErr() error {
	return NewError("Run").Kind(KindCancelled).Err()
}

func (e *Engine) edgeProbabilityForSize(size int) float64 {
	type densityAware interface{ EdgeProbability(size int) float64 }
	if d, ok := e.sizeDist.(densityAware); ok {
		return d.EdgeProbability(size)
	}
	p := e.cfg.IntraCommunityEdgeProbability * math.Pow(float64(size), -e.cfg.IntraCommunityEdgeExponent)
	if p > 1 {
		return 1
	}
	if p <= 0 {
		return math.SmallestNonzeroFloat64
	}
	return p
}

func (e *Engine) newCommunity(global bool) *Community {
	id := e.nextCommunityID
	e.nextCommunityID++
	c := newCommunity(id, global)
	if !global {
		e.communities[id] = c
		e.allCommunities.Insert(id)
		if c.available {
			e.availableCommunities.Insert(id)
		}
	}
	return c
}

func (e *Engine) mustCommunity(id CommunityID) *Community {
	return e.communities[id]
}

func (e *Engine) destroyCommunity(c *Community) {
	e.availableCommunities.Erase(c.id)
	e.allCommunities.Erase(c.id)
	delete(e.communities, c.id)
}

func (e *Engine) syncAvailability(c *Community) {
	if c.global {
		return
	}
	if c.available {
		e.availableCommunities.Insert(c.id)
	} else {
		e.availableCommunities.Erase(c.id)
	}
}

// addNodeToCommunity and removeNodeFromCommunity are the exactly two call
// sites that keep nodesWithOverassignments consistent with
// |mem[u]| > desired_memberships[u] (spec.md Design Notes).
func (e *Engine) addNodeToCommunity(u NodeID, c *Community) {
	memberships := e.nodeCommunities[u]
	if e.desiredMemberships[u] == memberships.Len() {
		e.nodesWithOverassignments.Insert(u)
	}
	memberships.Insert(c.id)
	e.stream.joinCommunity(e.currentTimestep, u, c.id)
	if e.metrics != nil {
		e.metrics.IncCommunityEvents(Join)
	}
	e.currentMemberships++
}

func (e *Engine) removeNodeFromCommunity(u NodeID, c *Community) {
	memberships := e.nodeCommunities[u]
	memberships.Erase(c.id)
	if e.desiredMemberships[u] == memberships.Len() {
		e.nodesWithOverassignments.Erase(u)
	}
	e.stream.leaveCommunity(e.currentTimestep, u, c.id)
	if e.metrics != nil {
		e.metrics.IncCommunityEvents(Leave)
	}
	e.currentMemberships--
}

// materializeEdge is called whenever a single community's own Bernoulli
// trial decides pair (u,v) should be an edge. Communities overlap by
// design, so the same pair can be materialized independently by more than
// one community at once; only the transition from zero live holders to
// one emits AddEdge, everything after that is bookkeeping (spec.md §3
// Invariant 5, Testable Property 2).
func (e *Engine) materializeEdge(u, v NodeID, nodeJoined bool) {
	key := canonicalEdge(u, v)
	e.edgeRefs[key]++
	if e.edgeRefs[key] == 1 {
		e.emitAddEdge(u, v, nodeJoined)
	}
}

// dematerializeEdge is the inverse of materializeEdge: dropping the pair
// from one community only emits RemoveEdge once no community holds it any
// longer.
func (e *Engine) dematerializeEdge(u, v NodeID, nodeLeft bool) {
	key := canonicalEdge(u, v)
	if e.edgeRefs[key] == 0 {
		return
	}
	e.edgeRefs[key]--
	if e.edgeRefs[key] == 0 {
		delete(e.edgeRefs, key)
		e.emitRemoveEdge(u, v, nodeLeft)
	}
}

// emitAddEdge and emitRemoveEdge apply edge-sharpness temporal smearing
// (spec.md §4.3) only when the edge change was caused by a node
// join/leave; edges churned by perturbation or a density change use the
// current timestep verbatim. Callers only reach these through
// materializeEdge/dematerializeEdge, never directly, so every call here
// corresponds to a real 0<->1 transition of the pair's cross-community
// reference count.
func (e *Engine) emitAddEdge(u, v NodeID, nodeJoined bool) {
	ts := e.currentTimestep
	if nodeJoined && e.cfg.EdgeSharpness < 1 && e.currentTimestep > 0 {
		offset := e.rng.drawGeometric(e.cfg.EdgeSharpness)
		if offset < ts {
			ts -= offset
		} else {
			ts = 0
		}
	}
	e.stream.addEdge(ts, u, v)
	if e.metrics != nil {
		e.metrics.IncGraphEvents(AddEdge)
	}
}

func (e *Engine) emitRemoveEdge(u, v NodeID, nodeLeft bool) {
	ts := e.currentTimestep
	if nodeLeft && e.cfg.EdgeSharpness < 1 && e.currentTimestep > 0 {
		offset := e.rng.drawGeometric(e.cfg.EdgeSharpness)
		if offset+ts < e.cfg.NumTimesteps {
			ts += offset
		} else {
			ts = e.cfg.NumTimesteps
		}
	}
	e.stream.removeEdge(ts, u, v)
	if e.metrics != nil {
		e.metrics.IncGraphEvents(RemoveEdge)
	}
}

func (e *Engine) generateNode() {
	u := e.nextNodeID
	e.nextNodeID++
	desired := e.memDist.DrawMemberships()
	e.desiredMemberships = append(e.desiredMemberships, desired)
	e.sumDesiredMemberships += desired
	e.nodesAlive.Insert(u)
	e.nodeCommunities = append(e.nodeCommunities, NewIndexedSet[CommunityID]())
	e.stream.addNode(e.currentTimestep, u)
	if e.metrics != nil {
		e.metrics.IncGraphEvents(AddNode)
	}
	e.globalCommunity.AddNode(e, u)
}

func (e *Engine) eraseNode() {
	u := e.nodesAlive.At(e.rng.drawIndexN(e.nodesAlive.Len()))
	e.sumDesiredMemberships -= e.desiredMemberships[u]
	e.desiredMemberships[u] = 0

	for e.nodeCommunities[u].Len() > 0 {
		cid := e.nodeCommunities[u].At(0)
		e.communities[cid].RemoveNode(e, u)
	}

	e.nodesAlive.Erase(u)
	e.globalCommunity.RemoveNode(e, u)
	e.stream.removeNode(e.currentTimestep, u)
	if e.metrics != nil {
		e.metrics.IncGraphEvents(RemoveNode)
	}
}

// leastOverlappingNodes returns up to k members of c ordered by ascending
// total membership count, i.e. the members that belong to the fewest
// other communities. Death events remove from the front of this list
// first (spec.md §4.5): the interpretation of "least-overlapping first"
// this codebase settled on, since original_source does not retain the
// CommunityDeathEvent implementation to confirm against.
func (e *Engine) leastOverlappingNodes(c *Community, k int) []NodeID {
	members := append([]NodeID(nil), c.Nodes()...)
	sort.SliceStable(members, func(i, j int) bool {
		mi, mj := e.nodeCommunities[members[i]].Len(), e.nodeCommunities[members[j]].Len()
		if mi != mj {
			return mi < mj
		}
		return members[i] < members[j]
	})
	if k > len(members) {
		k = len(members)
	}
	return members[:k]
}

func (e *Engine) reportMetrics() {
	if e.metrics == nil {
		return
	}
	e.metrics.SetNodesAlive(e.nodesAlive.Len())
	e.metrics.SetCommunities(e.allCommunities.Len())
	e.metrics.SetAvailableCommunities(e.availableCommunities.Len())
	e.metrics.SetActiveEvents(len(e.currentEvents))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
