package ckbdynamic

// GraphEventKind identifies the kind of a graph-stream record.
type GraphEventKind uint8

const (
	AddNode GraphEventKind = iota
	RemoveNode
	AddEdge
	RemoveEdge
	GraphTimeStep
)

func (k GraphEventKind) String() string {
	switch k {
	case AddNode:
		return "AddNode"
	case RemoveNode:
		return "RemoveNode"
	case AddEdge:
		return "AddEdge"
	case RemoveEdge:
		return "RemoveEdge"
	case GraphTimeStep:
		return "TimeStep"
	default:
		return "Unknown"
	}
}

// GraphEvent is one record of the graph-event stream (spec.md §6). V is
// unused (zero) for AddNode/RemoveNode/GraphTimeStep.
type GraphEvent struct {
	Timestep int
	Kind     GraphEventKind
	U        NodeID
	V        NodeID
}

// CommunityEventKind identifies the kind of a community-stream record.
type CommunityEventKind uint8

const (
	Join CommunityEventKind = iota
	Leave
	CommunityTimeStep
)

func (k CommunityEventKind) String() string {
	switch k {
	case Join:
		return "Join"
	case Leave:
		return "Leave"
	case CommunityTimeStep:
		return "TimeStep"
	default:
		return "Unknown"
	}
}

// CommunityEvent is one record of the community-event stream (spec.md §6).
type CommunityEvent struct {
	Timestep  int
	Kind      CommunityEventKind
	Node      NodeID
	Community CommunityID
}

type edgeKey struct {
	u, v NodeID
}

func canonicalEdge(u, v NodeID) edgeKey {
	if u < v {
		return edgeKey{u, v}
	}
	return edgeKey{v, u}
}

// eventStreamBuffer is the append-only per-timestep log described by
// spec.md §4.3 (component C3). Records are bucketed by their *effective*
// timestep (post edge-sharpness smearing) as they arrive, so finalize only
// has to walk buckets in order rather than sort a flat log — the ordering
// guarantee ("stable sort by timestep") falls out of appending in arrival
// order within each bucket.
type eventStreamBuffer struct {
	graphBuckets     [][]GraphEvent
	communityBuckets [][]CommunityEvent
}

func newEventStreamBuffer(numTimesteps int) *eventStreamBuffer {
	return &eventStreamBuffer{
		graphBuckets:     make([][]GraphEvent, numTimesteps+1),
		communityBuckets: make([][]CommunityEvent, numTimesteps+1),
	}
}

func (b *eventStreamBuffer) clampTS(ts int) int {
	if ts < 0 {
		return 0
	}
	if ts >= len(b.graphBuckets) {
		return len(b.graphBuckets) - 1
	}
	return ts
}

func (b *eventStreamBuffer) addNode(ts int, u NodeID) {
	ts = b.clampTS(ts)
	b.graphBuckets[ts] = append(b.graphBuckets[ts], GraphEvent{Timestep: ts, Kind: AddNode, U: u})
}

func (b *eventStreamBuffer) removeNode(ts int, u NodeID) {
	ts = b.clampTS(ts)
	b.graphBuckets[ts] = append(b.graphBuckets[ts], GraphEvent{Timestep: ts, Kind: RemoveNode, U: u})
}

func (b *eventStreamBuffer) addEdge(ts int, u, v NodeID) {
	ts = b.clampTS(ts)
	e := canonicalEdge(u, v)
	b.graphBuckets[ts] = append(b.graphBuckets[ts], GraphEvent{Timestep: ts, Kind: AddEdge, U: e.u, V: e.v})
}

func (b *eventStreamBuffer) removeEdge(ts int, u, v NodeID) {
	ts = b.clampTS(ts)
	e := canonicalEdge(u, v)
	b.graphBuckets[ts] = append(b.graphBuckets[ts], GraphEvent{Timestep: ts, Kind: RemoveEdge, U: e.u, V: e.v})
}

func (b *eventStreamBuffer) joinCommunity(ts int, u NodeID, c CommunityID) {
	ts = b.clampTS(ts)
	b.communityBuckets[ts] = append(b.communityBuckets[ts], CommunityEvent{Timestep: ts, Kind: Join, Node: u, Community: c})
}

func (b *eventStreamBuffer) leaveCommunity(ts int, u NodeID, c CommunityID) {
	ts = b.clampTS(ts)
	b.communityBuckets[ts] = append(b.communityBuckets[ts], CommunityEvent{Timestep: ts, Kind: Leave, Node: u, Community: c})
}

// dedupeGraphBucket cancels matching AddEdge/RemoveEdge pairs of the same
// edge within a single timestep bucket (spec.md §4.3: "paired add/remove
// at the same timestep annihilate"), preserving the relative order of
// whatever survives.
func dedupeGraphBucket(events []GraphEvent) []GraphEvent {
	addCount := make(map[edgeKey]int)
	removeCount := make(map[edgeKey]int)
	for _, e := range events {
		switch e.Kind {
		case AddEdge:
			addCount[edgeKey{e.U, e.V}]++
		case RemoveEdge:
			removeCount[edgeKey{e.U, e.V}]++
		}
	}
	cancelRemaining := make(map[edgeKey]int, len(addCount))
	for k, a := range addCount {
		if r := removeCount[k]; r > 0 {
			if a < r {
				cancelRemaining[k] = a
			} else {
				cancelRemaining[k] = r
			}
		}
	}
	if len(cancelRemaining) == 0 {
		return events
	}
	out := make([]GraphEvent, 0, len(events))
	for _, e := range events {
		if e.Kind == AddEdge || e.Kind == RemoveEdge {
			k := edgeKey{e.U, e.V}
			if cancelRemaining[k] > 0 {
				cancelRemaining[k]--
				continue
			}
		}
		out = append(out, e)
	}
	return out
}

// finalize flattens the bucketed log into the two ordered streams,
// inserting a TimeStep marker after every timestep in [1, numTimesteps]
// (the initial construction phase at timestep 0 gets no marker of its
// own — it precedes the first advance tick).
func (b *eventStreamBuffer) finalize() ([]GraphEvent, []CommunityEvent) {
	var graphEvents []GraphEvent
	var communityEvents []CommunityEvent

	graphEvents = append(graphEvents, dedupeGraphBucket(b.graphBuckets[0])...)
	communityEvents = append(communityEvents, b.communityBuckets[0]...)

	for ts := 1; ts < len(b.graphBuckets); ts++ {
		graphEvents = append(graphEvents, dedupeGraphBucket(b.graphBuckets[ts])...)
		graphEvents = append(graphEvents, GraphEvent{Timestep: ts, Kind: GraphTimeStep})

		communityEvents = append(communityEvents, b.communityBuckets[ts]...)
		communityEvents = append(communityEvents, CommunityEvent{Timestep: ts, Kind: CommunityTimeStep})
	}

	return graphEvents, communityEvents
}
