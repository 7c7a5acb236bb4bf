package ckbdynamic

// NodeID identifies a node by a dense monotonic integer assigned at birth
// (spec.md §3). Ids are never reused.
type NodeID uint64

// CommunityID identifies a community by a monotonic integer assigned at
// creation.
type CommunityID uint64

// CommunityState is one of the four states a community can be in
// (spec.md §3). Split/Merge lock a community against external edits
// through Community.locked rather than a fifth state.
type CommunityState uint8

const (
	Growing CommunityState = iota
	Stable
	Shrinking
	Dead
)

func (s CommunityState) String() string {
	switch s {
	case Growing:
		return "growing"
	case Stable:
		return "stable"
	case Shrinking:
		return "shrinking"
	case Dead:
		return "dead"
	default:
		return "unknown"
	}
}
