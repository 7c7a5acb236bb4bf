package ckbdynamic

// IndexedSet is a set that supports O(1) amortised insert/erase/contains
// alongside O(1) uniform sampling by integer index. It backs nodesAlive,
// availableCommunities, nodesWithOverassignments and every node's and
// community's membership set, all of which the assignment solver needs
// to sample from without walking a map.
//
// Erasing an element swaps the last element into its slot, so At(i) is
// stable only until the next Erase.
type IndexedSet[T comparable] struct {
	items []T
	index map[T]int
}

// NewIndexedSet returns an empty IndexedSet.
func NewIndexedSet[T comparable]() *IndexedSet[T] {
	return &IndexedSet[T]{index: make(map[T]int)}
}

// Insert adds x to the set. Reports whether x was newly inserted.
func (s *IndexedSet[T]) Insert(x T) bool {
	if _, ok := s.index[x]; ok {
		return false
	}
	s.index[x] = len(s.items)
	s.items = append(s.items, x)
	return true
}

// Erase removes x from the set. Reports whether x was present.
func (s *IndexedSet[T]) Erase(x T) bool {
	i, ok := s.index[x]
	if !ok {
		return false
	}
	last := len(s.items) - 1
	s.items[i] = s.items[last]
	s.index[s.items[i]] = i
	s.items = s.items[:last]
	delete(s.index, x)
	return true
}

// Contains reports whether x is in the set.
func (s *IndexedSet[T]) Contains(x T) bool {
	_, ok := s.index[x]
	return ok
}

// Len returns the number of elements in the set.
func (s *IndexedSet[T]) Len() int {
	return len(s.items)
}

// At returns the element currently occupying position i.
func (s *IndexedSet[T]) At(i int) T {
	return s.items[i]
}

// SampleItem is an alias for At, used at call sites that read as sampling
// rather than positional access.
func (s *IndexedSet[T]) SampleItem(i int) T {
	return s.items[i]
}

// Items returns the backing slice in its current (unspecified but stable
// between mutations) order. Callers must not mutate the result.
func (s *IndexedSet[T]) Items() []T {
	return s.items
}
