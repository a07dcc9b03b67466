package machine

import "slices"

// ID identifies an instance within its registry. IDs are never reused.
type ID uint32

// NoID refers to no instance.
const NoID ID = 0

// idSet is an ordered set of instance IDs. Iteration is in ID order, which
// is creation order, so notification order is deterministic.
type idSet struct {
	ids []ID
}

func (s *idSet) add(id ID) bool {
	i, found := slices.BinarySearch(s.ids, id)
	if found {
		return false
	}
	s.ids = slices.Insert(s.ids, i, id)
	return true
}

func (s *idSet) remove(id ID) bool {
	i, found := slices.BinarySearch(s.ids, id)
	if !found {
		return false
	}
	s.ids = slices.Delete(s.ids, i, i+1)
	return true
}

func (s *idSet) has(id ID) bool {
	_, found := slices.BinarySearch(s.ids, id)
	return found
}

func (s *idSet) len() int { return len(s.ids) }

// list returns a copy safe to iterate while the set changes.
func (s *idSet) list() []ID {
	return slices.Clone(s.ids)
}
