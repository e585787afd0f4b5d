package index

import "sort"

// IDSet is a set of entry ids.
type IDSet map[string]struct{}

func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IDSet) Add(id string) {
	s[id] = struct{}{}
}

func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s IDSet) Clone() IDSet {
	out := make(IDSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// Intersect returns a new set holding ids present in both s and o.
func (s IDSet) Intersect(o IDSet) IDSet {
	small, large := s, o
	if len(large) < len(small) {
		small, large = large, small
	}
	out := make(IDSet, len(small))
	for id := range small {
		if large.Has(id) {
			out[id] = struct{}{}
		}
	}
	return out
}

// Sorted returns the ids in lexical order.
func (s IDSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
