// Package index maintains the lookup structures of a data pack. Indexes hold
// entry ids, never copies of entries: the id, type and component indexes grow
// eagerly with every admission, the link and group indexes stay inactive until
// first requested, and coverage indexes are built on demand.
//
// A DataIndex is not safe for concurrent use; the owning store serialises
// access to it.
package index

import (
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/internal/datapack/entry"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/metrics"
)

type DataIndex struct {
	entries    map[string]entry.Entry
	types      map[entry.Type]IDSet
	components map[string]IDSet

	links  LinkIndex
	groups GroupIndex

	coverage map[coverageKey]map[string]IDSet

	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(m *metrics.Metrics) *DataIndex {
	return &DataIndex{
		entries:    make(map[string]entry.Entry),
		types:      make(map[entry.Type]IDSet),
		components: make(map[string]IDSet),
		coverage:   make(map[coverageKey]map[string]IDSet),
		metrics:    m,
		logger:     slog.Default().With("component", "datapack-index"),
	}
}

// UpdateBasicIndex adds entries to the id, type and component indexes.
func (x *DataIndex) UpdateBasicIndex(entries ...entry.Entry) {
	for _, e := range entries {
		h := e.Head()
		t := entry.TypeOf(e)
		x.entries[h.TID] = e
		if _, ok := x.types[t]; !ok {
			x.types[t] = make(IDSet)
		}
		x.types[t].Add(h.TID)
		if _, ok := x.components[h.Component]; !ok {
			x.components[h.Component] = make(IDSet)
		}
		x.components[h.Component].Add(h.TID)
	}
}

// Entry returns the entry stored under tid.
func (x *DataIndex) Entry(tid string) (entry.Entry, bool) {
	e, ok := x.entries[tid]
	return e, ok
}

func (x *DataIndex) Len() int {
	return len(x.entries)
}

// TypeIDs returns the ids of every entry belonging to t. Concrete types are
// answered from a single bucket; wildcards union the matching buckets.
func (x *DataIndex) TypeIDs(t entry.Type) IDSet {
	if !t.Generic() {
		return x.types[t].Clone()
	}
	out := make(IDSet)
	for concrete, ids := range x.types {
		if !t.Accepts(concrete) {
			continue
		}
		for id := range ids {
			out.Add(id)
		}
	}
	return out
}

// ComponentIDs returns the ids of every entry produced by component.
func (x *DataIndex) ComponentIDs(component string) IDSet {
	return x.components[component].Clone()
}

// HasComponent reports whether component produced at least one entry of t.
func (x *DataIndex) HasComponent(t entry.Type, component string) bool {
	ids := x.components[component]
	if len(ids) == 0 {
		return false
	}
	for id := range x.TypeIDs(t) {
		if ids.Has(id) {
			return true
		}
	}
	return false
}

// Types returns the concrete types that have at least one entry.
func (x *DataIndex) Types() []entry.Type {
	out := make([]entry.Type, 0, len(x.types))
	for t := range x.types {
		out = append(out, t)
	}
	return out
}
