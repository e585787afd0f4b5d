package index

import "github.com/Adithya-Monish-Kumar-K/nlp-datapack/internal/datapack/entry"

// indexState is one-way: an index never returns to inactive.
type indexState uint8

const (
	stateInactive indexState = iota
	stateActive
)

// LinkIndex maps entry ids to the links that use them as child or parent.
type LinkIndex struct {
	state    indexState
	children map[string]IDSet
	parents  map[string]IDSet
}

func (l *LinkIndex) Active() bool {
	return l.state == stateActive
}

// Update activates the index and merges links into it. Re-adding a link
// already present is a no-op.
func (l *LinkIndex) Update(links []*entry.Link) {
	if l.state == stateInactive {
		l.children = make(map[string]IDSet)
		l.parents = make(map[string]IDSet)
		l.state = stateActive
	}
	for _, link := range links {
		addTo(l.children, link.Child, link.TID)
		addTo(l.parents, link.Parent, link.TID)
	}
}

// GroupIndex maps entry ids to the groups listing them as a member.
type GroupIndex struct {
	state   indexState
	members map[string]IDSet
}

func (g *GroupIndex) Active() bool {
	return g.state == stateActive
}

func (g *GroupIndex) Update(groups []*entry.Group) {
	if g.state == stateInactive {
		g.members = make(map[string]IDSet)
		g.state = stateActive
	}
	for _, group := range groups {
		for _, m := range group.Members {
			addTo(g.members, m, group.TID)
		}
	}
}

func addTo(m map[string]IDSet, key, id string) {
	set, ok := m[key]
	if !ok {
		set = make(IDSet)
		m[key] = set
	}
	set.Add(id)
}

// UpdateLinkIndex activates the link index if needed and adds links to it.
func (x *DataIndex) UpdateLinkIndex(links ...*entry.Link) {
	if !x.links.Active() {
		x.logger.Debug("activating link index", "links", len(links))
		x.metrics.IndexActivated("link")
	}
	x.links.Update(links)
}

// UpdateGroupIndex activates the group index if needed and adds groups to it.
func (x *DataIndex) UpdateGroupIndex(groups ...*entry.Group) {
	if !x.groups.Active() {
		x.logger.Debug("activating group index", "groups", len(groups))
		x.metrics.IndexActivated("group")
	}
	x.groups.Update(groups)
}

func (x *DataIndex) LinkIndexActive() bool {
	return x.links.Active()
}

func (x *DataIndex) GroupIndexActive() bool {
	return x.groups.Active()
}

// ChildLinks returns the links whose child is tid. The set is empty while the
// link index is inactive.
func (x *DataIndex) ChildLinks(tid string) IDSet {
	return x.links.children[tid].Clone()
}

// ParentLinks returns the links whose parent is tid.
func (x *DataIndex) ParentLinks(tid string) IDSet {
	return x.links.parents[tid].Clone()
}

// GroupsOf returns the groups listing tid as a member.
func (x *DataIndex) GroupsOf(tid string) IDSet {
	return x.groups.members[tid].Clone()
}
