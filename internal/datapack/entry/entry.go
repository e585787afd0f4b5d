// Package entry defines the closed set of entry kinds held by a data pack:
// span-based annotations, directed links between entries, and groups of
// entries. Domain-specific subkinds (Token, Sentence, Dependency, ...) are an
// open namespace carried by Type.Name.
package entry

import (
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/span"
)

// Fields holds the domain-specific values a component populated on an entry.
type Fields map[string]any

// Header carries what every entry has regardless of kind.
type Header struct {
	TID       string
	Name      string
	Component string
	Fields    Fields
}

// Entry is implemented only by *Annotation, *Link and *Group.
type Entry interface {
	Kind() Kind
	Head() *Header
	sealed()
}

type Annotation struct {
	Header
	Span span.Span
}

type Link struct {
	Header
	Parent string
	Child  string
}

type Group struct {
	Header
	Members []string
}

func NewAnnotation(name, component string, s span.Span) *Annotation {
	return &Annotation{Header: Header{Name: name, Component: component}, Span: s}
}

func NewLink(name, component, parent, child string) *Link {
	return &Link{Header: Header{Name: name, Component: component}, Parent: parent, Child: child}
}

func NewGroup(name, component string, members ...string) *Group {
	return &Group{Header: Header{Name: name, Component: component}, Members: members}
}

func (a *Annotation) Kind() Kind    { return KindAnnotation }
func (a *Annotation) Head() *Header { return &a.Header }
func (a *Annotation) sealed()       {}

func (l *Link) Kind() Kind    { return KindLink }
func (l *Link) Head() *Header { return &l.Header }
func (l *Link) sealed()       {}

func (g *Group) Kind() Kind    { return KindGroup }
func (g *Group) Head() *Header { return &g.Header }
func (g *Group) sealed()       {}

// Set records a field value and returns the header for chaining.
func (h *Header) Set(field string, value any) *Header {
	if h.Fields == nil {
		h.Fields = make(Fields)
	}
	h.Fields[field] = value
	return h
}

// TypeOf returns the concrete type of e.
func TypeOf(e Entry) Type {
	return Type{Kind: e.Kind(), Name: e.Head().Name}
}

// MemberSet returns the distinct members of g in sorted order.
func (g *Group) MemberSet() []string {
	seen := make(map[string]struct{}, len(g.Members))
	out := make([]string, 0, len(g.Members))
	for _, m := range g.Members {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// DedupKey identifies entries that are equal for admission purposes:
// annotations by type, component and span; links by type and endpoints;
// groups by type and member set.
func DedupKey(e Entry) string {
	var b strings.Builder
	h := e.Head()
	b.WriteString(h.Name)
	b.WriteByte(0)
	switch v := e.(type) {
	case *Annotation:
		b.WriteString(h.Component)
		b.WriteByte(0)
		b.WriteString(v.Span.String())
	case *Link:
		b.WriteString(v.Parent)
		b.WriteByte(0)
		b.WriteString(v.Child)
	case *Group:
		b.WriteString(strings.Join(v.MemberSet(), "\x00"))
	}
	return b.String()
}
