package ingest

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/internal/datapack"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/internal/datapack/entry"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/span"
)

// Build validates doc and admits its entries into a new pack. Entries with
// an explicit tid are admitted first so generated ids cannot claim them. A
// document without an id is assigned a random one, written back to doc.
func Build(doc *Document, m *metrics.Metrics) (*datapack.DataPack, error) {
	if err := Validate(doc); err != nil {
		return nil, err
	}
	if doc.DocID == "" {
		doc.DocID = uuid.NewString()
	}
	p := datapack.New(doc.Text, datapack.WithDocID(doc.DocID), datapack.WithMetrics(m))

	order := make([]int, len(doc.Entries))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return doc.Entries[order[a]].TID != "" && doc.Entries[order[b]].TID == ""
	})

	inferred := make(map[entry.Type]map[string][]string)
	for _, i := range order {
		e, err := toEntry(doc.Entries[i])
		if err != nil {
			return nil, fmt.Errorf("entries[%d]: %w", i, err)
		}
		if _, err := p.Admit(e); err != nil {
			return nil, fmt.Errorf("admitting entries[%d]: %w", i, err)
		}
		h := e.Head()
		typ := entry.TypeOf(e)
		if inferred[typ] == nil {
			inferred[typ] = make(map[string][]string)
		}
		fields := inferred[typ][h.Component]
		for f := range h.Fields {
			fields = append(fields, f)
		}
		inferred[typ][h.Component] = fields
	}

	// Declared provenance goes first so it picks each type's default
	// component; inferred provenance follows in payload order.
	for _, pv := range doc.Provenance {
		kind, _ := entry.ParseKind(pv.Kind)
		if err := p.RecordFieldProvenance(entry.Type{Kind: kind, Name: pv.Type}, pv.Component, pv.Fields...); err != nil {
			return nil, err
		}
	}

	for _, e := range doc.Entries {
		kind, _ := entry.ParseKind(e.Kind)
		typ := entry.Type{Kind: kind, Name: e.Type}
		fields, ok := inferred[typ][e.Component]
		if !ok {
			continue
		}
		if err := p.RecordFieldProvenance(typ, e.Component, fields...); err != nil {
			return nil, err
		}
		delete(inferred[typ], e.Component)
	}

	slog.Default().With("component", "ingest").Debug("pack built",
		"doc_id", doc.DocID,
		"entries", p.Len(),
	)
	return p, nil
}

func toEntry(pl EntryPayload) (entry.Entry, error) {
	kind, err := entry.ParseKind(pl.Kind)
	if err != nil {
		return nil, err
	}
	var e entry.Entry
	switch kind {
	case entry.KindAnnotation:
		var s span.Span
		if pl.Span != nil {
			s = span.Span{Begin: pl.Span[0], End: pl.Span[1]}
		}
		e = entry.NewAnnotation(pl.Type, pl.Component, s)
	case entry.KindLink:
		e = entry.NewLink(pl.Type, pl.Component, pl.Parent, pl.Child)
	case entry.KindGroup:
		e = entry.NewGroup(pl.Type, pl.Component, pl.Members...)
	default:
		return nil, fmt.Errorf("kind %s cannot be stored", kind)
	}
	h := e.Head()
	h.TID = pl.TID
	for k, v := range pl.Fields {
		h.Set(k, v)
	}
	return e, nil
}

// FromPack renders p back into a payload, entries in store order with
// explicit tids and the recorded provenance of every admitted type.
func FromPack(p *datapack.DataPack) *Document {
	doc := &Document{DocID: p.Meta().DocID, Text: p.FullText()}
	types := make(map[entry.Type]struct{})
	add := func(e entry.Entry) {
		doc.Entries = append(doc.Entries, PayloadOf(e))
		types[entry.TypeOf(e)] = struct{}{}
	}
	for _, a := range p.AnnotationsInOrder() {
		add(a)
	}
	for _, l := range p.Links() {
		add(l)
	}
	for _, g := range p.Groups() {
		add(g)
	}

	sorted := make([]entry.Type, 0, len(types))
	for t := range types {
		sorted = append(sorted, t)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].String() < sorted[j].String() })
	for _, t := range sorted {
		prov, ok := p.TypeMeta(t)
		if !ok {
			continue
		}
		components := make([]string, 0, len(prov.Fields))
		for c := range prov.Fields {
			components = append(components, c)
		}
		sort.Slice(components, func(i, j int) bool {
			// The default component goes first so it survives a rebuild.
			if (components[i] == prov.Default) != (components[j] == prov.Default) {
				return components[i] == prov.Default
			}
			return components[i] < components[j]
		})
		for _, c := range components {
			doc.Provenance = append(doc.Provenance, ProvenancePayload{
				Kind:      t.Kind.String(),
				Type:      t.Name,
				Component: c,
				Fields:    prov.Fields[c],
			})
		}
	}
	return doc
}

// PayloadOf renders a single entry, tid included.
func PayloadOf(e entry.Entry) EntryPayload {
	h := e.Head()
	pl := EntryPayload{
		Kind:      e.Kind().String(),
		Type:      h.Name,
		Component: h.Component,
		TID:       h.TID,
	}
	if len(h.Fields) > 0 {
		pl.Fields = make(map[string]any, len(h.Fields))
		for k, v := range h.Fields {
			pl.Fields[k] = v
		}
	}
	switch v := e.(type) {
	case *entry.Annotation:
		pair := v.Span.Pair()
		pl.Span = &pair
	case *entry.Link:
		pl.Parent, pl.Child = v.Parent, v.Child
	case *entry.Group:
		pl.Members = append([]string(nil), v.Members...)
	}
	return pl
}
