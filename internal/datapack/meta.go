package datapack

import (
	"fmt"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/internal/datapack/entry"
	apperrors "github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/errors"
)

// TypeMeta is the bookkeeping kept per concrete entry type.
type TypeMeta struct {
	idCounter        int
	fields           map[string]map[string]struct{}
	components       map[string]struct{}
	defaultComponent string
}

func newTypeMeta() *TypeMeta {
	return &TypeMeta{
		fields:     make(map[string]map[string]struct{}),
		components: make(map[string]struct{}),
	}
}

// DefaultComponent is the component queries fall back to when none is named.
func (m *TypeMeta) DefaultComponent() string {
	return m.defaultComponent
}

// Fields returns the fields component is recorded as having populated.
func (m *TypeMeta) Fields(component string) []string {
	out := make([]string, 0, len(m.fields[component]))
	for f := range m.fields[component] {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func (m *TypeMeta) hasField(component, field string) bool {
	_, ok := m.fields[component][field]
	return ok
}

func (m *TypeMeta) knowsComponent(component string) bool {
	if _, ok := m.fields[component]; ok {
		return true
	}
	_, ok := m.components[component]
	return ok
}

// TypeMetadataTable owns the TypeMeta of every concrete type in one store.
// Entries are created lazily and never removed.
type TypeMetadataTable struct {
	metas map[entry.Type]*TypeMeta
}

func NewTypeMetadataTable() *TypeMetadataTable {
	return &TypeMetadataTable{metas: make(map[entry.Type]*TypeMeta)}
}

func (t *TypeMetadataTable) Lookup(typ entry.Type) (*TypeMeta, bool) {
	m, ok := t.metas[typ]
	return m, ok
}

func (t *TypeMetadataTable) ensure(typ entry.Type) *TypeMeta {
	m, ok := t.metas[typ]
	if !ok {
		m = newTypeMeta()
		t.metas[typ] = m
	}
	return m
}

// nextID draws ids of the form <Name>.<n> until taken reports one free.
func (t *TypeMetadataTable) nextID(typ entry.Type, taken func(string) bool) string {
	m := t.ensure(typ)
	for {
		id := fmt.Sprintf("%s.%d", typ.Name, m.idCounter)
		m.idCounter++
		if !taken(id) {
			return id
		}
	}
}

// Record notes that component populated fields on typ. The identity field is
// always included and the first recording component becomes the default.
func (t *TypeMetadataTable) Record(typ entry.Type, component string, fields ...string) {
	m := t.ensure(typ)
	if m.defaultComponent == "" {
		m.defaultComponent = component
	}
	set, ok := m.fields[component]
	if !ok {
		set = make(map[string]struct{})
		m.fields[component] = set
	}
	set[entry.FieldTID] = struct{}{}
	for _, f := range fields {
		set[f] = struct{}{}
	}
}

func (t *TypeMetadataTable) noteComponent(typ entry.Type, component string) {
	t.ensure(typ).components[component] = struct{}{}
}

func concreteType(typ entry.Type) error {
	if err := typ.Validate(); err != nil {
		return err
	}
	if typ.Kind == entry.KindEntry || typ.Generic() {
		return apperrors.Newf(apperrors.ErrTypeMismatch, "%s is not a concrete entry type", typ)
	}
	return nil
}

// RecordFieldProvenance records that component populated fields on typ.
func (p *DataPack) RecordFieldProvenance(typ entry.Type, component string, fields ...string) error {
	if err := concreteType(typ); err != nil {
		return err
	}
	if component == "" {
		return apperrors.New(apperrors.ErrInvalidInput, "component is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.metas.Record(typ, component, fields...)
	return nil
}

// ResolveComponent returns component, or the default component of typ when
// component is empty, failing when typ has no entries or provenance from it.
func (p *DataPack) ResolveComponent(typ entry.Type, component string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	m, ok := p.metas.Lookup(typ)
	if !ok {
		return "", apperrors.Newf(apperrors.ErrUnknownType, "document %q has no %s entries", p.meta.DocID, typ)
	}
	if component == "" {
		component = m.defaultComponent
	}
	if component == "" {
		return "", apperrors.Newf(apperrors.ErrUnknownComponent, "%s has no default component", typ)
	}
	if !m.knowsComponent(component) {
		return "", apperrors.Newf(apperrors.ErrUnknownComponent, "document %q has no %s entries generated by %q", p.meta.DocID, typ, component)
	}
	return component, nil
}

// CheckFields fails with ErrUnknownField on the first field component is not
// recorded as having populated on typ.
func (p *DataPack) CheckFields(typ entry.Type, component string, fields ...string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	m, ok := p.metas.Lookup(typ)
	if !ok {
		return apperrors.Newf(apperrors.ErrUnknownType, "document %q has no %s entries", p.meta.DocID, typ)
	}
	for _, f := range fields {
		if !m.hasField(component, f) {
			return apperrors.Newf(apperrors.ErrUnknownField, "%s generated by %q has no field named %q", typ, component, f)
		}
	}
	return nil
}

// TypeMeta returns a copy-safe view of typ's provenance: its default
// component and the recorded fields per component.
func (p *DataPack) TypeMeta(typ entry.Type) (Provenance, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	m, ok := p.metas.Lookup(typ)
	if !ok {
		return Provenance{}, false
	}
	prov := Provenance{Default: m.defaultComponent, Fields: make(map[string][]string, len(m.fields))}
	for c := range m.fields {
		prov.Fields[c] = m.Fields(c)
	}
	return prov, true
}

// Provenance describes which component populated which fields on a type.
type Provenance struct {
	Default string
	Fields  map[string][]string
}
