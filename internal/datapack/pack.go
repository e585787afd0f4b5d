// Package datapack implements the annotation store: a document's text plus a
// growing collection of annotations, links and groups, each tagged with the
// component that produced it, and the indexes that answer structural and
// containment queries over them.
//
// A DataPack is safe for concurrent use. Admissions and index builds take
// the write lock; lookups share the read lock.
package datapack

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/internal/datapack/entry"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/internal/datapack/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/span"
)

// Meta is document-level information about a pack.
type Meta struct {
	DocID string
}

type DataPack struct {
	mu sync.RWMutex

	text string
	meta Meta

	annotations []*entry.Annotation
	links       []*entry.Link
	groups      []*entry.Group
	dedup       map[string]string

	index   *index.DataIndex
	metas   *TypeMetadataTable
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type Option func(*DataPack)

func WithDocID(docID string) Option {
	return func(p *DataPack) { p.meta.DocID = docID }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *DataPack) { p.metrics = m }
}

func New(text string, opts ...Option) *DataPack {
	p := &DataPack{
		text:        text,
		annotations: make([]*entry.Annotation, 0),
		links:       make([]*entry.Link, 0),
		groups:      make([]*entry.Group, 0),
		dedup:       make(map[string]string),
		metas:       NewTypeMetadataTable(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.index = index.New(p.metrics)
	p.logger = slog.Default().With("component", "datapack", "doc_id", p.meta.DocID)
	return p
}

// Admit stores e and returns its tid. If an equal entry is already stored,
// its tid is returned and nothing changes. A missing tid is assigned from
// the per-type counter.
func (p *DataPack) Admit(e entry.Entry) (string, error) {
	if err := validateEntry(e); err != nil {
		p.metrics.Error(string(apperrors.Classify(err)))
		return "", err
	}
	h := e.Head()
	typ := entry.TypeOf(e)
	key := e.Kind().String() + "\x00" + entry.DedupKey(e)

	p.mu.Lock()
	defer p.mu.Unlock()

	if tid, ok := p.dedup[key]; ok {
		p.metrics.DuplicateAdmission(e.Kind().String())
		return tid, nil
	}
	if h.TID == "" {
		h.TID = p.metas.nextID(typ, func(id string) bool {
			_, taken := p.index.Entry(id)
			return taken
		})
	} else if _, taken := p.index.Entry(h.TID); taken {
		err := apperrors.Newf(apperrors.ErrDuplicateID, "tid %q already names another entry", h.TID)
		p.metrics.Error(string(apperrors.Classify(err)))
		return "", err
	}

	switch v := e.(type) {
	case *entry.Annotation:
		p.insertAnnotation(v)
	case *entry.Link:
		p.links = append(p.links, v)
	case *entry.Group:
		p.groups = append(p.groups, v)
	}
	p.dedup[key] = h.TID
	p.metas.noteComponent(typ, h.Component)

	p.index.UpdateBasicIndex(e)
	switch v := e.(type) {
	case *entry.Link:
		if p.index.LinkIndexActive() {
			p.index.UpdateLinkIndex(v)
		}
	case *entry.Group:
		if p.index.GroupIndexActive() {
			p.index.UpdateGroupIndex(v)
		}
	}
	p.index.InvalidateCoverage()
	p.metrics.EntryAdmitted(e.Kind().String())
	return h.TID, nil
}

// insertAnnotation keeps annotations sorted by span; equal spans keep
// admission order.
func (p *DataPack) insertAnnotation(a *entry.Annotation) {
	i := sort.Search(len(p.annotations), func(i int) bool {
		return p.annotations[i].Span.Compare(a.Span) > 0
	})
	p.annotations = append(p.annotations, nil)
	copy(p.annotations[i+1:], p.annotations[i:])
	p.annotations[i] = a
}

func validateEntry(e entry.Entry) error {
	var h *entry.Header
	switch v := e.(type) {
	case *entry.Annotation:
		if v == nil {
			return apperrors.New(apperrors.ErrInvalidEntryKind, "nil annotation")
		}
		if err := v.Span.Validate(); err != nil {
			return apperrors.Newf(apperrors.ErrInvalidEntry, "annotation %s: %v", v.Name, err)
		}
		h = &v.Header
	case *entry.Link:
		if v == nil {
			return apperrors.New(apperrors.ErrInvalidEntryKind, "nil link")
		}
		if v.Parent == "" || v.Child == "" {
			return apperrors.Newf(apperrors.ErrInvalidEntry, "link %s needs both parent and child", v.Name)
		}
		h = &v.Header
	case *entry.Group:
		if v == nil {
			return apperrors.New(apperrors.ErrInvalidEntryKind, "nil group")
		}
		if len(v.Members) == 0 {
			return apperrors.Newf(apperrors.ErrInvalidEntry, "group %s has no members", v.Name)
		}
		h = &v.Header
	default:
		return apperrors.Newf(apperrors.ErrInvalidEntryKind, "%T is not an annotation, link or group", e)
	}
	if h.Name == "" {
		return apperrors.New(apperrors.ErrInvalidEntry, "entry type name is required")
	}
	return nil
}

func (p *DataPack) Meta() Meta {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.meta
}

func (p *DataPack) SetDocID(docID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.meta.DocID = docID
	p.logger = slog.Default().With("component", "datapack", "doc_id", docID)
}

// FullText returns the document text.
func (p *DataPack) FullText() string {
	return p.text
}

// Text returns the text covered by s.
func (p *DataPack) Text(s span.Span) (string, error) {
	if err := s.Validate(); err != nil {
		return "", apperrors.Newf(apperrors.ErrInvalidInput, "%v", err)
	}
	if s.End > len(p.text) {
		return "", apperrors.Newf(apperrors.ErrInvalidInput, "span %s exceeds text length %d", s, len(p.text))
	}
	return p.text[s.Begin:s.End], nil
}

// Len returns the number of stored entries.
func (p *DataPack) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.index.Len()
}

// AnnotationsInOrder returns the annotations sorted by span.
func (p *DataPack) AnnotationsInOrder() []*entry.Annotation {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*entry.Annotation(nil), p.annotations...)
}

// Links returns the links in admission order.
func (p *DataPack) Links() []*entry.Link {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*entry.Link(nil), p.links...)
}

// Groups returns the groups in admission order.
func (p *DataPack) Groups() []*entry.Group {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*entry.Group(nil), p.groups...)
}

func (p *DataPack) EntryByID(tid string) (entry.Entry, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.index.Entry(tid)
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrEntryNotFound, "no entry with tid %q", tid)
	}
	return e, nil
}

// BuildLinkIndex activates the link index. Calling it again is a no-op.
func (p *DataPack) BuildLinkIndex() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ensureLinkIndex()
}

// BuildGroupIndex activates the group index. Calling it again is a no-op.
func (p *DataPack) BuildGroupIndex() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ensureGroupIndex()
}

func (p *DataPack) ensureLinkIndex() {
	if !p.index.LinkIndexActive() {
		p.index.UpdateLinkIndex(p.links...)
	}
}

func (p *DataPack) ensureGroupIndex() {
	if !p.index.GroupIndexActive() {
		p.index.UpdateGroupIndex(p.groups...)
	}
}

// ParentLinks returns the ids of links whose parent is tid, activating the
// link index on first use.
func (p *DataPack) ParentLinks(tid string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ensureLinkIndex()
	return p.index.ParentLinks(tid).Sorted()
}

// ChildLinks returns the ids of links whose child is tid.
func (p *DataPack) ChildLinks(tid string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ensureLinkIndex()
	return p.index.ChildLinks(tid).Sorted()
}

// GroupsOf returns the ids of groups listing tid as a member.
func (p *DataPack) GroupsOf(tid string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ensureGroupIndex()
	return p.index.GroupsOf(tid).Sorted()
}

func (p *DataPack) String() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return fmt.Sprintf("DataPack(%s: %d annotations, %d links, %d groups)",
		p.meta.DocID, len(p.annotations), len(p.links), len(p.groups))
}
