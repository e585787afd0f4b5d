package datapack

import (
	"iter"
	"sort"
	"time"

	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/internal/datapack/entry"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/internal/datapack/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/errors"
)

type query struct {
	rng       *entry.Annotation
	component string
}

type QueryOption func(*query)

// InRange restricts results to entries contained in a's span.
func InRange(a *entry.Annotation) QueryOption {
	return func(q *query) { q.rng = a }
}

// FromComponent restricts results to entries produced by component.
func FromComponent(component string) QueryOption {
	return func(q *query) { q.component = component }
}

func (p *DataPack) collections() index.Collections {
	return index.Collections{
		Annotations: p.annotations,
		Links:       p.links,
		Groups:      p.groups,
	}
}

// GetCoverageIndex returns, for every annotation of outer, the ids of inner
// entries contained in it, building and caching the index if no cached index
// answers the query.
func (p *DataPack) GetCoverageIndex(outer, inner entry.Type) (map[string]index.IDSet, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cov, err := p.index.GetCoverageIndex(p.collections(), outer, inner)
	if err != nil {
		p.metrics.Error(string(apperrors.Classify(err)))
		return nil, err
	}
	p.logger.Debug("coverage index resolved",
		"outer", outer.String(),
		"inner", inner.String(),
		"tier", cov.Tier().String(),
	)
	return cov.Materialize(), nil
}

// BuildCoverageIndex builds the exact (outer, inner) coverage index now,
// replacing any cached copy.
func (p *DataPack) BuildCoverageIndex(outer, inner entry.Type) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.index.BuildCoverageIndex(p.collections(), outer, inner); err != nil {
		p.metrics.Error(string(apperrors.Classify(err)))
		return err
	}
	return nil
}

// GetEntries returns the entries of typ, optionally restricted to a range
// annotation and a producing component. The matching id set is resolved when
// GetEntries is called; each iteration of the returned sequence walks the
// store afresh. Annotations come in span order, followed by links and then
// groups in admission order.
func (p *DataPack) GetEntries(typ entry.Type, opts ...QueryOption) (iter.Seq[entry.Entry], error) {
	var q query
	for _, opt := range opts {
		opt(&q)
	}
	ids, rng, err := p.resolve(typ, q)
	if err != nil {
		p.metrics.Error(string(apperrors.Classify(err)))
		return nil, err
	}
	return func(yield func(entry.Entry) bool) {
		for _, e := range p.collect(typ, rng, ids) {
			if !yield(e) {
				return
			}
		}
	}, nil
}

// ListEntries is GetEntries collected into a slice.
func (p *DataPack) ListEntries(typ entry.Type, opts ...QueryOption) ([]entry.Entry, error) {
	seq, err := p.GetEntries(typ, opts...)
	if err != nil {
		return nil, err
	}
	var out []entry.Entry
	for e := range seq {
		out = append(out, e)
	}
	return out, nil
}

// resolve returns the ids matching typ and q, and the stored range
// annotation when q names one.
func (p *DataPack) resolve(typ entry.Type, q query) (index.IDSet, *entry.Annotation, error) {
	if err := typ.Validate(); err != nil {
		return nil, nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	var rng *entry.Annotation
	ids := p.index.TypeIDs(typ)
	if q.component != "" {
		ids = ids.Intersect(p.index.ComponentIDs(q.component))
	}
	if q.rng != nil {
		stored, ok := p.index.Entry(q.rng.TID)
		if !ok {
			return nil, nil, apperrors.Newf(apperrors.ErrEntryNotFound, "range annotation %q is not stored", q.rng.TID)
		}
		rng, ok = stored.(*entry.Annotation)
		if !ok {
			return nil, nil, apperrors.Newf(apperrors.ErrTypeMismatch, "range entry %q is a %s", q.rng.TID, stored.Kind())
		}
		cov, err := p.index.GetCoverageIndex(p.collections(), entry.TypeOf(rng), typ)
		if err != nil {
			return nil, nil, err
		}
		ids = ids.Intersect(cov.Covered(rng.TID))
	}
	p.metrics.QueryResolved(time.Since(start))
	return ids, rng, nil
}

func (p *DataPack) collect(typ entry.Type, rng *entry.Annotation, ids index.IDSet) []entry.Entry {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]entry.Entry, 0, len(ids))
	if len(ids) == 0 {
		return out
	}
	if typ.Includes(entry.KindAnnotation) {
		lo, hi := 0, len(p.annotations)
		if rng != nil {
			lo = sort.Search(len(p.annotations), func(i int) bool {
				return p.annotations[i].Span.Begin >= rng.Span.Begin
			})
			hi = sort.Search(len(p.annotations), func(i int) bool {
				return p.annotations[i].Span.Begin > rng.Span.End
			})
		}
		for _, a := range p.annotations[lo:hi] {
			if ids.Has(a.TID) {
				out = append(out, a)
			}
		}
	}
	if typ.Includes(entry.KindLink) {
		for _, l := range p.links {
			if ids.Has(l.TID) {
				out = append(out, l)
			}
		}
	}
	if typ.Includes(entry.KindGroup) {
		for _, g := range p.groups {
			if ids.Has(g.TID) {
				out = append(out, g)
			}
		}
	}
	return out
}
