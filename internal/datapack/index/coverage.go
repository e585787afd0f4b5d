package index

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/internal/datapack/entry"
	apperrors "github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/span"
)

type coverageKey struct {
	outer entry.Type
	inner entry.Type
}

// Tier records which cached index answered a coverage lookup.
type Tier int

const (
	TierExact Tier = iota + 1
	TierAnyOuter
	TierAnyInner
	TierGeneric
	TierBuilt
)

func (t Tier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierAnyOuter:
		return "any_outer"
	case TierAnyInner:
		return "any_inner"
	case TierGeneric:
		return "generic"
	case TierBuilt:
		return "built"
	default:
		return "unknown"
	}
}

// Collections are the raw entry sequences a coverage build scans.
// Annotations must be sorted by span. A nil Links or Groups slice means the
// caller did not supply it.
type Collections struct {
	Annotations []*entry.Annotation
	Links       []*entry.Link
	Groups      []*entry.Group
}

// BuildCoverageIndex computes, for every annotation of outer, the ids of the
// inner entries its span contains, and caches the result under
// (outer, inner). Links and groups are discovered through the annotations
// they reference, so the link or group index is activated first when inner
// can include them.
func (x *DataIndex) BuildCoverageIndex(c Collections, outer, inner entry.Type) error {
	if err := outer.Validate(); err != nil {
		return err
	}
	if !outer.AnnotationCompatible() {
		return apperrors.Newf(apperrors.ErrTypeMismatch, "outer type %s is not an annotation type", outer)
	}
	if err := inner.Validate(); err != nil {
		return err
	}

	withLinks := inner.Includes(entry.KindLink)
	if withLinks && !x.links.Active() {
		if c.Links == nil {
			return apperrors.Newf(apperrors.ErrMissingIndexInput, "covering %s needs links to build the link index", inner)
		}
		x.UpdateLinkIndex(c.Links...)
	}
	withGroups := inner.Includes(entry.KindGroup)
	if withGroups && !x.groups.Active() {
		if c.Groups == nil {
			return apperrors.Newf(apperrors.ErrMissingIndexInput, "covering %s needs groups to build the group index", inner)
		}
		x.UpdateGroupIndex(c.Groups...)
	}

	start := time.Now()
	built := make(map[string]IDSet)
	anns := c.Annotations
	for i, o := range anns {
		if !outer.AcceptsEntry(o) {
			continue
		}
		covered := make(IDSet)
		x.collectCovered(anns, i, -1, o.Span, inner, covered, withLinks, withGroups)
		x.collectCovered(anns, i, 1, o.Span, inner, covered, withLinks, withGroups)
		built[o.TID] = covered
	}
	x.coverage[coverageKey{outer: outer, inner: inner}] = built

	elapsed := time.Since(start)
	x.metrics.CoverageBuilt(outer.String(), inner.String(), elapsed)
	x.logger.Debug("coverage index built",
		"outer", outer.String(),
		"inner", inner.String(),
		"outers", len(built),
		"duration", elapsed,
	)
	return nil
}

// collectCovered walks anns from position from in direction step. Overlap
// with the outer span shrinks monotonically with distance in span order, so
// the walk stops at the first candidate that does not overlap and is not
// contained.
func (x *DataIndex) collectCovered(anns []*entry.Annotation, from, step int, outer span.Span, inner entry.Type, into IDSet, withLinks, withGroups bool) {
	for k := from; k >= 0 && k < len(anns); k += step {
		cand := anns[k]
		if !outer.Contains(cand.Span) {
			if !outer.Overlaps(cand.Span) {
				return
			}
			continue
		}
		if inner.AcceptsEntry(cand) {
			into.Add(cand.TID)
		}
		if withLinks {
			x.addStructural(x.links.children[cand.TID], outer, inner, into)
			x.addStructural(x.links.parents[cand.TID], outer, inner, into)
		}
		if withGroups {
			x.addStructural(x.groups.members[cand.TID], outer, inner, into)
		}
	}
}

func (x *DataIndex) addStructural(ids IDSet, outer span.Span, inner entry.Type, into IDSet) {
	for id := range ids {
		if into.Has(id) {
			continue
		}
		e, ok := x.entries[id]
		if !ok || !inner.AcceptsEntry(e) {
			continue
		}
		if x.InSpan(e, outer) {
			into.Add(id)
		}
	}
}

// InSpan reports whether e lies within s. A link is within s when both its
// endpoints are; a group when all of its members are. Structural entries
// referencing unknown or non-annotation entries are never within a span.
func (x *DataIndex) InSpan(e entry.Entry, s span.Span) bool {
	derived, ok := x.DerivedSpan(e)
	return ok && s.Contains(derived)
}

// DerivedSpan returns the span of an annotation, or the smallest span
// enclosing every annotation a link or group references.
func (x *DataIndex) DerivedSpan(e entry.Entry) (span.Span, bool) {
	switch v := e.(type) {
	case *entry.Annotation:
		return v.Span, true
	case *entry.Link:
		return x.enclosing([]string{v.Parent, v.Child})
	case *entry.Group:
		return x.enclosing(v.Members)
	default:
		return span.Span{}, false
	}
}

func (x *DataIndex) enclosing(ids []string) (span.Span, bool) {
	if len(ids) == 0 {
		return span.Span{}, false
	}
	var out span.Span
	for i, id := range ids {
		a, ok := x.entries[id].(*entry.Annotation)
		if !ok {
			return span.Span{}, false
		}
		if i == 0 {
			out = a.Span
			continue
		}
		out.Begin = min(out.Begin, a.Span.Begin)
		out.End = max(out.End, a.Span.End)
	}
	return out, true
}

// GetCoverageIndex resolves the coverage of inner by outer, trying in order
// the exact cached index, the any-outer index for inner, the any-inner index
// for outer and the fully generic index. When none is cached the exact index
// is built from c. Looser indexes are filtered back to outer and inner, so
// every tier answers exactly as the exact index would.
func (x *DataIndex) GetCoverageIndex(c Collections, outer, inner entry.Type) (*Coverage, error) {
	if err := outer.Validate(); err != nil {
		return nil, err
	}
	if !outer.AnnotationCompatible() {
		return nil, apperrors.Newf(apperrors.ErrTypeMismatch, "outer type %s is not an annotation type", outer)
	}
	if err := inner.Validate(); err != nil {
		return nil, err
	}

	candidates := []struct {
		key  coverageKey
		tier Tier
	}{
		{coverageKey{outer, inner}, TierExact},
		{coverageKey{entry.AnyAnnotation, inner}, TierAnyOuter},
		{coverageKey{outer, entry.AnyEntry}, TierAnyInner},
		{coverageKey{entry.AnyAnnotation, entry.AnyEntry}, TierGeneric},
	}
	for _, cand := range candidates {
		if sets, ok := x.coverage[cand.key]; ok {
			x.metrics.CoverageLookup(cand.tier.String())
			return x.view(outer, inner, cand.key, cand.tier, sets), nil
		}
	}

	if err := x.BuildCoverageIndex(c, outer, inner); err != nil {
		return nil, err
	}
	key := coverageKey{outer, inner}
	x.metrics.CoverageLookup(TierBuilt.String())
	return x.view(outer, inner, key, TierBuilt, x.coverage[key]), nil
}

// HasCoverageIndex reports whether the exact (outer, inner) index is cached.
func (x *DataIndex) HasCoverageIndex(outer, inner entry.Type) bool {
	_, ok := x.coverage[coverageKey{outer, inner}]
	return ok
}

// InvalidateCoverage drops every cached coverage index. Coverage is a
// snapshot of the annotations at build time, so the store calls this when
// admissions would make it stale.
func (x *DataIndex) InvalidateCoverage() {
	if len(x.coverage) == 0 {
		return
	}
	x.logger.Debug("invalidating coverage indexes", "count", len(x.coverage))
	x.coverage = make(map[coverageKey]map[string]IDSet)
}

func (x *DataIndex) view(outer, inner entry.Type, source coverageKey, tier Tier, sets map[string]IDSet) *Coverage {
	cov := &Coverage{
		Outer: outer,
		Inner: inner,
		tier:  tier,
		sets:  sets,
	}
	if source.outer != outer {
		cov.outerOK = func(tid string) bool {
			e, ok := x.entries[tid]
			return ok && outer.AcceptsEntry(e)
		}
	}
	if source.inner != inner {
		cov.innerOK = func(tid string) bool {
			e, ok := x.entries[tid]
			return ok && inner.AcceptsEntry(e)
		}
	}
	return cov
}

// Coverage is a read view over a cached coverage index, narrowed to the
// requested outer and inner types. It reads the owning index lazily and is
// only valid while the owner's lock is held.
type Coverage struct {
	Outer entry.Type
	Inner entry.Type

	tier    Tier
	sets    map[string]IDSet
	outerOK func(string) bool
	innerOK func(string) bool
}

func (c *Coverage) Tier() Tier {
	return c.tier
}

// Covered returns the inner ids contained in the outer entry outerTID.
func (c *Coverage) Covered(outerTID string) IDSet {
	if c.outerOK != nil && !c.outerOK(outerTID) {
		return make(IDSet)
	}
	ids := c.sets[outerTID]
	if c.innerOK == nil {
		return ids.Clone()
	}
	out := make(IDSet, len(ids))
	for id := range ids {
		if c.innerOK(id) {
			out.Add(id)
		}
	}
	return out
}

// Materialize copies the view into a standalone mapping safe to use after
// the owner's lock is released.
func (c *Coverage) Materialize() map[string]IDSet {
	out := make(map[string]IDSet, len(c.sets))
	for tid := range c.sets {
		if c.outerOK != nil && !c.outerOK(tid) {
			continue
		}
		out[tid] = c.Covered(tid)
	}
	return out
}
