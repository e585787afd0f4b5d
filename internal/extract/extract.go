// Package extract flattens the entries of a data pack into per-field
// columns, one instance per document or per context annotation, for
// consumption by downstream training and staging code.
package extract

import (
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/internal/datapack"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/internal/datapack/entry"
	apperrors "github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/metrics"
)

// Columns maps a column name to one value per extracted entry.
type Columns map[string][]any

// Instance is the flat record of one context.
type Instance struct {
	Context       string             `json:"context"`
	Offset        int                `json:"offset"`
	ContextFields map[string]any     `json:"context_fields,omitempty"`
	Annotations   map[string]Columns `json:"annotations,omitempty"`
	Links         map[string]Columns `json:"links,omitempty"`
	Groups        map[string]Columns `json:"groups,omitempty"`
}

type Extractor struct {
	pack    *datapack.DataPack
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(p *datapack.DataPack, m *metrics.Metrics) *Extractor {
	return &Extractor{
		pack:    p,
		metrics: m,
		logger:  slog.Default().With("component", "extractor", "doc_id", p.Meta().DocID),
	}
}

type compiled struct {
	context     *plan
	annotations []*plan
	links       []*plan
	groups      []*plan
}

func (x *Extractor) compile(req Request) (*compiled, error) {
	if req.Offset < 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, "offset %d is negative", req.Offset)
	}
	c := &compiled{}
	skip := ""
	if !req.isDocument() {
		ctx, err := newPlan(x.pack, entry.KindAnnotation, req.Context, req.Annotations[req.Context])
		if err != nil {
			return nil, err
		}
		c.context = ctx
		skip = req.Context
	}
	var err error
	if c.annotations, err = plans(x.pack, entry.KindAnnotation, req.Annotations, skip); err != nil {
		return nil, err
	}
	if c.links, err = plans(x.pack, entry.KindLink, req.Links, ""); err != nil {
		return nil, err
	}
	if c.groups, err = plans(x.pack, entry.KindGroup, req.Groups, ""); err != nil {
		return nil, err
	}
	return c, nil
}

// Each calls fn with one Instance per context in span order, skipping the
// first req.Offset contexts. Request errors are reported before fn is first
// called; an error from fn stops the walk and is returned.
func (x *Extractor) Each(req Request, fn func(Instance) error) error {
	c, err := x.compile(req)
	if err != nil {
		x.metrics.Error(string(apperrors.Classify(err)))
		return err
	}

	if c.context == nil {
		inst, err := x.instance(c, nil)
		if err != nil {
			return err
		}
		x.metrics.RecordsExtracted(1)
		return fn(inst)
	}

	contexts, err := x.pack.ListEntries(c.context.typ, datapack.FromComponent(c.context.component))
	if err != nil {
		return err
	}
	emitted := 0
	for i, e := range contexts {
		if i < req.Offset {
			continue
		}
		inst, err := x.instance(c, e.(*entry.Annotation))
		if err != nil {
			return err
		}
		x.metrics.RecordsExtracted(1)
		emitted++
		if err := fn(inst); err != nil {
			return err
		}
	}
	x.logger.Debug("extraction complete", "context", c.context.name, "instances", emitted)
	return nil
}

// All collects the instances of req.
func (x *Extractor) All(req Request) ([]Instance, error) {
	var out []Instance
	err := x.Each(req, func(inst Instance) error {
		out = append(out, inst)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (x *Extractor) instance(c *compiled, ctx *entry.Annotation) (Instance, error) {
	inst := Instance{
		Annotations: make(map[string]Columns, len(c.annotations)),
		Links:       make(map[string]Columns, len(c.links)),
		Groups:      make(map[string]Columns, len(c.groups)),
	}
	if ctx == nil {
		inst.Context = x.pack.FullText()
	} else {
		text, err := x.pack.Text(ctx.Span)
		if err != nil {
			return Instance{}, err
		}
		inst.Context = text
		inst.Offset = ctx.Span.Begin
		inst.ContextFields = make(map[string]any, len(c.context.fields))
		for _, f := range c.context.fields {
			inst.ContextFields[f] = value(ctx, f)
		}
	}

	for _, pl := range c.annotations {
		cols, err := x.annotationColumns(pl, ctx, inst.Offset)
		if err != nil {
			return Instance{}, err
		}
		inst.Annotations[pl.name] = cols
	}
	for _, pl := range c.links {
		cols, err := x.linkColumns(pl, ctx, inst.Offset)
		if err != nil {
			return Instance{}, err
		}
		inst.Links[pl.name] = cols
	}
	for _, pl := range c.groups {
		cols, err := x.groupColumns(pl, ctx, inst.Offset)
		if err != nil {
			return Instance{}, err
		}
		inst.Groups[pl.name] = cols
	}
	return inst, nil
}

func (x *Extractor) entries(pl *plan, ctx *entry.Annotation) ([]entry.Entry, error) {
	opts := []datapack.QueryOption{datapack.FromComponent(pl.component)}
	if ctx != nil {
		opts = append(opts, datapack.InRange(ctx))
	}
	return x.pack.ListEntries(pl.typ, opts...)
}

func (x *Extractor) annotationColumns(pl *plan, ctx *entry.Annotation, offset int) (Columns, error) {
	cols := newColumns(append([]string{ColumnSpan, ColumnText}, pl.fields...))
	found, err := x.entries(pl, ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range found {
		a := e.(*entry.Annotation)
		if err := x.appendSpanText(cols, "", a, offset); err != nil {
			return nil, err
		}
		for _, f := range pl.fields {
			cols[f] = append(cols[f], value(a, f))
		}
	}
	return cols, nil
}

func (x *Extractor) linkColumns(pl *plan, ctx *entry.Annotation, offset int) (Columns, error) {
	names := append([]string(nil), pl.fields...)
	for _, prefix := range []string{prefixParent, prefixChild} {
		if pl.wants(prefix) {
			names = append(names, nestedNames(prefix, pl.nested[prefix])...)
		}
	}
	cols := newColumns(names)
	found, err := x.entries(pl, ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range found {
		l := e.(*entry.Link)
		for _, f := range pl.fields {
			cols[f] = append(cols[f], value(l, f))
		}
		for _, end := range [...]struct{ prefix, tid string }{{prefixParent, l.Parent}, {prefixChild, l.Child}} {
			prefix, tid := end.prefix, end.tid
			if !pl.wants(prefix) {
				continue
			}
			a, err := x.endpoint(tid, pl.nested[prefix])
			if err != nil {
				return nil, err
			}
			if err := x.appendSpanText(cols, prefix+".", a, offset); err != nil {
				return nil, err
			}
			for _, f := range pl.nested[prefix] {
				cols[prefix+"."+f] = append(cols[prefix+"."+f], value(a, f))
			}
		}
	}
	return cols, nil
}

func (x *Extractor) groupColumns(pl *plan, ctx *entry.Annotation, offset int) (Columns, error) {
	names := append([]string(nil), pl.fields...)
	if pl.wants(prefixMembers) {
		names = append(names, nestedNames(prefixMembers, pl.nested[prefixMembers])...)
	}
	cols := newColumns(names)
	found, err := x.entries(pl, ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range found {
		g := e.(*entry.Group)
		for _, f := range pl.fields {
			cols[f] = append(cols[f], value(g, f))
		}
		if !pl.wants(prefixMembers) {
			continue
		}
		sel := pl.nested[prefixMembers]
		spans := make([]any, 0, len(g.Members))
		texts := make([]any, 0, len(g.Members))
		values := make(map[string][]any, len(sel))
		for _, tid := range g.Members {
			a, err := x.endpoint(tid, sel)
			if err != nil {
				return nil, err
			}
			text, err := x.pack.Text(a.Span)
			if err != nil {
				return nil, err
			}
			spans = append(spans, a.Span.Shift(offset).Pair())
			texts = append(texts, text)
			for _, f := range sel {
				values[f] = append(values[f], value(a, f))
			}
		}
		cols[prefixMembers+"."+ColumnSpan] = append(cols[prefixMembers+"."+ColumnSpan], spans)
		cols[prefixMembers+"."+ColumnText] = append(cols[prefixMembers+"."+ColumnText], texts)
		for _, f := range sel {
			cols[prefixMembers+"."+f] = append(cols[prefixMembers+"."+f], values[f])
		}
	}
	return cols, nil
}

// endpoint loads the annotation a link or group refers to and checks that
// its producing component recorded fields.
func (x *Extractor) endpoint(tid string, fields []string) (*entry.Annotation, error) {
	e, err := x.pack.EntryByID(tid)
	if err != nil {
		return nil, err
	}
	a, ok := e.(*entry.Annotation)
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrTypeMismatch, "%q should be an annotation but is a %s", tid, e.Kind())
	}
	for _, f := range fields {
		if isReserved(f) {
			continue
		}
		if err := x.pack.CheckFields(entry.TypeOf(a), a.Component, f); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (x *Extractor) appendSpanText(cols Columns, prefix string, a *entry.Annotation, offset int) error {
	text, err := x.pack.Text(a.Span)
	if err != nil {
		return err
	}
	cols[prefix+ColumnSpan] = append(cols[prefix+ColumnSpan], a.Span.Shift(offset).Pair())
	cols[prefix+ColumnText] = append(cols[prefix+ColumnText], text)
	return nil
}

func nestedNames(prefix string, fields []string) []string {
	out := []string{prefix + "." + ColumnSpan, prefix + "." + ColumnText}
	for _, f := range fields {
		out = append(out, prefix+"."+f)
	}
	return out
}

func newColumns(names []string) Columns {
	cols := make(Columns, len(names))
	for _, n := range names {
		cols[n] = make([]any, 0)
	}
	return cols
}

func value(e entry.Entry, field string) any {
	v, _ := entry.Field(e, field)
	return v
}
