package extract

import (
	apperrors "github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/errors"
)

// Stacked maps a column name to one column slice per instance in a batch.
type Stacked map[string][][]any

// Batch stacks up to a fixed number of instances column by column.
type Batch struct {
	Seq           int                `json:"seq"`
	Size          int                `json:"size"`
	Context       []string           `json:"context"`
	Offset        []int              `json:"offset"`
	ContextFields map[string][]any   `json:"context_fields,omitempty"`
	Annotations   map[string]Stacked `json:"annotations,omitempty"`
	Links         map[string]Stacked `json:"links,omitempty"`
	Groups        map[string]Stacked `json:"groups,omitempty"`
}

func newBatch(seq int) *Batch {
	return &Batch{
		Seq:           seq,
		ContextFields: make(map[string][]any),
		Annotations:   make(map[string]Stacked),
		Links:         make(map[string]Stacked),
		Groups:        make(map[string]Stacked),
	}
}

func (b *Batch) add(inst Instance) {
	b.Size++
	b.Context = append(b.Context, inst.Context)
	b.Offset = append(b.Offset, inst.Offset)
	for f, v := range inst.ContextFields {
		b.ContextFields[f] = append(b.ContextFields[f], v)
	}
	stack(b.Annotations, inst.Annotations)
	stack(b.Links, inst.Links)
	stack(b.Groups, inst.Groups)
}

func stack(into map[string]Stacked, from map[string]Columns) {
	for typ, cols := range from {
		s, ok := into[typ]
		if !ok {
			s = make(Stacked, len(cols))
			into[typ] = s
		}
		for name, col := range cols {
			s[name] = append(s[name], col)
		}
	}
}

// Batches calls fn with batches of at most size instances, in instance
// order. The last batch may be partial; no batch is empty.
func (x *Extractor) Batches(req Request, size int, fn func(Batch) error) error {
	if size <= 0 {
		return apperrors.Newf(apperrors.ErrInvalidInput, "batch size must be positive, got %d", size)
	}
	seq := 0
	cur := newBatch(seq)
	err := x.Each(req, func(inst Instance) error {
		cur.add(inst)
		if cur.Size < size {
			return nil
		}
		full := cur
		seq++
		cur = newBatch(seq)
		return fn(*full)
	})
	if err != nil {
		return err
	}
	if cur.Size > 0 {
		return fn(*cur)
	}
	return nil
}
