package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/internal/datapack"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/internal/datapack/entry"
	apperrors "github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/errors"
)

// DocumentContext makes the whole document a single instance.
const DocumentContext = "document"

// Column names emitted regardless of the requested fields.
const (
	ColumnSpan = "span"
	ColumnText = "text"
)

const (
	prefixParent  = "parent"
	prefixChild   = "child"
	prefixMembers = "members"
)

// FieldRequest selects the component whose entries are extracted and the
// fields read from them. An empty Component means the type's default.
type FieldRequest struct {
	Component string   `json:"component,omitempty" yaml:"component"`
	Fields    []string `json:"fields,omitempty" yaml:"fields"`
}

// Request describes one extraction over a pack. Context is either
// DocumentContext or the name of an annotation type whose entries delimit
// the instances. The maps are keyed by entry type name.
type Request struct {
	Context     string                  `json:"context" yaml:"context"`
	Annotations map[string]FieldRequest `json:"annotations,omitempty" yaml:"annotations"`
	Links       map[string]FieldRequest `json:"links,omitempty" yaml:"links"`
	Groups      map[string]FieldRequest `json:"groups,omitempty" yaml:"groups"`
	Offset      int                     `json:"offset,omitempty" yaml:"offset"`
}

func (r Request) isDocument() bool {
	return r.Context == "" || strings.EqualFold(r.Context, DocumentContext)
}

// Fingerprint returns a canonical encoding of r; requests that select the
// same data share a fingerprint.
func (r Request) Fingerprint() string {
	canon := Request{
		Context:     r.Context,
		Offset:      r.Offset,
		Annotations: canonical(r.Annotations),
		Links:       canonical(r.Links),
		Groups:      canonical(r.Groups),
	}
	if r.isDocument() {
		canon.Context = DocumentContext
	}
	b, _ := json.Marshal(canon)
	return string(b)
}

// Key is a short stable hash of the fingerprint, used to name stored and
// cached extractions.
func (r Request) Key() string {
	sum := sha256.Sum256([]byte(r.Fingerprint()))
	return hex.EncodeToString(sum[:16])
}

func canonical(in map[string]FieldRequest) map[string]FieldRequest {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]FieldRequest, len(in))
	for k, v := range in {
		out[k] = FieldRequest{Component: v.Component, Fields: distinct(v.Fields)}
	}
	return out
}

func distinct(fields []string) []string {
	if len(fields) == 0 {
		return nil
	}
	out := append([]string(nil), fields...)
	sort.Strings(out)
	n := 0
	for i, f := range out {
		if i > 0 && f == out[n-1] {
			continue
		}
		out[n] = f
		n++
	}
	return out[:n]
}

// plan is a validated FieldRequest for one entry type.
type plan struct {
	name      string
	typ       entry.Type
	component string

	// fields are read from the entry itself.
	fields []string
	// nested holds prefix.field selections split by prefix.
	nested map[string][]string
}

func (pl *plan) wants(prefix string) bool {
	_, ok := pl.nested[prefix]
	return ok
}

func isReserved(field string) bool {
	switch field {
	case entry.FieldTID, entry.FieldComponent, entry.FieldSpan,
		entry.FieldParent, entry.FieldChild, entry.FieldMembers:
		return true
	}
	return false
}

func newPlan(p *datapack.DataPack, kind entry.Kind, name string, req FieldRequest) (*plan, error) {
	if name == "" {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, "%s request needs a type name", kind)
	}
	typ := entry.Type{Kind: kind, Name: name}
	component, err := p.ResolveComponent(typ, req.Component)
	if err != nil {
		return nil, err
	}
	pl := &plan{name: name, typ: typ, component: component, nested: make(map[string][]string)}

	for _, f := range distinct(req.Fields) {
		parts := strings.Split(f, ".")
		switch {
		case len(parts) > 2:
			return nil, apperrors.Newf(apperrors.ErrInvalidInput, "too many delimiters in field name %q", f)
		case len(parts) == 2:
			prefix, sub := parts[0], parts[1]
			if sub == "" || !nestable(kind, prefix) {
				return nil, apperrors.Newf(apperrors.ErrInvalidInput, "field %q cannot be read from %s", f, typ)
			}
			sel := pl.nested[prefix]
			if sub != ColumnSpan && sub != ColumnText {
				sel = append(sel, sub)
			}
			pl.nested[prefix] = sel
		default:
			if kind == entry.KindAnnotation && (f == ColumnSpan || f == ColumnText) {
				continue
			}
			if !isReserved(f) {
				if err := p.CheckFields(typ, component, f); err != nil {
					return nil, err
				}
			}
			pl.fields = append(pl.fields, f)
		}
	}
	return pl, nil
}

func nestable(kind entry.Kind, prefix string) bool {
	switch kind {
	case entry.KindLink:
		return prefix == prefixParent || prefix == prefixChild
	case entry.KindGroup:
		return prefix == prefixMembers
	}
	return false
}

func plans(p *datapack.DataPack, kind entry.Kind, reqs map[string]FieldRequest, skip string) ([]*plan, error) {
	names := make([]string, 0, len(reqs))
	for name := range reqs {
		if kind == entry.KindAnnotation && name == skip {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*plan, 0, len(names))
	for _, name := range names {
		pl, err := newPlan(p, kind, name, reqs[name])
		if err != nil {
			return nil, err
		}
		out = append(out, pl)
	}
	return out, nil
}
