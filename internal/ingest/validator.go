package ingest

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/internal/datapack/entry"
	apperrors "github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/errors"
)

const (
	maxTextLength  = 1048576
	maxDocIDLength = 255
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s:%s", k, e.Fields[k]))
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return apperrors.ErrInvalidInput
}

// Decode parses a JSON document payload.
func Decode(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, "decoding document: %v", err)
	}
	return &doc, nil
}

// Validate checks doc and returns a ValidationError naming every offending
// field. Links and groups may only reference tids declared in the payload,
// and equal entries may not be declared under two different tids.
func Validate(doc *Document) error {
	errs := make(map[string]string)

	if strings.TrimSpace(doc.Text) == "" {
		errs["text"] = "text is required"
	} else if len(doc.Text) > maxTextLength {
		errs["text"] = fmt.Sprintf("text must be at most %d bytes", maxTextLength)
	}
	if len(doc.DocID) > maxDocIDLength {
		errs["doc_id"] = fmt.Sprintf("doc_id must be at most %d characters", maxDocIDLength)
	}

	declared := make(map[string]int, len(doc.Entries))
	for i, e := range doc.Entries {
		if e.TID == "" {
			continue
		}
		if j, dup := declared[e.TID]; dup {
			errs[fmt.Sprintf("entries[%d].tid", i)] = fmt.Sprintf("tid %q already declared by entries[%d]", e.TID, j)
			continue
		}
		declared[e.TID] = i
	}

	for i, e := range doc.Entries {
		prefix := fmt.Sprintf("entries[%d]", i)
		kind, err := entry.ParseKind(e.Kind)
		if err != nil || kind == entry.KindEntry {
			errs[prefix+".kind"] = "kind must be one of annotation, link, group"
			continue
		}
		if strings.TrimSpace(e.Type) == "" {
			errs[prefix+".type"] = "type is required"
		}
		if strings.TrimSpace(e.Component) == "" {
			errs[prefix+".component"] = "component is required"
		}
		switch kind {
		case entry.KindAnnotation:
			switch {
			case e.Span == nil:
				errs[prefix+".span"] = "span is required"
			case e.Span[0] < 0 || e.Span[1] < e.Span[0]:
				errs[prefix+".span"] = fmt.Sprintf("span [%d,%d) is malformed", e.Span[0], e.Span[1])
			case e.Span[1] > len(doc.Text):
				errs[prefix+".span"] = fmt.Sprintf("span end %d exceeds text length %d", e.Span[1], len(doc.Text))
			}
		case entry.KindLink:
			for field, ref := range map[string]string{"parent": e.Parent, "child": e.Child} {
				if msg := checkRef(ref, declared); msg != "" {
					errs[prefix+"."+field] = msg
				}
			}
		case entry.KindGroup:
			if len(e.Members) == 0 {
				errs[prefix+".members"] = "group must have at least one member"
			}
			for j, m := range e.Members {
				if msg := checkRef(m, declared); msg != "" {
					errs[fmt.Sprintf("%s.members[%d]", prefix, j)] = msg
				}
			}
		}
	}

	// Equal entries collapse into one on admission, so a second explicit tid
	// for the same entry would leave its references dangling.
	equal := make(map[string]int)
	for i, e := range doc.Entries {
		if e.TID == "" {
			continue
		}
		key, ok := payloadKey(e)
		if !ok {
			continue
		}
		j, seen := equal[key]
		if !seen {
			equal[key] = i
			continue
		}
		if doc.Entries[j].TID != e.TID {
			errs[fmt.Sprintf("entries[%d].tid", i)] = fmt.Sprintf("entry equals entries[%d], which is declared as %q", j, doc.Entries[j].TID)
		}
	}

	for i, pv := range doc.Provenance {
		prefix := fmt.Sprintf("provenance[%d]", i)
		if kind, err := entry.ParseKind(pv.Kind); err != nil || kind == entry.KindEntry {
			errs[prefix+".kind"] = "kind must be one of annotation, link, group"
		}
		if strings.TrimSpace(pv.Type) == "" {
			errs[prefix+".type"] = "type is required"
		}
		if strings.TrimSpace(pv.Component) == "" {
			errs[prefix+".component"] = "component is required"
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// payloadKey is the admission equality key of e, or false when e is too
// malformed to have one.
func payloadKey(e EntryPayload) (string, bool) {
	kind, err := entry.ParseKind(e.Kind)
	if err != nil || kind == entry.KindEntry {
		return "", false
	}
	if kind == entry.KindAnnotation && e.Span == nil {
		return "", false
	}
	ent, err := toEntry(e)
	if err != nil {
		return "", false
	}
	return kind.String() + "\x00" + entry.DedupKey(ent), true
}

func checkRef(tid string, declared map[string]int) string {
	if tid == "" {
		return "reference is required"
	}
	if _, ok := declared[tid]; !ok {
		return fmt.Sprintf("tid %q is not declared in this document", tid)
	}
	return ""
}
