package entry

// Reserved field names resolved from an entry's structure rather than its
// Fields map.
const (
	FieldTID       = "tid"
	FieldComponent = "component"
	FieldSpan      = "span"
	FieldParent    = "parent"
	FieldChild     = "child"
	FieldMembers   = "members"
)

// Field returns the named value of e, resolving reserved names first.
func Field(e Entry, name string) (any, bool) {
	h := e.Head()
	switch name {
	case FieldTID:
		return h.TID, true
	case FieldComponent:
		return h.Component, true
	}
	switch v := e.(type) {
	case *Annotation:
		if name == FieldSpan {
			return v.Span.Pair(), true
		}
	case *Link:
		switch name {
		case FieldParent:
			return v.Parent, true
		case FieldChild:
			return v.Child, true
		}
	case *Group:
		if name == FieldMembers {
			return append([]string(nil), v.Members...), true
		}
	}
	val, ok := h.Fields[name]
	return val, ok
}
