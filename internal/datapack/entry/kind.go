package entry

import (
	"fmt"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/errors"
)

// Kind is the closed enumeration of entry variants. KindEntry is only valid
// inside a Type used as a query wildcard.
type Kind uint8

const (
	KindEntry Kind = iota
	KindAnnotation
	KindLink
	KindGroup
)

func (k Kind) String() string {
	switch k {
	case KindEntry:
		return "Entry"
	case KindAnnotation:
		return "Annotation"
	case KindLink:
		return "Link"
	case KindGroup:
		return "Group"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

func (k Kind) valid() bool {
	return k <= KindGroup
}

// ParseKind maps a wire name onto a Kind. It is the trust boundary where
// unknown variants are rejected.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "annotation":
		return KindAnnotation, nil
	case "link":
		return KindLink, nil
	case "group":
		return KindGroup, nil
	case "entry":
		return KindEntry, nil
	default:
		return 0, apperrors.Newf(apperrors.ErrInvalidEntryKind, "%q is not one of annotation, link, group", s)
	}
}

// Type names a set of entries: a kind plus an optional domain name. An empty
// Name matches every entry of the kind; KindEntry with an empty Name matches
// everything.
type Type struct {
	Kind Kind
	Name string
}

var (
	AnyEntry      = Type{Kind: KindEntry}
	AnyAnnotation = Type{Kind: KindAnnotation}
	AnyLink       = Type{Kind: KindLink}
	AnyGroup      = Type{Kind: KindGroup}
)

func AnnotationType(name string) Type { return Type{Kind: KindAnnotation, Name: name} }
func LinkType(name string) Type       { return Type{Kind: KindLink, Name: name} }
func GroupType(name string) Type      { return Type{Kind: KindGroup, Name: name} }

// Generic reports whether t is a wildcard over its kind.
func (t Type) Generic() bool {
	return t.Name == ""
}

// Validate rejects types that cannot name any entry.
func (t Type) Validate() error {
	if !t.Kind.valid() {
		return apperrors.Newf(apperrors.ErrTypeMismatch, "unknown kind %s", t.Kind)
	}
	if t.Kind == KindEntry && t.Name != "" {
		return apperrors.Newf(apperrors.ErrTypeMismatch, "entry wildcard cannot carry name %q", t.Name)
	}
	return nil
}

// Accepts reports whether an entry of concrete type c belongs to t.
func (t Type) Accepts(c Type) bool {
	if t.Kind != KindEntry && t.Kind != c.Kind {
		return false
	}
	return t.Name == "" || t.Name == c.Name
}

// AcceptsEntry is Accepts applied to e's concrete type.
func (t Type) AcceptsEntry(e Entry) bool {
	return t.Accepts(TypeOf(e))
}

// Includes reports whether entries of kind k can belong to t.
func (t Type) Includes(k Kind) bool {
	return t.Kind == KindEntry || t.Kind == k
}

// AnnotationCompatible reports whether every entry in t is an annotation.
func (t Type) AnnotationCompatible() bool {
	return t.Kind == KindAnnotation
}

// Wildcard returns the generic type of t's kind.
func (t Type) Wildcard() Type {
	return Type{Kind: t.Kind}
}

func (t Type) String() string {
	if t.Name == "" {
		return t.Kind.String()
	}
	return t.Kind.String() + ":" + t.Name
}

// ParseType reads the form produced by String. A bare word that is not a
// kind name is taken as an annotation type.
func ParseType(s string) (Type, error) {
	s = strings.TrimSpace(s)
	if kindName, name, ok := strings.Cut(s, ":"); ok {
		k, err := ParseKind(kindName)
		if err != nil {
			return Type{}, err
		}
		t := Type{Kind: k, Name: strings.TrimSpace(name)}
		return t, t.Validate()
	}
	if s == "" {
		return Type{}, apperrors.New(apperrors.ErrInvalidInput, "empty type")
	}
	if k, err := ParseKind(s); err == nil {
		return Type{Kind: k}, nil
	}
	return AnnotationType(s), nil
}
