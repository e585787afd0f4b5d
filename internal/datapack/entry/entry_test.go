package entry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/span"
)

func TestTypeAccepts(t *testing.T) {
	token := AnnotationType("Token")
	dep := LinkType("Dependency")

	tests := []struct {
		name string
		t    Type
		c    Type
		want bool
	}{
		{"exact", token, token, true},
		{"other name", token, AnnotationType("Sentence"), false},
		{"any annotation", AnyAnnotation, token, true},
		{"any annotation rejects link", AnyAnnotation, dep, false},
		{"any entry", AnyEntry, dep, true},
		{"any link", AnyLink, dep, true},
		{"any group rejects link", AnyGroup, dep, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.t.Accepts(tt.c))
		})
	}
}

func TestTypeValidate(t *testing.T) {
	require.NoError(t, AnyEntry.Validate())
	require.NoError(t, AnnotationType("Token").Validate())

	err := Type{Kind: KindEntry, Name: "Token"}.Validate()
	assert.True(t, errors.Is(err, apperrors.ErrTypeMismatch))

	err = Type{Kind: Kind(9)}.Validate()
	assert.True(t, errors.Is(err, apperrors.ErrTypeMismatch))
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Link ")
	require.NoError(t, err)
	assert.Equal(t, KindLink, k)

	_, err = ParseKind("relation")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidEntryKind))
}

func TestParseType(t *testing.T) {
	tests := []struct {
		in   string
		want Type
	}{
		{"Token", AnnotationType("Token")},
		{"Annotation:Sentence", AnnotationType("Sentence")},
		{"link:Dependency", LinkType("Dependency")},
		{"Group", AnyGroup},
		{"entry", AnyEntry},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseType(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, mustParse(t, got.String()))
		})
	}

	_, err := ParseType("Relation:Coref")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidEntryKind))
	_, err = ParseType("Entry:Token")
	assert.True(t, errors.Is(err, apperrors.ErrTypeMismatch))
	_, err = ParseType("  ")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func mustParse(t *testing.T, s string) Type {
	t.Helper()
	typ, err := ParseType(s)
	require.NoError(t, err)
	return typ
}

func TestDedupKey(t *testing.T) {
	a := NewAnnotation("Token", "tok", span.Span{Begin: 0, End: 1})
	b := NewAnnotation("Token", "tok", span.Span{Begin: 0, End: 1})
	b.TID = "other"
	c := NewAnnotation("Token", "tagger", span.Span{Begin: 0, End: 1})
	assert.Equal(t, DedupKey(a), DedupKey(b))
	assert.NotEqual(t, DedupKey(a), DedupKey(c))

	l1 := NewLink("Dep", "parser", "p", "c")
	l2 := NewLink("Dep", "other", "p", "c")
	assert.Equal(t, DedupKey(l1), DedupKey(l2))
	assert.NotEqual(t, DedupKey(l1), DedupKey(NewLink("Dep", "parser", "c", "p")))

	g1 := NewGroup("Coref", "c", "a", "b", "a")
	g2 := NewGroup("Coref", "c", "b", "a")
	assert.Equal(t, DedupKey(g1), DedupKey(g2))
	assert.Equal(t, []string{"a", "b"}, g1.MemberSet())
}

func TestField(t *testing.T) {
	a := NewAnnotation("Token", "tagger", span.Span{Begin: 2, End: 4})
	a.TID = "t1"
	a.Set("pos", "NN")

	v, ok := Field(a, "pos")
	require.True(t, ok)
	assert.Equal(t, "NN", v)

	v, ok = Field(a, FieldSpan)
	require.True(t, ok)
	assert.Equal(t, [2]int{2, 4}, v)

	v, _ = Field(a, FieldTID)
	assert.Equal(t, "t1", v)

	_, ok = Field(a, "lemma")
	assert.False(t, ok)

	l := NewLink("Dep", "parser", "t1", "t2")
	v, _ = Field(l, FieldChild)
	assert.Equal(t, "t2", v)

	g := NewGroup("Coref", "c", "t1", "t2")
	v, _ = Field(g, FieldMembers)
	assert.Equal(t, []string{"t1", "t2"}, v)
	assert.Equal(t, GroupType("Coref"), TypeOf(g))
}
