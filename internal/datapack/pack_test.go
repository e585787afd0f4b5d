package datapack

import (
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/internal/datapack/entry"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/internal/datapack/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/span"
)

var (
	sentenceType = entry.AnnotationType("Sentence")
	tokenType    = entry.AnnotationType("Token")
	depType      = entry.LinkType("Dependency")
	corefType    = entry.GroupType("Coref")
)

func sp(begin, end int) span.Span {
	return span.Span{Begin: begin, End: end}
}

func mustAdmit(t *testing.T, p *DataPack, e entry.Entry) string {
	t.Helper()
	tid, err := p.Admit(e)
	require.NoError(t, err)
	return tid
}

func tids(entries []entry.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Head().TID)
	}
	return out
}

// abPack is the two-token document "AB" with one sentence and one link.
func abPack(t *testing.T) (*DataPack, map[string]entry.Entry) {
	t.Helper()
	p := New("AB", WithDocID("doc-ab"))
	s1 := entry.NewAnnotation("Sentence", "splitter", sp(0, 2))
	t1 := entry.NewAnnotation("Token", "tokenizer", sp(0, 1))
	t2 := entry.NewAnnotation("Token", "tokenizer", sp(1, 2))
	for _, e := range []entry.Entry{t2, s1, t1} {
		mustAdmit(t, p, e)
	}
	l1 := entry.NewLink("Dependency", "parser", t1.TID, t2.TID)
	mustAdmit(t, p, l1)
	return p, map[string]entry.Entry{"S1": s1, "T1": t1, "T2": t2, "L1": l1}
}

func TestAdmitAssignsUniqueIDs(t *testing.T) {
	p, named := abPack(t)
	assert.Equal(t, "Token.0", named["T2"].Head().TID)
	assert.Equal(t, "Sentence.0", named["S1"].Head().TID)
	assert.Equal(t, "Token.1", named["T1"].Head().TID)
	assert.Equal(t, "Dependency.0", named["L1"].Head().TID)
	assert.Equal(t, 4, p.Len())

	// An explicit tid that shadows the counter is skipped over.
	explicit := entry.NewAnnotation("Token", "tokenizer", sp(5, 6))
	explicit.TID = "Token.2"
	mustAdmit(t, p, explicit)
	next := entry.NewAnnotation("Token", "tokenizer", sp(7, 8))
	assert.Equal(t, "Token.3", mustAdmit(t, p, next))
}

func TestAdmitIsIdempotent(t *testing.T) {
	p, named := abPack(t)
	before := p.Len()

	tests := []struct {
		name string
		e    entry.Entry
		want string
	}{
		{"annotation", entry.NewAnnotation("Token", "tokenizer", sp(0, 1)), named["T1"].Head().TID},
		{"link", entry.NewLink("Dependency", "other", named["T1"].Head().TID, named["T2"].Head().TID), named["L1"].Head().TID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first := mustAdmit(t, p, tt.e)
			second := mustAdmit(t, p, tt.e)
			assert.Equal(t, tt.want, first)
			assert.Equal(t, first, second)
			assert.Equal(t, before, p.Len())
		})
	}

	g := entry.NewGroup("Coref", "coref", named["T1"].Head().TID, named["T2"].Head().TID)
	gid := mustAdmit(t, p, g)
	again := mustAdmit(t, p, entry.NewGroup("Coref", "coref", named["T2"].Head().TID, named["T1"].Head().TID))
	assert.Equal(t, gid, again)
	assert.Equal(t, before+1, p.Len())

	// Same span from a different component is a different annotation.
	other := mustAdmit(t, p, entry.NewAnnotation("Token", "tagger", sp(0, 1)))
	assert.NotEqual(t, named["T1"].Head().TID, other)
}

func TestAdmitRejects(t *testing.T) {
	p, named := abPack(t)

	tests := []struct {
		name string
		e    entry.Entry
		want error
	}{
		{"nil", nil, apperrors.ErrInvalidEntryKind},
		{"nil annotation", (*entry.Annotation)(nil), apperrors.ErrInvalidEntryKind},
		{"bad span", entry.NewAnnotation("Token", "t", sp(3, 1)), apperrors.ErrInvalidEntry},
		{"no type name", entry.NewAnnotation("", "t", sp(0, 1)), apperrors.ErrInvalidEntry},
		{"half link", entry.NewLink("Dependency", "p", "x", ""), apperrors.ErrInvalidEntry},
		{"empty group", entry.NewGroup("Coref", "c"), apperrors.ErrInvalidEntry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Admit(tt.e)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	dup := entry.NewAnnotation("Token", "tokenizer", sp(9, 10))
	dup.TID = named["S1"].Head().TID
	_, err := p.Admit(dup)
	assert.True(t, errors.Is(err, apperrors.ErrDuplicateID))
}

func TestAnnotationsStaySorted(t *testing.T) {
	p := New("the quick brown fox")
	spans := []span.Span{sp(10, 15), sp(0, 3), sp(4, 9), sp(0, 19), sp(4, 8), sp(16, 19), sp(4, 4)}
	for i, s := range spans {
		name := "Token"
		if i%2 == 1 {
			name = "Chunk"
		}
		mustAdmit(t, p, entry.NewAnnotation(name, "c", s))
		anns := p.AnnotationsInOrder()
		assert.True(t, sort.SliceIsSorted(anns, func(i, j int) bool {
			return anns[i].Span.Less(anns[j].Span)
		}))
	}
	assert.Len(t, p.AnnotationsInOrder(), len(spans))
}

func TestRecordFieldProvenance(t *testing.T) {
	p, _ := abPack(t)
	require.NoError(t, p.RecordFieldProvenance(tokenType, "tagger", "lemma"))
	require.NoError(t, p.RecordFieldProvenance(tokenType, "ner", "ner_tag"))

	prov, ok := p.TypeMeta(tokenType)
	require.True(t, ok)
	assert.Equal(t, "tagger", prov.Default)
	assert.Equal(t, []string{"lemma", "tid"}, prov.Fields["tagger"])

	c, err := p.ResolveComponent(tokenType, "")
	require.NoError(t, err)
	assert.Equal(t, "tagger", c)

	err = p.CheckFields(tokenType, "tagger", "pos")
	assert.True(t, errors.Is(err, apperrors.ErrUnknownField))
	require.NoError(t, p.CheckFields(tokenType, "tagger", "lemma", "tid"))

	// A component that admitted entries resolves even without recorded fields.
	c, err = p.ResolveComponent(tokenType, "tokenizer")
	require.NoError(t, err)
	assert.Equal(t, "tokenizer", c)

	_, err = p.ResolveComponent(tokenType, "parser")
	assert.True(t, errors.Is(err, apperrors.ErrUnknownComponent))

	_, err = p.ResolveComponent(entry.AnnotationType("Entity"), "")
	assert.True(t, errors.Is(err, apperrors.ErrUnknownType))

	_, err = p.ResolveComponent(sentenceType, "")
	assert.True(t, errors.Is(err, apperrors.ErrUnknownComponent), "no default recorded for Sentence")

	err = p.RecordFieldProvenance(entry.AnyAnnotation, "tagger", "pos")
	assert.True(t, errors.Is(err, apperrors.ErrTypeMismatch))
}

func TestGetCoverageIndexScenarios(t *testing.T) {
	p, named := abPack(t)
	s1 := named["S1"].Head().TID

	cov, err := p.GetCoverageIndex(sentenceType, tokenType)
	require.NoError(t, err)
	assert.Equal(t, index.NewIDSet(named["T1"].Head().TID, named["T2"].Head().TID), cov[s1])

	links, err := p.GetCoverageIndex(sentenceType, entry.AnyLink)
	require.NoError(t, err)
	assert.Equal(t, index.NewIDSet(named["L1"].Head().TID), links[s1])

	narrow := mustAdmit(t, p, entry.NewAnnotation("Sentence", "splitter", sp(0, 1)))
	links, err = p.GetCoverageIndex(sentenceType, entry.AnyLink)
	require.NoError(t, err)
	assert.Empty(t, links[narrow])
	assert.Equal(t, index.NewIDSet(named["L1"].Head().TID), links[s1])

	_, err = p.GetCoverageIndex(depType, tokenType)
	assert.True(t, errors.Is(err, apperrors.ErrTypeMismatch))
}

func TestCoverageRefreshesAfterAdmission(t *testing.T) {
	p, named := abPack(t)
	s1 := named["S1"].Head().TID
	_, err := p.GetCoverageIndex(sentenceType, tokenType)
	require.NoError(t, err)

	late := mustAdmit(t, p, entry.NewAnnotation("Token", "tokenizer", sp(0, 2)))
	cov, err := p.GetCoverageIndex(sentenceType, tokenType)
	require.NoError(t, err)
	assert.True(t, cov[s1].Has(late))
}

func TestFallbackMatchesExact(t *testing.T) {
	loose, named := abPack(t)
	require.NoError(t, loose.BuildCoverageIndex(entry.AnyAnnotation, entry.AnyEntry))
	got, err := loose.GetCoverageIndex(sentenceType, tokenType)
	require.NoError(t, err)

	exact, _ := abPack(t)
	want, err := exact.GetCoverageIndex(sentenceType, tokenType)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Contains(t, got, named["S1"].Head().TID)
}

func TestGetEntries(t *testing.T) {
	p := New("Hello world. Bye now.")
	s1 := entry.NewAnnotation("Sentence", "splitter", sp(0, 12))
	s2 := entry.NewAnnotation("Sentence", "splitter", sp(13, 21))
	words := []*entry.Annotation{
		entry.NewAnnotation("Token", "tokenizer", sp(0, 5)),
		entry.NewAnnotation("Token", "tokenizer", sp(6, 11)),
		entry.NewAnnotation("Token", "tokenizer", sp(13, 16)),
		entry.NewAnnotation("Token", "tokenizer", sp(17, 20)),
	}
	for _, e := range []entry.Entry{s2, words[3], words[0], s1, words[2], words[1]} {
		mustAdmit(t, p, e)
	}
	tagged := entry.NewAnnotation("Token", "tagger", sp(6, 11))
	mustAdmit(t, p, tagged)
	dep := entry.NewLink("Dependency", "parser", words[0].TID, words[1].TID)
	mustAdmit(t, p, dep)
	cross := entry.NewLink("Dependency", "parser", words[1].TID, words[2].TID)
	mustAdmit(t, p, cross)
	group := entry.NewGroup("Coref", "coref", words[2].TID, words[3].TID)
	mustAdmit(t, p, group)

	t.Run("all tokens in span order", func(t *testing.T) {
		got, err := p.ListEntries(tokenType)
		require.NoError(t, err)
		assert.Equal(t, []string{words[0].TID, words[1].TID, tagged.TID, words[2].TID, words[3].TID}, tids(got))
	})

	t.Run("tokens in range", func(t *testing.T) {
		got, err := p.ListEntries(tokenType, InRange(s2))
		require.NoError(t, err)
		assert.Equal(t, []string{words[2].TID, words[3].TID}, tids(got))
	})

	t.Run("tokens in range by component", func(t *testing.T) {
		got, err := p.ListEntries(tokenType, InRange(s1), FromComponent("tagger"))
		require.NoError(t, err)
		assert.Equal(t, []string{tagged.TID}, tids(got))
	})

	t.Run("links in range", func(t *testing.T) {
		got, err := p.ListEntries(depType, InRange(s1))
		require.NoError(t, err)
		assert.Equal(t, []string{dep.TID}, tids(got))
	})

	t.Run("groups in range", func(t *testing.T) {
		got, err := p.ListEntries(corefType, InRange(s2))
		require.NoError(t, err)
		assert.Equal(t, []string{group.TID}, tids(got))
	})

	t.Run("everything in range", func(t *testing.T) {
		got, err := p.ListEntries(entry.AnyEntry, InRange(s2))
		require.NoError(t, err)
		assert.Equal(t, []string{words[2].TID, s2.TID, words[3].TID, group.TID}, tids(got))
	})

	t.Run("sequence is restartable", func(t *testing.T) {
		seq, err := p.GetEntries(sentenceType)
		require.NoError(t, err)
		var first, second []string
		for e := range seq {
			first = append(first, e.Head().TID)
		}
		for e := range seq {
			second = append(second, e.Head().TID)
		}
		assert.Equal(t, []string{s1.TID, s2.TID}, first)
		assert.Equal(t, first, second)
	})

	t.Run("range must be stored", func(t *testing.T) {
		stray := entry.NewAnnotation("Sentence", "x", sp(0, 5))
		stray.TID = "nope"
		_, err := p.GetEntries(tokenType, InRange(stray))
		assert.True(t, errors.Is(err, apperrors.ErrEntryNotFound))
	})

	t.Run("range span is read from the store", func(t *testing.T) {
		stale := entry.NewAnnotation("Sentence", "splitter", sp(0, 5))
		stale.TID = s2.TID
		got, err := p.ListEntries(tokenType, InRange(stale))
		require.NoError(t, err)
		assert.Equal(t, []string{words[2].TID, words[3].TID}, tids(got))
	})

	t.Run("range must be an annotation", func(t *testing.T) {
		fake := entry.NewAnnotation("Sentence", "x", sp(0, 5))
		fake.TID = dep.TID
		_, err := p.GetEntries(tokenType, InRange(fake))
		assert.True(t, errors.Is(err, apperrors.ErrTypeMismatch))
	})
}

func TestLazyIndexParity(t *testing.T) {
	lazy, named := abPack(t)
	t1, t2 := named["T1"].Head().TID, named["T2"].Head().TID
	l1 := named["L1"].Head().TID

	assert.Equal(t, []string{l1}, lazy.ParentLinks(t1))
	assert.Equal(t, []string{l1}, lazy.ChildLinks(t2))
	assert.Empty(t, lazy.ChildLinks(t1))

	eager, _ := abPack(t)
	eager.BuildLinkIndex()
	eager.BuildLinkIndex()
	assert.Equal(t, lazy.ParentLinks(t1), eager.ParentLinks(t1))

	// Links admitted after activation are indexed incrementally.
	l2 := mustAdmit(t, lazy, entry.NewLink("Dependency", "parser", t2, t1))
	assert.Equal(t, []string{l2}, lazy.ParentLinks(t2))

	g := mustAdmit(t, lazy, entry.NewGroup("Coref", "coref", t1, t2))
	assert.Equal(t, []string{g}, lazy.GroupsOf(t1))
	g2 := mustAdmit(t, lazy, entry.NewGroup("Coref", "coref", t1))
	assert.Equal(t, []string{g, g2}, lazy.GroupsOf(t1))
}

func TestAccessors(t *testing.T) {
	p, named := abPack(t)
	assert.Equal(t, "doc-ab", p.Meta().DocID)
	p.SetDocID("renamed")
	assert.Equal(t, "renamed", p.Meta().DocID)

	assert.Len(t, p.Links(), 1)
	assert.Empty(t, p.Groups())

	e, err := p.EntryByID(named["L1"].Head().TID)
	require.NoError(t, err)
	assert.Same(t, named["L1"], e)

	_, err = p.EntryByID("missing")
	assert.True(t, errors.Is(err, apperrors.ErrEntryNotFound))

	text, err := p.Text(sp(1, 2))
	require.NoError(t, err)
	assert.Equal(t, "B", text)
	_, err = p.Text(sp(1, 3))
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
	assert.Contains(t, p.String(), "3 annotations")
}

func TestMetricsWiring(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	p := New("AB", WithMetrics(m))
	a := entry.NewAnnotation("Token", "tok", sp(0, 1))
	mustAdmit(t, p, a)
	mustAdmit(t, p, entry.NewAnnotation("Token", "tok", sp(0, 1)))
	_, err := p.Admit(entry.NewGroup("Coref", "c"))
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EntriesAdmittedTotal.WithLabelValues("Annotation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DuplicateAdmissions.WithLabelValues("Annotation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("invalid_entry")))

	_, err = p.GetCoverageIndex(entry.AnyAnnotation, tokenType)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CoverageLookupsTotal.WithLabelValues("built")))
}

func TestConcurrentReaders(t *testing.T) {
	p, named := abPack(t)
	s1 := named["S1"].(*entry.Annotation)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := p.ListEntries(tokenType, InRange(s1))
			assert.NoError(t, err)
			assert.Len(t, got, 2)
		}()
	}
	wg.Wait()
}
