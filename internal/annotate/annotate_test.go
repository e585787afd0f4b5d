package annotate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/internal/datapack"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/internal/datapack/entry"
	apperrors "github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/span"
)

const sample = "The cats ran. Dogs bark!\n  Ok?? end"

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []span.Span
	}{
		{"empty", "", nil},
		{"whitespace only", " \n\t", nil},
		{"no terminator", "just words", []span.Span{{Begin: 0, End: 10}}},
		{"mixed", sample, []span.Span{{Begin: 0, End: 13}, {Begin: 14, End: 24}, {Begin: 27, End: 31}, {Begin: 32, End: 35}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitSentences(tt.text))
		})
	}
}

func TestWords(t *testing.T) {
	got := Words("naïve café, 42x!")
	require.Len(t, got, 3)
	assert.Equal(t, span.Span{Begin: 0, End: 6}, got[0])
	assert.Equal(t, span.Span{Begin: 7, End: 12}, got[1])
	assert.Equal(t, span.Span{Begin: 14, End: 17}, got[2])
}

func TestStem(t *testing.T) {
	tests := map[string]string{
		"cats":       "cat",
		"relational": "relate",
		"happiness":  "happy",
		"is":         "is",
		"bark":       "bark",
	}
	for in, want := range tests {
		assert.Equal(t, want, Stem(in), in)
	}
}

func TestAnnotatePack(t *testing.T) {
	p := datapack.New(sample)
	annotators, err := ByName(SentenceComponent, TokenizerComponent)
	require.NoError(t, err)
	require.NoError(t, Run(p, annotators...))

	sentences, err := p.ListEntries(entry.AnnotationType(SentenceType))
	require.NoError(t, err)
	assert.Len(t, sentences, 4)

	tokens, err := p.ListEntries(entry.AnnotationType(TokenType))
	require.NoError(t, err)
	terms := make([]any, 0, len(tokens))
	stems := make([]any, 0, len(tokens))
	for _, tok := range tokens {
		v, _ := entry.Field(tok, FieldTerm)
		terms = append(terms, v)
		v, _ = entry.Field(tok, FieldStem)
		stems = append(stems, v)
	}
	assert.Equal(t, []any{"cats", "ran", "dogs", "bark", "ok", "end"}, terms)
	assert.Equal(t, []any{"cat", "ran", "dog", "bark", "ok", "end"}, stems)

	component, err := p.ResolveComponent(entry.AnnotationType(TokenType), "")
	require.NoError(t, err)
	assert.Equal(t, TokenizerComponent, component)
	require.NoError(t, p.CheckFields(entry.AnnotationType(TokenType), TokenizerComponent, FieldTerm, FieldStem))

	// Re-running is absorbed by admission dedup.
	before := p.Len()
	require.NoError(t, Run(p, annotators...))
	assert.Equal(t, before, p.Len())

	first := sentences[0].(*entry.Annotation)
	inFirst, err := p.ListEntries(entry.AnnotationType(TokenType), datapack.InRange(first))
	require.NoError(t, err)
	assert.Len(t, inFirst, 2)
}

func TestKeepStopWords(t *testing.T) {
	p := datapack.New("the end")
	require.NoError(t, Tokenizer{}.Annotate(p))
	tokens, err := p.ListEntries(entry.AnnotationType(TokenType))
	require.NoError(t, err)
	assert.Len(t, tokens, 2)
}

func TestByNameUnknown(t *testing.T) {
	_, err := ByName("builtin-parser")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}
