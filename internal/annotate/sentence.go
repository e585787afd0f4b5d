package annotate

import (
	"unicode"

	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/internal/datapack"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/internal/datapack/entry"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/span"
)

const (
	SentenceComponent = "builtin-sentence"
	SentenceType      = "Sentence"
)

// SentenceSplitter emits a Sentence annotation for every run of text ending
// in '.', '!' or '?' or at a line break. Surrounding whitespace is excluded
// from the span.
type SentenceSplitter struct{}

func (SentenceSplitter) Component() string { return SentenceComponent }

func (s SentenceSplitter) Annotate(p *datapack.DataPack) error {
	for _, sp := range SplitSentences(p.FullText()) {
		if _, err := p.Admit(entry.NewAnnotation(SentenceType, SentenceComponent, sp)); err != nil {
			return err
		}
	}
	return p.RecordFieldProvenance(entry.AnnotationType(SentenceType), SentenceComponent)
}

// SplitSentences returns the byte spans of the sentences in text.
func SplitSentences(text string) []span.Span {
	var out []span.Span
	start := 0
	emit := func(end int) {
		if sp, ok := trimmed(text, start, end); ok {
			out = append(out, sp)
		}
		start = end
	}
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\n':
			emit(i)
			start = i + 1
		case '.', '!', '?':
			j := i + 1
			for j < len(text) && (text[j] == '.' || text[j] == '!' || text[j] == '?') {
				j++
			}
			emit(j)
			i = j - 1
		}
	}
	emit(len(text))
	return out
}

func trimmed(text string, begin, end int) (span.Span, bool) {
	for begin < end && unicode.IsSpace(rune(text[begin])) {
		begin++
	}
	for end > begin && unicode.IsSpace(rune(text[end-1])) {
		end--
	}
	return span.Span{Begin: begin, End: end}, end > begin
}
