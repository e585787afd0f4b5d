package annotate

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/internal/datapack"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/internal/datapack/entry"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/span"
)

const (
	TokenizerComponent = "builtin-tokenizer"
	TokenType          = "Token"

	FieldTerm = "term"
	FieldStem = "stem"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// Tokenizer emits a Token annotation for every maximal run of letters and
// digits, carrying the lower-cased term and its stem.
type Tokenizer struct {
	SkipStopWords bool
}

func (Tokenizer) Component() string { return TokenizerComponent }

func (t Tokenizer) Annotate(p *datapack.DataPack) error {
	text := p.FullText()
	for _, sp := range Words(text) {
		term := strings.ToLower(text[sp.Begin:sp.End])
		if t.SkipStopWords && IsStopWord(term) {
			continue
		}
		tok := entry.NewAnnotation(TokenType, TokenizerComponent, sp)
		tok.Set(FieldTerm, term).Set(FieldStem, Stem(term))
		if _, err := p.Admit(tok); err != nil {
			return err
		}
	}
	return p.RecordFieldProvenance(entry.AnnotationType(TokenType), TokenizerComponent, FieldTerm, FieldStem)
}

// Words returns the byte spans of the letter/digit runs in text.
func Words(text string) []span.Span {
	var out []span.Span
	start := -1
	for i, r := range text {
		word := unicode.IsLetter(r) || unicode.IsDigit(r)
		switch {
		case word && start < 0:
			start = i
		case !word && start >= 0:
			out = append(out, span.Span{Begin: start, End: i})
			start = -1
		}
	}
	if start >= 0 {
		out = append(out, span.Span{Begin: start, End: len(text)})
	}
	return out
}

func IsStopWord(term string) bool {
	_, ok := stopWords[term]
	return ok
}

// Stem applies a suffix-stripping stemmer to a lower-cased word.
func Stem(word string) string {
	for _, rule := range suffixRules {
		if strings.HasSuffix(word, rule.suffix) {
			stemmed := word[:len(word)-len(rule.suffix)] + rule.replacement
			if utf8.RuneCountInString(stemmed) >= rule.minLen {
				return stemmed
			}
		}
	}
	return word
}

var suffixRules = []struct {
	suffix      string
	replacement string
	minLen      int
}{
	{"ational", "ate", 2},
	{"tional", "tion", 2},
	{"encies", "ence", 2},
	{"ances", "ance", 2},
	{"ments", "ment", 2},
	{"izing", "ize", 2},
	{"ating", "ate", 2},
	{"iness", "y", 2},
	{"ously", "ous", 2},
	{"ively", "ive", 2},
	{"eness", "ene", 2},
	{"tion", "t", 3},
	{"sion", "s", 3},
	{"ying", "y", 2},
	{"ling", "l", 3},
	{"ies", "y", 2},
	{"ing", "", 3},
	{"ers", "er", 2},
	{"est", "", 3},
	{"ful", "", 3},
	{"ous", "", 3},
	{"ess", "", 3},
	{"ble", "", 3},
	{"ed", "", 3},
	{"er", "", 3},
	{"ly", "", 3},
	{"es", "", 3},
	{"ss", "ss", 2},
	{"s", "", 3},
}
