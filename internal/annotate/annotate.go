// Package annotate holds the built-in components that populate a data pack
// from raw text: a sentence splitter and a tokenizer.
package annotate

import (
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/internal/datapack"
	apperrors "github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/errors"
)

// Annotator adds entries to a pack under its own component name.
type Annotator interface {
	Component() string
	Annotate(p *datapack.DataPack) error
}

// ByName returns the built-in annotators named, in order.
func ByName(names ...string) ([]Annotator, error) {
	out := make([]Annotator, 0, len(names))
	for _, n := range names {
		switch strings.TrimSpace(n) {
		case SentenceComponent:
			out = append(out, SentenceSplitter{})
		case TokenizerComponent:
			out = append(out, Tokenizer{SkipStopWords: true})
		default:
			return nil, apperrors.Newf(apperrors.ErrInvalidInput, "unknown annotator %q", n)
		}
	}
	return out, nil
}

// Run applies each annotator to p in order.
func Run(p *datapack.DataPack, annotators ...Annotator) error {
	for _, a := range annotators {
		if err := a.Annotate(p); err != nil {
			return fmt.Errorf("running %s: %w", a.Component(), err)
		}
	}
	return nil
}
