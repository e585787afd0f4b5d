package datapack

import (
	"testing"

	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/internal/datapack/entry"
)

// seedPack builds a document of n sentences, each holding eight tokens
// chained by dependency links.
func seedPack(b *testing.B, n int) (*DataPack, []*entry.Annotation) {
	b.Helper()
	p := New("")
	sentences := make([]*entry.Annotation, 0, n)
	for s := 0; s < n; s++ {
		base := s * 100
		sent := entry.NewAnnotation("Sentence", "splitter", sp(base, base+80))
		if _, err := p.Admit(sent); err != nil {
			b.Fatal(err)
		}
		sentences = append(sentences, sent)
		prev := ""
		for t := 0; t < 8; t++ {
			tok := entry.NewAnnotation("Token", "tokenizer", sp(base+t*10, base+t*10+5))
			if _, err := p.Admit(tok); err != nil {
				b.Fatal(err)
			}
			if prev != "" {
				if _, err := p.Admit(entry.NewLink("Dependency", "parser", prev, tok.TID)); err != nil {
					b.Fatal(err)
				}
			}
			prev = tok.TID
		}
	}
	return p, sentences
}

// BenchmarkAdmit measures annotation admission throughput including sorted
// insertion and basic index maintenance.
func BenchmarkAdmit(b *testing.B) {
	p := New("")
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := p.Admit(entry.NewAnnotation("Token", "tokenizer", sp(i, i+1))); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkCoverageBuild measures a cold Sentence/Token coverage build over
// 1 000 sentences.
func BenchmarkCoverageBuild(b *testing.B) {
	p, _ := seedPack(b, 1000)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := p.BuildCoverageIndex(sentenceType, tokenType); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkGetEntriesInRange measures ranged lookups against a warm
// coverage index.
func BenchmarkGetEntriesInRange(b *testing.B) {
	p, sentences := seedPack(b, 1000)
	if _, err := p.GetCoverageIndex(sentenceType, depType); err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		got, err := p.ListEntries(depType, InRange(sentences[i%len(sentences)]))
		if err != nil {
			b.Fatal(err)
		}
		_ = got
	}
}

// BenchmarkGetEntriesParallel measures concurrent ranged lookups.
func BenchmarkGetEntriesParallel(b *testing.B) {
	p, sentences := seedPack(b, 1000)
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if _, err := p.ListEntries(tokenType, InRange(sentences[i%len(sentences)])); err != nil {
				b.Error(err)
				return
			}
			i++
		}
	})
}
