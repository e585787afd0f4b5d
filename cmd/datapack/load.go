package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/internal/annotate"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/internal/datapack"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/internal/ingest"
)

type loadedPack struct {
	path string
	pack *datapack.DataPack
}

// loadPacks decodes, builds and annotates the documents at paths
// concurrently. Results keep the order of paths; the first failure cancels
// the rest.
func loadPacks(ctx context.Context, paths []string, opts *rootOptions) ([]loadedPack, error) {
	annotators, err := annotate.ByName(opts.annotators...)
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	out := make([]loadedPack, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	if opts.parallel > 0 {
		g.SetLimit(opts.parallel)
	}
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			p, err := loadPack(path, annotators)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			out[i] = loadedPack{path: path, pack: p}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func loadPack(path string, annotators []annotate.Annotator) (*datapack.DataPack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := ingest.Decode(data)
	if err != nil {
		return nil, err
	}
	p, err := ingest.Build(doc, nil)
	if err != nil {
		return nil, err
	}
	if err := annotate.Run(p, annotators...); err != nil {
		return nil, err
	}
	slog.Debug("document loaded", "path", path, "doc_id", p.Meta().DocID, "entries", p.Len())
	return p, nil
}
