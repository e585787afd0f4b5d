// Package pipeline stages incoming documents: each Kafka document event is
// validated and built into a data pack, run through the configured
// annotators, flattened into record batches, and published, cached and
// stored.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/internal/annotate"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/internal/datapack"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/internal/extract"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/tracing"
)

// Cache returns previously computed batches for one version of a document,
// identified by its id and content digest, under a request.
type Cache interface {
	GetOrCompute(ctx context.Context, docID, digest string, req extract.Request, computeFn func() ([]json.RawMessage, error)) ([]json.RawMessage, bool, error)
}

// Sink records staged batches and document outcomes.
type Sink interface {
	SaveBatches(ctx context.Context, docID, requestKey string, entries int, batches []json.RawMessage) error
	MarkFailed(ctx context.Context, docID string, reason error) error
}

// Tracker buffers events for publishing.
type Tracker interface {
	Track(event kafka.Event)
}

// RecordEvent is the value published for every extracted batch.
type RecordEvent struct {
	DocID      string          `json:"doc_id"`
	RequestKey string          `json:"request_key"`
	Seq        int             `json:"seq"`
	Batch      json.RawMessage `json:"batch"`
}

// Options wires a Stager. Cache, Sink, Out and Metrics may be nil; a zero
// Timeout leaves staging unbounded.
type Options struct {
	Request    extract.Request
	BatchSize  int
	Timeout    time.Duration
	Annotators []annotate.Annotator
	Cache      Cache
	Sink       Sink
	Out        Tracker
	Metrics    *metrics.Metrics
}

// Result summarises one staged document.
type Result struct {
	DocID   string
	Entries int
	Batches int
	Cached  bool
}

type Stager struct {
	opts   Options
	logger *slog.Logger
}

func NewStager(opts Options) (*Stager, error) {
	if opts.BatchSize <= 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, "batch size must be positive, got %d", opts.BatchSize)
	}
	return &Stager{
		opts:   opts,
		logger: slog.Default().With("component", "stager"),
	}, nil
}

// RequestFromConfig turns the pipeline section into an extraction request.
func RequestFromConfig(cfg config.PipelineConfig) extract.Request {
	conv := func(in map[string]config.FieldSelection) map[string]extract.FieldRequest {
		if len(in) == 0 {
			return nil
		}
		out := make(map[string]extract.FieldRequest, len(in))
		for name, sel := range in {
			out[name] = extract.FieldRequest{Component: sel.Component, Fields: sel.Fields}
		}
		return out
	}
	return extract.Request{
		Context:     cfg.Context,
		Offset:      cfg.Offset,
		Annotations: conv(cfg.Annotations),
		Links:       conv(cfg.Links),
		Groups:      conv(cfg.Groups),
	}
}

// Stage processes one document end to end within the configured timeout.
// Failures are recorded on the sink before being returned.
func (s *Stager) Stage(ctx context.Context, doc *ingest.Document) (Result, error) {
	var res Result
	err := resilience.WithTimeout(ctx, s.opts.Timeout, "staging", func(ctx context.Context) error {
		var err error
		res, err = s.stage(ctx, doc)
		return err
	})
	if err != nil {
		s.opts.Metrics.DocumentStaged("failed")
		s.opts.Metrics.Error(string(apperrors.Classify(err)))
		if s.opts.Sink != nil && doc.DocID != "" {
			markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			if markErr := s.opts.Sink.MarkFailed(markCtx, doc.DocID, err); markErr != nil {
				s.logger.Error("failed to record staging failure", "doc_id", doc.DocID, "error", markErr)
			}
			cancel()
		}
		return res, err
	}
	s.opts.Metrics.DocumentStaged("staged")
	return res, nil
}

func (s *Stager) stage(ctx context.Context, doc *ingest.Document) (Result, error) {
	res := Result{DocID: doc.DocID}
	ctx, root := tracing.StartSpan(ctx, "stage", doc.DocID)
	defer func() {
		root.End()
		root.Log(logger.FromContext(logger.WithDocID(ctx, res.DocID)))
	}()

	var (
		p      *datapack.DataPack
		digest string
	)
	err := tracing.Run(ctx, "build", func(context.Context) error {
		var err error
		p, err = ingest.Build(doc, s.opts.Metrics)
		if err != nil {
			return fmt.Errorf("building pack: %w", err)
		}
		digest, err = doc.Digest()
		return err
	})
	if err != nil {
		return res, err
	}
	res.DocID = doc.DocID
	log := logger.FromContext(logger.WithDocID(ctx, doc.DocID)).With("component", "stager")

	err = tracing.Run(ctx, "annotate", func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return annotate.Run(p, s.opts.Annotators...)
	})
	if err != nil {
		return res, err
	}
	res.Entries = p.Len()

	var batches []json.RawMessage
	err = tracing.Run(ctx, "extract", func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		compute := func() ([]json.RawMessage, error) { return s.encodeBatches(ctx, p) }
		var err error
		if s.opts.Cache != nil {
			batches, res.Cached, err = s.opts.Cache.GetOrCompute(ctx, doc.DocID, digest, s.opts.Request, compute)
		} else {
			batches, err = compute()
		}
		if err != nil {
			return fmt.Errorf("extracting records: %w", err)
		}
		return nil
	})
	if err != nil {
		return res, err
	}
	res.Batches = len(batches)

	key := s.opts.Request.Key()
	if s.opts.Out != nil {
		for seq, b := range batches {
			s.opts.Out.Track(kafka.Event{
				Key:   doc.DocID,
				Value: RecordEvent{DocID: doc.DocID, RequestKey: key, Seq: seq, Batch: b},
				Headers: map[string]string{
					"doc_id": doc.DocID,
					"seq":    strconv.Itoa(seq),
				},
			})
		}
	}
	if s.opts.Sink != nil {
		err = tracing.Run(ctx, "store", func(ctx context.Context) error {
			if err := s.opts.Sink.SaveBatches(ctx, doc.DocID, key, res.Entries, batches); err != nil {
				return fmt.Errorf("storing batches: %w", err)
			}
			return nil
		})
		if err != nil {
			return res, err
		}
	}

	root.SetAttr("digest", digest)
	root.SetAttr("entries", res.Entries)
	root.SetAttr("batches", res.Batches)
	log.Info("document staged",
		"entries", res.Entries,
		"batches", res.Batches,
		"cached", res.Cached,
	)
	return res, nil
}

func (s *Stager) encodeBatches(ctx context.Context, p *datapack.DataPack) ([]json.RawMessage, error) {
	var out []json.RawMessage
	err := extract.New(p, s.opts.Metrics).Batches(s.opts.Request, s.opts.BatchSize, func(b extract.Batch) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("encoding batch %d: %w", b.Seq, err)
		}
		out = append(out, data)
		return nil
	})
	return out, err
}

// HandleMessage returns a Kafka MessageHandler that stages every document
// event. Malformed and invalid documents are logged and acknowledged so
// they are not redelivered; other failures are returned, and the consumer
// retries the message without committing past it.
func (s *Stager) HandleMessage() kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		doc, err := ingest.Decode(value)
		if err != nil {
			s.logger.Error("failed to decode document event",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		if doc.DocID == "" {
			doc.DocID = string(key)
		}
		if _, err := s.Stage(ctx, doc); err != nil {
			if permanent(err) {
				s.logger.Warn("document rejected", "doc_id", doc.DocID, "error", err)
				return nil
			}
			return fmt.Errorf("staging document %s: %w", doc.DocID, err)
		}
		return nil
	}
}

// permanent reports whether retrying a document cannot succeed.
func permanent(err error) bool {
	var verr *ingest.ValidationError
	if errors.As(err, &verr) {
		return true
	}
	switch apperrors.Classify(err) {
	case apperrors.CodeInternal:
		return false
	default:
		return true
	}
}
