package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/internal/datapack"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/internal/datapack/entry"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/internal/extract"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/internal/ingest"
	apperrors "github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/logger"
)

type rootOptions struct {
	logLevel   string
	logFormat  string
	annotators []string
	parallel   int
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "datapack",
		Short:         "Query annotated documents held in data packs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.SetupTo(cmd.ErrOrStderr(), opts.logLevel, opts.logFormat)
		},
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "log format (text, json)")
	root.PersistentFlags().StringSliceVar(&opts.annotators, "annotators", nil,
		"built-in annotators to run after loading (builtin-sentence, builtin-tokenizer)")
	root.PersistentFlags().IntVar(&opts.parallel, "parallel", 4, "documents loaded concurrently")

	root.AddCommand(
		newAnnotateCmd(opts),
		newInspectCmd(opts),
		newEntriesCmd(opts),
		newCoverageCmd(opts),
		newExtractCmd(opts),
	)
	return root
}

func newAnnotateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "annotate [file...]",
		Short: "Run annotators over documents and print the resulting documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			packs, err := loadPacks(cmd.Context(), args, opts)
			if err != nil {
				return err
			}
			enc := newEncoder(cmd.OutOrStdout())
			for _, lp := range packs {
				if err := enc.Encode(ingest.FromPack(lp.pack)); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newInspectCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [file...]",
		Short: "Summarise the entries and provenance of each document",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			packs, err := loadPacks(cmd.Context(), args, opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, lp := range packs {
				fmt.Fprintf(out, "%s: %s\n", lp.path, lp.pack)
				for _, pv := range ingest.FromPack(lp.pack).Provenance {
					fmt.Fprintf(out, "  %s:%s by %s [%s]\n", pv.Kind, pv.Type, pv.Component, strings.Join(pv.Fields, ", "))
				}
			}
			return nil
		},
	}
}

func newEntriesCmd(opts *rootOptions) *cobra.Command {
	var (
		typeName  string
		rangeTID  string
		component string
	)
	cmd := &cobra.Command{
		Use:   "entries [file]",
		Short: "List entries of a type, optionally within an annotation's span",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ, err := entry.ParseType(typeName)
			if err != nil {
				return err
			}
			packs, err := loadPacks(cmd.Context(), args, opts)
			if err != nil {
				return err
			}
			p := packs[0].pack

			var qopts []datapack.QueryOption
			if rangeTID != "" {
				e, err := p.EntryByID(rangeTID)
				if err != nil {
					return err
				}
				a, ok := e.(*entry.Annotation)
				if !ok {
					return apperrors.Newf(apperrors.ErrTypeMismatch, "range entry %s is a %s", rangeTID, e.Kind())
				}
				qopts = append(qopts, datapack.InRange(a))
			}
			if component != "" {
				qopts = append(qopts, datapack.FromComponent(component))
			}

			seq, err := p.GetEntries(typ, qopts...)
			if err != nil {
				return err
			}
			enc := newEncoder(cmd.OutOrStdout())
			for e := range seq {
				if err := enc.Encode(ingest.PayloadOf(e)); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&typeName, "type", "t", "Entry", "entry type, e.g. Token or Link:Dependency")
	cmd.Flags().StringVar(&rangeTID, "range", "", "tid of an annotation whose span bounds the results")
	cmd.Flags().StringVar(&component, "component", "", "only entries produced by this component")
	return cmd
}

func newCoverageCmd(opts *rootOptions) *cobra.Command {
	var outerName, innerName string
	cmd := &cobra.Command{
		Use:   "coverage [file]",
		Short: "Print, for every outer annotation, the inner entries it covers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outer, err := entry.ParseType(outerName)
			if err != nil {
				return err
			}
			inner, err := entry.ParseType(innerName)
			if err != nil {
				return err
			}
			packs, err := loadPacks(cmd.Context(), args, opts)
			if err != nil {
				return err
			}
			p := packs[0].pack
			if err := p.BuildCoverageIndex(outer, inner); err != nil {
				return err
			}
			cov, err := p.GetCoverageIndex(outer, inner)
			if err != nil {
				return err
			}
			out := make(map[string][]string, len(cov))
			for tid, ids := range cov {
				out[tid] = ids.Sorted()
			}
			return newEncoder(cmd.OutOrStdout()).Encode(out)
		},
	}
	cmd.Flags().StringVar(&outerName, "outer", "Sentence", "covering annotation type")
	cmd.Flags().StringVar(&innerName, "inner", "Token", "covered entry type")
	return cmd
}

func newExtractCmd(opts *rootOptions) *cobra.Command {
	var (
		requestPath string
		contextName string
		offset      int
		batchSize   int
		annotations []string
		links       []string
		groups      []string
	)
	cmd := &cobra.Command{
		Use:   "extract [file...]",
		Short: "Flatten documents into per-context records",
		Long: `Extract walks the context annotations of every document and prints one
JSON record per context, or one per batch with --batch-size.

Selections are given as TYPE[@COMPONENT]=FIELD,FIELD, for example
--annotation Token=term,pos --link Dependency@parser=rel,parent.term.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := loadRequest(requestPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("context") {
				req.Context = contextName
			}
			if cmd.Flags().Changed("offset") {
				req.Offset = offset
			}
			for _, sel := range []struct {
				values []string
				into   *map[string]extract.FieldRequest
			}{
				{annotations, &req.Annotations},
				{links, &req.Links},
				{groups, &req.Groups},
			} {
				if err := parseSelections(sel.values, sel.into); err != nil {
					return err
				}
			}

			packs, err := loadPacks(cmd.Context(), args, opts)
			if err != nil {
				return err
			}
			enc := newEncoder(cmd.OutOrStdout())
			for _, lp := range packs {
				x := extract.New(lp.pack, nil)
				if batchSize > 0 {
					err = x.Batches(req, batchSize, func(b extract.Batch) error { return enc.Encode(b) })
				} else {
					err = x.Each(req, func(inst extract.Instance) error { return enc.Encode(inst) })
				}
				if err != nil {
					return fmt.Errorf("%s: %w", lp.path, err)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&requestPath, "request", "r", "", "JSON or YAML request file")
	cmd.Flags().StringVarP(&contextName, "context", "c", extract.DocumentContext, "context annotation type, or document")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of leading contexts to skip")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "stack records into batches of this size")
	cmd.Flags().StringArrayVarP(&annotations, "annotation", "a", nil, "annotation selection")
	cmd.Flags().StringArrayVarP(&links, "link", "l", nil, "link selection")
	cmd.Flags().StringArrayVarP(&groups, "group", "g", nil, "group selection")
	return cmd
}

// loadRequest reads a request file; YAML is used for .yaml and .yml paths.
func loadRequest(path string) (extract.Request, error) {
	var req extract.Request
	if path == "" {
		return req, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return req, fmt.Errorf("reading request %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &req)
	default:
		err = json.Unmarshal(data, &req)
	}
	if err != nil {
		return req, apperrors.Newf(apperrors.ErrInvalidInput, "parsing request %s: %v", path, err)
	}
	return req, nil
}

// parseSelections merges TYPE[@COMPONENT]=FIELD,... values into into.
func parseSelections(values []string, into *map[string]extract.FieldRequest) error {
	for _, v := range values {
		head, fieldList, _ := strings.Cut(v, "=")
		name, component, _ := strings.Cut(head, "@")
		name = strings.TrimSpace(name)
		if name == "" {
			return apperrors.Newf(apperrors.ErrInvalidInput, "selection %q has no type", v)
		}
		fr := extract.FieldRequest{Component: strings.TrimSpace(component)}
		for _, f := range strings.Split(fieldList, ",") {
			if f = strings.TrimSpace(f); f != "" {
				fr.Fields = append(fr.Fields, f)
			}
		}
		if *into == nil {
			*into = make(map[string]extract.FieldRequest)
		}
		(*into)[name] = fr
	}
	return nil
}

func newEncoder(w io.Writer) *json.Encoder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc
}
