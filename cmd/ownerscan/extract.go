package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hurttlocker/ownerscan/internal/config"
	"github.com/hurttlocker/ownerscan/internal/extract"
	"github.com/hurttlocker/ownerscan/internal/pipeline"
	"github.com/hurttlocker/ownerscan/internal/remote"
	"github.com/hurttlocker/ownerscan/internal/tabular"
	"github.com/hurttlocker/ownerscan/internal/textsource"
)

const extractUsage = "usage: ownerscan extract <file>... [--provider <id>] [--format csv|json|xlsx] [--out <path>] [--remote <url>] [--sample] [--stats]"

type extractOptions struct {
	provider    string
	format      string
	out         string
	remoteURL   string
	sample      bool
	stats       bool
	concurrency int
	files       []string
}

func parseExtractArgs(args []string) (extractOptions, error) {
	var opts extractOptions
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.provider, "provider", "", "provider id")
	fs.StringVar(&opts.format, "format", "csv", "output format")
	fs.StringVar(&opts.out, "out", "", "output path")
	fs.StringVar(&opts.remoteURL, "remote", "", "remote service URL")
	fs.BoolVar(&opts.sample, "sample", false, "use the sample listing")
	fs.BoolVar(&opts.stats, "stats", false, "print document/owner/failure counts to stderr")
	fs.IntVar(&opts.concurrency, "concurrency", pipeline.DefaultConcurrency, "documents processed in parallel")

	// Flags may follow positional file arguments.
	for {
		if err := fs.Parse(args); err != nil {
			return opts, fmt.Errorf("%v\n%s", err, extractUsage)
		}
		if fs.NArg() == 0 {
			break
		}
		opts.files = append(opts.files, fs.Arg(0))
		args = fs.Args()[1:]
	}

	opts.format = strings.ToLower(strings.TrimSpace(opts.format))
	switch opts.format {
	case "csv", "json", "xlsx":
	default:
		return opts, fmt.Errorf("unknown format %q (want csv, json or xlsx)", opts.format)
	}
	if opts.sample && len(opts.files) > 0 {
		return opts, errors.New("--sample does not take file arguments")
	}
	if !opts.sample && len(opts.files) == 0 {
		return opts, errors.New(extractUsage)
	}
	if opts.sample && opts.remoteURL != "" {
		return opts, errors.New("--sample cannot be combined with --remote")
	}
	return opts, nil
}

func runExtract(args []string, stdout io.Writer) error {
	opts, err := parseExtractArgs(args)
	if err != nil {
		return err
	}

	cfg, err := resolveSettings(config.ResolveOptions{
		CLIProvider:  opts.provider,
		CLIRemoteURL: opts.remoteURL,
	})
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel.Value, false, cfg.LogFile.Value)
	if err != nil {
		return err
	}
	defer logger.Sync()

	engine, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	def, _ := engine.Registry().Default()
	providerID := def.ID

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var proc pipeline.Processor
	switch {
	case cfg.RemoteURL.Value != "":
		client, err := remote.NewClient(remote.Config{BaseURL: cfg.RemoteURL.Value}, nil, logger)
		if err != nil {
			return err
		}
		proc = &pipeline.Remote{Client: client, Logger: logger}
	case opts.sample:
		proc = &pipeline.Local{Source: textsource.Sample{}, Engine: engine, Logger: logger}
	default:
		proc = &pipeline.Local{Source: buildSource(cfg, logger), Engine: engine, Logger: logger}
	}

	docs, err := loadDocuments(opts)
	if err != nil {
		return err
	}

	results := pipeline.ProcessBatch(ctx, proc, docs, providerID, opts.concurrency)

	var records []extract.Record
	var failed int
	for _, r := range results {
		if r.Err != nil {
			if errors.Is(r.Err, extract.ErrEmptyResult) {
				logger.Warn("no owners found", zap.String("file", r.Document))
			} else {
				failed++
				logger.Error("extraction failed", zap.String("file", r.Document), zap.Error(r.Err))
			}
			continue
		}
		logger.Info("extracted", zap.String("file", r.Document), zap.String("provider", providerID), zap.Int("records", len(r.Records)))
		records = append(records, r.Records...)
	}

	if opts.stats {
		fmt.Fprintf(os.Stderr, "%d document(s), %d owner(s), %d failed\n", len(docs), len(records), failed)
	}

	if len(records) == 0 {
		if failed > 0 {
			for _, r := range results {
				if r.Err != nil && !errors.Is(r.Err, extract.ErrEmptyResult) {
					return fmt.Errorf("%s: %s (%v)", r.Document, pipeline.UserMessage(r.Err), r.Err)
				}
			}
		}
		return errors.New(pipeline.EmptyResultMessage)
	}

	if err := writeRecords(stdout, opts, docs[0].Name, providerID, records); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d document(s) failed", failed, len(docs))
	}
	return nil
}

func loadDocuments(opts extractOptions) ([]textsource.Document, error) {
	if opts.sample {
		return []textsource.Document{{Name: "amostra.txt"}}, nil
	}
	docs := make([]textsource.Document, 0, len(opts.files))
	for _, path := range opts.files {
		var (
			data []byte
			err  error
		)
		if path == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(path)
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		name := filepath.Base(path)
		if path == "-" {
			name = ""
		}
		docs = append(docs, textsource.Document{Name: name, Data: data})
	}
	return docs, nil
}

func writeRecords(stdout io.Writer, opts extractOptions, sourceName, providerID string, records []extract.Record) error {
	w := stdout
	if opts.out != "" {
		path := opts.out
		if path == "auto" {
			path = tabular.DownloadName(sourceName, "."+opts.format)
		}
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
		defer f.Close()
		w = f
		defer fmt.Fprintf(os.Stderr, "Wrote %d owner(s) to %s\n", len(records), path)
	}

	switch opts.format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(extract.Result{Provider: providerID, Records: records})
	case "xlsx":
		return tabular.WriteXLSX(w, records)
	default:
		if err := tabular.WriteCSV(w, records); err != nil {
			return err
		}
		if opts.out == "" {
			_, err := io.WriteString(w, "\n")
			return err
		}
		return nil
	}
}
