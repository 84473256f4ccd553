// Package pipeline turns documents into owner records, either locally
// (text acquisition + extraction engine) or by delegating to a remote
// extraction service. Both paths share the same contract.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hurttlocker/ownerscan/internal/extract"
	"github.com/hurttlocker/ownerscan/internal/remote"
	"github.com/hurttlocker/ownerscan/internal/textsource"
)

// DefaultConcurrency bounds ProcessBatch when no limit is given.
const DefaultConcurrency = 4

// Processor converts one document into owner records. Implementations return
// extract.ErrEmptyResult when the document yields no owners.
type Processor interface {
	Process(ctx context.Context, doc textsource.Document, providerID string) ([]extract.Record, error)
}

// Local acquires text from Source and runs the extraction engine in-process.
type Local struct {
	Source textsource.Source
	Engine *extract.Engine
	Logger *zap.Logger
}

// Process implements Processor.
func (l *Local) Process(ctx context.Context, doc textsource.Document, providerID string) ([]extract.Record, error) {
	// Resolve the provider before paying for text acquisition.
	if _, err := l.Engine.Registry().Lookup(providerID); err != nil {
		return nil, err
	}

	start := time.Now()
	text, err := l.Source.Text(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", docName(doc), err)
	}

	res, err := l.Engine.ExtractDetailed(text, providerID)
	if err != nil {
		return nil, err
	}

	logger(l.Logger).Debug("document processed",
		zap.String("file", docName(doc)),
		zap.String("provider", providerID),
		zap.Int("blocks", res.Stats.Blocks),
		zap.Int("records", res.Stats.Records),
		zap.Int("dropped", res.Stats.Dropped),
		zap.Duration("elapsed", time.Since(start)),
	)

	if err := extract.RequireRecords(res.Records); err != nil {
		return nil, err
	}
	return res.Records, nil
}

// Remote delegates extraction to a hosted service.
type Remote struct {
	Client *remote.Client
	Logger *zap.Logger
}

// Process implements Processor.
func (r *Remote) Process(ctx context.Context, doc textsource.Document, providerID string) ([]extract.Record, error) {
	records, err := r.Client.Extract(ctx, doc, providerID)
	if err != nil {
		return nil, fmt.Errorf("remote extraction of %s: %w", docName(doc), err)
	}
	logger(r.Logger).Debug("remote document processed",
		zap.String("file", docName(doc)),
		zap.String("provider", providerID),
		zap.Int("records", len(records)),
	)
	if err := extract.RequireRecords(records); err != nil {
		return nil, err
	}
	return records, nil
}

// BatchResult is the outcome for one document of a batch.
type BatchResult struct {
	Document string
	Records  []extract.Record
	Err      error
}

// ProcessBatch runs p over docs with at most concurrency documents in flight.
// Results are returned in input order, and each document keeps its own record
// order.
func ProcessBatch(ctx context.Context, p Processor, docs []textsource.Document, providerID string, concurrency int) []BatchResult {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	results := make([]BatchResult, len(docs))
	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency)

	for i, doc := range docs {
		results[i].Document = docName(doc)
		if err := ctx.Err(); err != nil {
			results[i].Err = err
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(i int, doc textsource.Document) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i].Records, results[i].Err = p.Process(ctx, doc, providerID)
		}(i, doc)
	}

	wg.Wait()
	return results
}

func docName(doc textsource.Document) string {
	if doc.Name == "" {
		return "<stdin>"
	}
	return doc.Name
}

func logger(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
