package extract

import (
	"errors"
	"fmt"

	"github.com/hurttlocker/ownerscan/internal/provider"
	"github.com/hurttlocker/ownerscan/internal/segment"
)

// ErrEmptyResult marks a successful extraction that found no owners. The
// engine never returns it; callers raise it when zero records must be shown
// to a user as "nothing found".
var ErrEmptyResult = errors.New("no owner records found")

// Record is one owner extracted from one block of listing text.
type Record struct {
	Name  string `json:"owner_name"`
	Phone string `json:"phone"`
}

// Stats describes how a document was consumed.
type Stats struct {
	Blocks  int `json:"blocks"`
	Records int `json:"records"`
	Dropped int `json:"dropped"` // blocks without a recognizable owner name
}

// Result is the detailed outcome of one extraction. Stats is left zero (and
// omitted from JSON) when records came from a processor rather than the engine.
type Result struct {
	Provider string   `json:"provider"`
	Records  []Record `json:"owners"`
	Stats    Stats    `json:"stats,omitzero"`
}

// Engine composes the provider registry, the block segmenter and the record
// extractor. It holds no mutable state and is safe for concurrent use.
type Engine struct {
	registry *provider.Registry
}

// NewEngine creates an engine over a read-only registry.
func NewEngine(reg *provider.Registry) *Engine {
	return &Engine{registry: reg}
}

// Registry exposes the engine's provider catalog.
func (e *Engine) Registry() *provider.Registry {
	return e.registry
}

// Extract returns the owner records found in text for the given provider,
// in source order. An unknown provider fails with provider.ErrUnknownProvider
// before any text is examined; text with no blocks yields an empty slice.
func (e *Engine) Extract(text, providerID string) ([]Record, error) {
	res, err := e.ExtractDetailed(text, providerID)
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

// ExtractDetailed is Extract plus block accounting.
func (e *Engine) ExtractDetailed(text, providerID string) (*Result, error) {
	p, err := e.registry.Lookup(providerID)
	if err != nil {
		return nil, err
	}

	blocks := segment.SplitWith(text, p.BlockSeparator())
	records, stats, err := ExtractBlocks(p, blocks)
	if err != nil {
		return nil, err
	}
	return &Result{Provider: p.ID, Records: records, Stats: stats}, nil
}

// ExtractBlocks applies p's patterns to each block. A block yields a record
// only when the name pattern captures a non-blank name; the phone is
// independent and defaults to "".
func ExtractBlocks(p provider.Provider, blocks []segment.Block) ([]Record, Stats, error) {
	records := make([]Record, 0, len(blocks))
	stats := Stats{Blocks: len(blocks)}

	for _, b := range blocks {
		rec, ok, err := extractRecord(p, b.Text)
		if err != nil {
			return nil, stats, fmt.Errorf("block at line %d: %w", b.Line, err)
		}
		if !ok {
			stats.Dropped++
			continue
		}
		records = append(records, rec)
	}

	stats.Records = len(records)
	return records, stats, nil
}

func extractRecord(p provider.Provider, block string) (Record, bool, error) {
	name, ok, err := p.MatchName(block)
	if err != nil || !ok {
		return Record{}, false, err
	}
	phone, err := p.MatchPhone(block)
	if err != nil {
		return Record{}, false, err
	}
	return Record{Name: name, Phone: phone}, true, nil
}

// RequireRecords converts an empty record set into ErrEmptyResult.
func RequireRecords(records []Record) error {
	if len(records) == 0 {
		return ErrEmptyResult
	}
	return nil
}
