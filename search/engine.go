package search

import (
	"context"
	"fmt"
	"sort"

	"taxrag/ingest"
	"taxrag/model"
	"taxrag/store"
	"taxrag/types"
)

// Options are the validated retrieval parameters for one query.
type Options struct {
	Countries     []string
	Collections   []string
	MaxResults    int
	MinConfidence float64
}

// Result carries the ranked passages plus the candidate count before the
// confidence cut, which the gateway reports as search_results_count.
type Result struct {
	Passages   []types.Chunk
	Candidates int
}

// Engine maps a natural-language question to a ranked set of chunks. It is
// stateless; the store is the only shared resource.
type Engine struct {
	store    store.DBStorer
	embedder model.EmbedderInterface
}

func NewEngine(s store.DBStorer, e model.EmbedderInterface) *Engine {
	return &Engine{
		store:    s,
		embedder: e,
	}
}

// Search validates filters, embeds the question with the same model used at
// ingestion, and returns passages ordered by similarity with the
// deterministic tie-break (newer document first, earlier passage first).
// An empty result is not an error; it means no relevant passage.
func (e *Engine) Search(ctx context.Context, question string, opts Options) (*Result, error) {
	countries, err := e.normalizeCountries(opts.Countries)
	if err != nil {
		return nil, err
	}
	collections, err := e.validateCollections(ctx, opts.Collections)
	if err != nil {
		return nil, err
	}

	if opts.MaxResults <= 0 {
		opts.MaxResults = types.DefaultMaxResults
	}
	if opts.MaxResults > types.MaxResultsCap {
		opts.MaxResults = types.MaxResultsCap
	}

	queryVec, err := e.embedder.Embed(ctx, question)
	if err != nil {
		return nil, types.EmbeddingError{Stage: "query", Attempts: 1, Err: err}
	}

	candidates, err := e.store.Search(ctx, queryVec, store.SearchOptions{
		Collections: collections,
		Countries:   countries,
		Limit:       types.MaxResultsCap,
	})
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	// Re-sort defensively so ordering is deterministic regardless of the
	// store implementation behind the interface.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		if !candidates[i].IngestedAt.Equal(candidates[j].IngestedAt) {
			return candidates[i].IngestedAt.After(candidates[j].IngestedAt)
		}
		return candidates[i].Position < candidates[j].Position
	})

	passages := make([]types.Chunk, 0, opts.MaxResults)
	for _, c := range candidates {
		if c.Similarity < opts.MinConfidence {
			continue
		}
		passages = append(passages, c)
		if len(passages) == opts.MaxResults {
			break
		}
	}

	return &Result{
		Passages:   passages,
		Candidates: len(candidates),
	}, nil
}

// normalizeCountries maps filter values to canonical ISO-2 tags. Chunks
// tagged "unknown" never match an active country filter; they are only
// eligible when no filter is given.
func (e *Engine) normalizeCountries(values []string) ([]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		code, ok := ingest.NormalizeCountry(v)
		if !ok {
			return nil, types.InvalidFilterError{Field: "country", Value: v}
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out, nil
}

// validateCollections rejects unknown collection names and any collection
// whose stored vectors came from a different embedding model version.
// With no selection, every collection is in scope and still gets the
// model-version guard.
func (e *Engine) validateCollections(ctx context.Context, selected []string) ([]string, error) {
	known, err := e.store.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	byName := make(map[string]types.Collection, len(known))
	for _, col := range known {
		byName[col.Name] = col
	}

	inScope := known
	if len(selected) > 0 {
		inScope = inScope[:0]
		for _, name := range selected {
			col, ok := byName[name]
			if !ok {
				return nil, types.InvalidFilterError{Field: "collection", Value: name}
			}
			inScope = append(inScope, col)
		}
	}

	version := e.embedder.ModelVersion()
	for _, col := range inScope {
		if col.EmbeddingModel != version {
			return nil, types.ModelMismatchError{
				Collection: col.Name,
				Want:       col.EmbeddingModel,
				Got:        version,
			}
		}
	}

	// nil means "all collections" at the store layer.
	if len(selected) == 0 {
		return nil, nil
	}
	names := make([]string, len(inScope))
	for i, col := range inScope {
		names[i] = col.Name
	}
	return names, nil
}
