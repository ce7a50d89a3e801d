package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"taxrag/model"
	"taxrag/store"
	"taxrag/types"

	"github.com/google/uuid"
)

// ErrIngestInFlight means another ingest for the same document id is still
// running. Writers serialize per document to avoid duplicate chunk sets.
var ErrIngestInFlight = errors.New("ingest already in progress for this document")

// Result reports one finished ingest. ChunksFailed > 0 is a partial-ingest
// warning, not a failure: a single bad chunk must not abort the document.
type Result struct {
	DocID           uuid.UUID
	Collection      string
	ChunksGenerated int
	ChunksFailed    int
}

type Pipeline struct {
	store    store.DBStorer
	embedder model.EmbedderInterface
	cfg      types.Config
	logger   *slog.Logger

	mu       sync.Mutex
	inflight map[uuid.UUID]struct{}
}

func NewPipeline(s store.DBStorer, e model.EmbedderInterface, cfg types.Config) *Pipeline {
	return &Pipeline{
		store:    s,
		embedder: e,
		cfg:      cfg,
		logger:   slog.Default(),
		inflight: make(map[uuid.UUID]struct{}),
	}
}

// DocumentID derives a stable id from the source name, which makes
// re-ingestion idempotent: the same file always maps to the same document.
func DocumentID(filename string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("taxrag:"+CollectionName(filename)))
}

// CollectionName slugs the file name into the knowledge-base name the
// frontend selector shows.
func CollectionName(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	slug := strings.ToLower(strings.TrimSpace(base))
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, slug)
	return strings.Trim(slug, "_")
}

// Ingest runs the whole pipeline for one file: extract, normalize, chunk,
// detect, embed, persist. Chunks are written unpublished and the document
// is flipped visible only once the full set is committed, so concurrent
// queries never see a half-ingested document.
func (p *Pipeline) Ingest(ctx context.Context, filename string, data []byte) (*Result, error) {
	ex, err := Extract(filename, data)
	if err != nil {
		return nil, err
	}

	text := Normalize(ex.Text)
	spans, err := SlidingWindow(text, p.cfg.ChunkSize, p.cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	if len(spans) == 0 {
		return nil, types.ExtractionError{Source: filename, Reason: "no text content"}
	}

	docID := DocumentID(filename)
	if !p.acquire(docID) {
		return nil, ErrIngestInFlight
	}
	defer p.release(docID)

	now := time.Now().UTC()
	doc := types.Document{
		ID:             docID,
		Title:          titleOf(filename),
		Collection:     CollectionName(filename),
		Source:         ex.Source,
		SourcePath:     filename,
		SizeBytes:      len(text),
		EmbeddingModel: p.embedder.ModelVersion(),
		CreatedAt:      now,
		UpdatedAt:      now,
		Version:        1,
	}
	if err := p.store.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}
	// Replace, never patch, the previous chunk set.
	if err := p.store.DeleteChunksByDocID(ctx, docID); err != nil {
		return nil, fmt.Errorf("delete old chunks: %w", err)
	}

	chunks := p.buildChunks(doc, spans)

	saved, failed := p.embedAndSave(ctx, chunks)
	if ctx.Err() != nil {
		// Committed chunks stay; ingest is idempotent per document, so a
		// retry from scratch is safe and nothing is rolled back.
		return nil, ctx.Err()
	}
	if saved == 0 {
		return nil, types.EmbeddingError{
			Stage:    "ingest",
			Attempts: p.cfg.EmbedAttempts,
			Err:      fmt.Errorf("all %d chunks failed for %s", len(chunks), filename),
		}
	}

	if err := p.store.PublishDocument(ctx, docID); err != nil {
		return nil, fmt.Errorf("publish document: %w", err)
	}

	if failed > 0 {
		p.logger.Warn("partial ingestion",
			"document", filename, "saved", saved, "failed", failed)
	}

	return &Result{
		DocID:           docID,
		Collection:      doc.Collection,
		ChunksGenerated: saved,
		ChunksFailed:    failed,
	}, nil
}

func (p *Pipeline) buildChunks(doc types.Document, spans []Span) []types.Chunk {
	chunks := make([]types.Chunk, len(spans))
	page := 0
	section := ""
	for i, span := range spans {
		// Page and section carry forward until a later marker appears.
		if n := lastPageMarker(span.Text); n > 0 {
			page = n
		}
		if s := sectionOf(span.Text); s != "" {
			section = s
		}
		det := DetectMetadata(span.Text)

		chunks[i] = types.Chunk{
			ID:         uuid.New(),
			DocID:      doc.ID,
			DocTitle:   doc.Title,
			Collection: doc.Collection,
			Position:   i,
			StartChar:  span.Start,
			EndChar:    span.End,
			Page:       page,
			Section:    section,
			Country:    det.Country,
			Topic:      det.Topic,
			Detect:     det.Confidence,
			Content:    span.Text,
			IngestedAt: doc.CreatedAt,
		}
	}
	return chunks
}

// embedAndSave runs a bounded worker pool over the chunks. The embedder
// retries transient failures itself; a chunk that still fails is counted
// and skipped so the rest of the document lands.
func (p *Pipeline) embedAndSave(ctx context.Context, chunks []types.Chunk) (saved, failed int) {
	workers := p.cfg.EmbedWorkers
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan int)
	results := make(chan bool)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results <- p.embedOne(ctx, &chunks[i])
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range chunks {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for ok := range results {
		if ok {
			saved++
		} else {
			failed++
		}
	}
	return saved, failed
}

func (p *Pipeline) embedOne(ctx context.Context, chunk *types.Chunk) bool {
	vec, err := p.embedder.Embed(ctx, chunk.Content)
	if err != nil {
		p.logger.Error("chunk embedding failed",
			"doc", chunk.DocID, "position", chunk.Position, "error", err)
		return false
	}
	chunk.Embedding = vec

	if err := p.store.SaveChunk(ctx, *chunk); err != nil {
		p.logger.Error("chunk save failed",
			"doc", chunk.DocID, "position", chunk.Position, "error", err)
		return false
	}
	return true
}

func (p *Pipeline) acquire(docID uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.inflight[docID]; busy {
		return false
	}
	p.inflight[docID] = struct{}{}
	return true
}

func (p *Pipeline) release(docID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inflight, docID)
}

func titleOf(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	return strings.Join(strings.FieldsFunc(base, func(r rune) bool {
		return r == '_' || r == '-'
	}), " ")
}
