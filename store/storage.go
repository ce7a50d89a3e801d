package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"taxrag/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// SearchOptions restricts a similarity search to selected partitions.
// Empty slices mean no restriction.
type SearchOptions struct {
	Collections []string
	Countries   []string
	Limit       int
}

type DBStorer interface {
	SaveDocument(context.Context, types.Document) error
	PublishDocument(context.Context, uuid.UUID) error
	GetDocumentByID(context.Context, uuid.UUID) (*types.Document, error)
	DeleteDocument(context.Context, uuid.UUID) error
	DeleteChunksByDocID(context.Context, uuid.UUID) error
	SaveChunk(context.Context, types.Chunk) error
	Search(context.Context, []float32, SearchOptions) ([]types.Chunk, error)
	ListCollections(context.Context) ([]types.Collection, error)
	Stats(context.Context) (*types.StoreStats, error)
}

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{
		pool: pool,
	}, nil
}

func (p *PostgresStore) GetDocumentByID(ctx context.Context, docID uuid.UUID) (*types.Document, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, title, collection, source, source_path, size_bytes,
		       embedding_model, published, created_at, updated_at, version
		FROM documents WHERE id = $1`, docID)

	doc := &types.Document{}
	if err := row.Scan(
		&doc.ID,
		&doc.Title,
		&doc.Collection,
		&doc.Source,
		&doc.SourcePath,
		&doc.SizeBytes,
		&doc.EmbeddingModel,
		&doc.Published,
		&doc.CreatedAt,
		&doc.UpdatedAt,
		&doc.Version); err != nil {
		if err == pgx.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, err
	}
	return doc, nil
}

// SaveDocument upserts the document row unpublished. Re-ingesting the same
// source bumps the version; the chunk set is replaced, never patched.
func (p *PostgresStore) SaveDocument(ctx context.Context, doc types.Document) error {
	query := `INSERT INTO documents (id, title, collection, source, source_path, size_bytes,
			embedding_model, published, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			collection = EXCLUDED.collection,
			source = EXCLUDED.source,
			source_path = EXCLUDED.source_path,
			size_bytes = EXCLUDED.size_bytes,
			embedding_model = EXCLUDED.embedding_model,
			published = false,
			updated_at = EXCLUDED.updated_at,
			version = documents.version + 1
			`
	_, err := p.pool.Exec(
		ctx,
		query,
		doc.ID,
		doc.Title,
		doc.Collection,
		doc.Source,
		doc.SourcePath,
		doc.SizeBytes,
		doc.EmbeddingModel,
		doc.CreatedAt,
		doc.UpdatedAt,
		doc.Version,
	)
	return err
}

// PublishDocument makes a fully written chunk set visible to queries and
// refreshes the collection summary in the same transaction. Readers never
// see a partially ingested document.
func (p *PostgresStore) PublishDocument(ctx context.Context, docID uuid.UUID) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "UPDATE documents SET published = true WHERE id = $1", docID); err != nil {
		return err
	}

	query := `
		INSERT INTO collections (name, chunk_count, size_bytes, embedding_model, updated_at)
		SELECT d.collection,
		       count(c.id),
		       coalesce(sum(length(c.content)), 0),
		       max(d.embedding_model),
		       now()
		FROM documents d
		LEFT JOIN chunks c ON c.doc_id = d.id
		WHERE d.collection = (SELECT collection FROM documents WHERE id = $1)
		  AND d.published
		GROUP BY d.collection
		ON CONFLICT (name) DO UPDATE SET
			chunk_count = EXCLUDED.chunk_count,
			size_bytes = EXCLUDED.size_bytes,
			embedding_model = EXCLUDED.embedding_model,
			updated_at = EXCLUDED.updated_at
		`
	if _, err := tx.Exec(ctx, query, docID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (p *PostgresStore) DeleteDocument(ctx context.Context, docID uuid.UUID) error {
	doc, err := p.GetDocumentByID(ctx, docID)
	if err != nil {
		return err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM chunks WHERE doc_id = $1", docID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, "DELETE FROM documents WHERE id = $1", docID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE collections SET
			chunk_count = s.cnt, size_bytes = s.bytes, updated_at = now()
		FROM (
			SELECT count(c.id) AS cnt, coalesce(sum(length(c.content)), 0) AS bytes
			FROM documents d LEFT JOIN chunks c ON c.doc_id = d.id
			WHERE d.collection = $1 AND d.published
		) s
		WHERE collections.name = $1`, doc.Collection); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (p *PostgresStore) DeleteChunksByDocID(ctx context.Context, docID uuid.UUID) error {
	_, err := p.pool.Exec(ctx, "DELETE FROM chunks WHERE doc_id = $1", docID)
	return err
}

func (p *PostgresStore) SaveChunk(ctx context.Context, c types.Chunk) error {
	query := `
    INSERT INTO chunks (id, doc_id, position, start_char, end_char, page, section,
		country, topic, detect_score, content, embedding)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
    `
	_, err := p.pool.Exec(ctx, query,
		c.ID, c.DocID, c.Position, c.StartChar, c.EndChar, c.Page, c.Section,
		c.Country, c.Topic, c.Detect, c.Content, pgvector.NewVector(c.Embedding),
	)
	return err
}

// Search returns candidates ordered by similarity descending with the
// deterministic tie-break: document recency first, then chunk position.
// Only published documents are visible.
func (p *PostgresStore) Search(ctx context.Context, queryVec []float32, opts SearchOptions) ([]types.Chunk, error) {
	if len(queryVec) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}
	if opts.Limit <= 0 {
		opts.Limit = types.MaxResultsCap
	}
	// nil slices would encode as SQL NULL and make the cardinality guards
	// filter every row.
	if opts.Collections == nil {
		opts.Collections = []string{}
	}
	if opts.Countries == nil {
		opts.Countries = []string{}
	}

	vector := pgvector.NewVector(queryVec)

	query := `
		SELECT c.id, c.doc_id, d.title, d.collection, c.position, c.start_char, c.end_char,
		       c.page, c.section, c.country, c.topic, c.detect_score, c.content,
		       1 - (c.embedding <=> $1) AS similarity, d.created_at
		FROM chunks c
		JOIN documents d ON c.doc_id = d.id
		WHERE d.published
		  AND c.embedding IS NOT NULL
		  AND (cardinality($2::text[]) = 0 OR d.collection = ANY($2))
		  AND (cardinality($3::text[]) = 0 OR c.country = ANY($3))
		ORDER BY c.embedding <=> $1 ASC, d.created_at DESC, c.position ASC
		LIMIT $4
	`
	rows, err := p.pool.Query(ctx, query, vector, opts.Collections, opts.Countries, opts.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []types.Chunk
	for rows.Next() {
		var chunk types.Chunk
		if err := rows.Scan(
			&chunk.ID,
			&chunk.DocID,
			&chunk.DocTitle,
			&chunk.Collection,
			&chunk.Position,
			&chunk.StartChar,
			&chunk.EndChar,
			&chunk.Page,
			&chunk.Section,
			&chunk.Country,
			&chunk.Topic,
			&chunk.Detect,
			&chunk.Content,
			&chunk.Similarity,
			&chunk.IngestedAt); err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func (p *PostgresStore) ListCollections(ctx context.Context) ([]types.Collection, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT name, chunk_count, size_bytes, embedding_model, updated_at
		FROM collections ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []types.Collection
	for rows.Next() {
		var col types.Collection
		if err := rows.Scan(&col.Name, &col.ChunkCount, &col.SizeBytes, &col.EmbeddingModel, &col.UpdatedAt); err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

func (p *PostgresStore) Stats(ctx context.Context) (*types.StoreStats, error) {
	stats := &types.StoreStats{}
	err := p.pool.QueryRow(ctx, `
		SELECT count(c.id),
		       count(DISTINCT c.doc_id),
		       count(DISTINCT c.country) FILTER (WHERE c.country <> 'unknown'),
		       count(DISTINCT c.topic) FILTER (WHERE c.topic <> 'unknown')
		FROM chunks c
		JOIN documents d ON c.doc_id = d.id
		WHERE d.published`).Scan(
		&stats.TotalChunks,
		&stats.UniqueDocuments,
		&stats.CountriesCovered,
		&stats.TopicsCovered)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (p *PostgresStore) createRagTables(ctx context.Context) error {

	query := `
	CREATE TABLE IF NOT EXISTS documents (
		id UUID PRIMARY KEY,
		title TEXT NOT NULL,
		collection TEXT NOT NULL,
		source TEXT,
		source_path TEXT,
		size_bytes INTEGER DEFAULT 0,
		embedding_model TEXT NOT NULL,
		published BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMP WITH TIME ZONE,
		updated_at TIMESTAMP WITH TIME ZONE,
		version INTEGER DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection);

    CREATE EXTENSION IF NOT EXISTS vector;

    CREATE TABLE IF NOT EXISTS chunks (
        id UUID PRIMARY KEY,
        doc_id UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
        position INT NOT NULL,
        start_char INT NOT NULL,
        end_char INT NOT NULL,
        page INT DEFAULT 0,
        section TEXT,
        country TEXT NOT NULL DEFAULT 'unknown',
        topic TEXT NOT NULL DEFAULT 'unknown',
        detect_score DOUBLE PRECISION DEFAULT 0,
        content TEXT NOT NULL,
        embedding vector(768)
    );

	CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON chunks USING ivfflat (embedding vector_cosine_ops)
	WITH (lists = 100);

	CREATE INDEX IF NOT EXISTS idx_chunks_doc_id ON chunks(doc_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_country ON chunks(country);
	CREATE INDEX IF NOT EXISTS idx_chunks_topic ON chunks(topic);

	CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		chunk_count INT NOT NULL DEFAULT 0,
		size_bytes INT NOT NULL DEFAULT 0,
		embedding_model TEXT NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE
	);
    `
	_, err := p.pool.Exec(ctx, query)
	return err
}

func (p *PostgresStore) Init(ctx context.Context) error {
	return p.createRagTables(ctx)
}

func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
		slog.Info("Postgres connection pool is closed")
	}
	return nil
}
