package types

import (
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
)

type SourceType string

const (
	SourcePDF      SourceType = "pdf"
	SourceMarkdown SourceType = "markdown"
	SourceText     SourceType = "text"
)

// Chunk is the atomic retrieval unit: a bounded span of a document's
// normalized text plus detected metadata and its embedding.
type Chunk struct {
	ID         uuid.UUID
	DocID      uuid.UUID
	DocTitle   string
	Collection string
	Position   int
	StartChar  int
	EndChar    int
	Page       int
	Section    string
	Country    string // ISO-2 lowercase, or "unknown"
	Topic      string // controlled vocabulary, or "unknown"
	Detect     float64
	Content    string
	Embedding  []float32
	Similarity float64
	IngestedAt time.Time
}

type Document struct {
	ID             uuid.UUID
	Title          string
	Collection     string
	Source         SourceType
	SourcePath     string
	SizeBytes      int
	EmbeddingModel string
	Published      bool
	Chunks         []Chunk
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Version        int
}

// Collection is a named, independently selectable partition of chunks.
// Summaries are maintained at publish time, not recomputed per query.
type Collection struct {
	Name           string    `json:"name"`
	ChunkCount     int       `json:"chunk_count"`
	SizeBytes      int       `json:"size_bytes"`
	EmbeddingModel string    `json:"embedding_model"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type StoreStats struct {
	TotalChunks      int `json:"total_chunks"`
	UniqueDocuments  int `json:"unique_documents"`
	CountriesCovered int `json:"countries_covered"`
	TopicsCovered    int `json:"topics_covered"`
}

type Config struct {
	ServerAddr     string
	ChunkSize      int
	ChunkOverlap   int
	EmbedWorkers   int
	EmbedAttempts  int
	MonitoringTime time.Duration
	SourceDir      string
	ArchiveDir     string
	BadDir         string
}

// ConfigFromEnv gathers all tunables in one place so defaults are not
// scattered across layers.
func ConfigFromEnv() Config {
	return Config{
		ServerAddr:     envStr("SERVER_ADDR", ":8000"),
		ChunkSize:      envInt("CHUNK_SIZE", 1200),
		ChunkOverlap:   envInt("CHUNK_OVERLAP", 200),
		EmbedWorkers:   envInt("EMBED_WORKERS", 4),
		EmbedAttempts:  envInt("EMBED_ATTEMPTS", 3),
		MonitoringTime: time.Duration(envInt("LOADER_MONITORING_SEC", 3)) * time.Second,
		SourceDir:      envStr("LOADER_SOURCE_DIR", "./data/inbox"),
		ArchiveDir:     envStr("LOADER_ARCHIVE_DIR", "./data/archive"),
		BadDir:         envStr("LOADER_BAD_DIR", "./data/bad"),
	}
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}
