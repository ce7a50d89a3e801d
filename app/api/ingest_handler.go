package api

import (
	"database/sql"
	"errors"
	"io"

	"taxrag/ingest"
	"taxrag/store"
	"taxrag/types"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type IngestHandler struct {
	pipeline *ingest.Pipeline
	store    store.DBStorer
}

func NewIngestHandler(pipeline *ingest.Pipeline, s store.DBStorer) *IngestHandler {
	return &IngestHandler{
		pipeline: pipeline,
		store:    s,
	}
}

// HandleUpload ingests one uploaded document end to end and reports the
// generated chunk count. Partial ingestion is a warning, not a failure.
func (h *IngestHandler) HandleUpload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return ErrBadRequest()
	}

	file, err := fileHeader.Open()
	if err != nil {
		return err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}

	result, err := h.pipeline.Ingest(c.Context(), fileHeader.Filename, data)
	if err != nil {
		if errors.Is(err, ingest.ErrIngestInFlight) {
			return ErrConflict(err.Error())
		}
		return err
	}

	resp := types.IngestResponse{
		DocumentID:      result.DocID.String(),
		Collection:      result.Collection,
		ChunksGenerated: result.ChunksGenerated,
		ChunksFailed:    result.ChunksFailed,
	}
	if result.ChunksFailed > 0 {
		resp.Warning = "some chunks failed to embed and were skipped"
	}
	return c.JSON(resp)
}

func (h *IngestHandler) HandleDelete(c *fiber.Ctx) error {
	docID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}

	if err := h.store.DeleteDocument(c.Context(), docID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound(docID, "document")
		}
		return err
	}
	return c.JSON(fiber.Map{"deleted": docID.String()})
}
