package api

import (
	"taxrag/store"
	"taxrag/types"

	"github.com/gofiber/fiber/v2"
)

// InfoHandler serves the knowledge-base listing the frontend selector
// consumes, plus the system status summary.
type InfoHandler struct {
	store store.DBStorer
}

func NewInfoHandler(s store.DBStorer) *InfoHandler {
	return &InfoHandler{
		store: s,
	}
}

func (h *InfoHandler) HandleDatabases(c *fiber.Ctx) error {
	cols, err := h.store.ListCollections(c.Context())
	if err != nil {
		return err
	}
	if cols == nil {
		cols = []types.Collection{}
	}
	return c.JSON(fiber.Map{"databases": cols})
}

func (h *InfoHandler) HandleStatus(c *fiber.Ctx) error {
	stats, err := h.store.Stats(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"status":            statusOf(stats),
		"total_chunks":      stats.TotalChunks,
		"unique_documents":  stats.UniqueDocuments,
		"countries_covered": stats.CountriesCovered,
		"topics_covered":    stats.TopicsCovered,
		"ready":             stats.TotalChunks > 0,
	})
}

func statusOf(stats *types.StoreStats) string {
	if stats.TotalChunks > 0 {
		return "healthy"
	}
	return "empty"
}
