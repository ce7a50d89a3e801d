package api

import (
	"time"

	"taxrag/app/agent"
	"taxrag/search"
	"taxrag/types"

	"github.com/gofiber/fiber/v2"
)

// QueryHandler is the query gateway: validate, retrieve, synthesize,
// measure. One request owns its Query/Answer objects; nothing is shared
// across requests except the read-mostly store behind the engine.
type QueryHandler struct {
	engine *search.Engine
	agent  *agent.Agent
}

func NewQueryHandler(engine *search.Engine, agent *agent.Agent) *QueryHandler {
	return &QueryHandler{
		engine: engine,
		agent:  agent,
	}
}

func (h *QueryHandler) HandleQuery(c *fiber.Ctx) error {
	var params types.QueryParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}
	params.ApplyDefaults()

	start := time.Now()

	result, err := h.engine.Search(c.Context(), params.Question, search.Options{
		Countries:     params.Countries,
		Collections:   params.Databases,
		MaxResults:    params.MaxResults,
		MinConfidence: *params.MinConfidence,
	})
	if err != nil {
		return err
	}

	answer, err := h.agent.Synthesize(c.Context(), params.Question, result.Passages)
	if err != nil {
		return err
	}

	resp := &types.SearchResponse{
		Answer:             answer.Text,
		ConfidenceScore:    answer.Confidence,
		Sources:            answer.Sources,
		SearchResultsCount: result.Candidates,
		ProcessingTimeMs:   time.Since(start).Milliseconds(),
	}
	return c.JSON(resp)
}
