package types

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultMaxResults    = 10
	DefaultMinConfidence = 0.7
	MaxResultsCap        = 50
)

type Validater interface {
	Validate() map[string]string
}

// QueryParams is the request body of the query endpoint, matching the
// contract the chat frontend already speaks.
type QueryParams struct {
	Question      string   `json:"question" validate:"required,min=3"`
	Countries     []string `json:"countries,omitempty"`
	Databases     []string `json:"selectedDatabases,omitempty"`
	MaxResults    int      `json:"max_results,omitempty" validate:"omitempty,min=1,max=50"`
	MinConfidence *float64 `json:"min_confidence,omitempty" validate:"omitempty,min=0,max=1"`
}

// ApplyDefaults resolves the implicit "all knowledge bases, default caps"
// behavior once, at the gateway boundary.
func (params *QueryParams) ApplyDefaults() {
	if params.MaxResults == 0 {
		params.MaxResults = DefaultMaxResults
	}
	if params.MinConfidence == nil {
		def := DefaultMinConfidence
		params.MinConfidence = &def
	}
}

func Validate(v Validater) map[string]string {
	return v.Validate()
}

func (params *QueryParams) Validate() map[string]string {
	validate := validator.New()
	if err := validate.Struct(params); err != nil {
		errs := err.(validator.ValidationErrors)
		errors := make(map[string]string)
		for _, e := range errs {
			errors[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
		}
		return errors
	}
	return nil
}

// Source is one citation in a synthesized answer.
type Source struct {
	DocumentTitle string  `json:"document_title"`
	PageNumber    int     `json:"page_number,omitempty"`
	Section       string  `json:"section,omitempty"`
	Confidence    float64 `json:"confidence"`
	RelevantText  string  `json:"relevant_text"`
}

// SearchResponse is the structured response of the query endpoint.
type SearchResponse struct {
	Answer             string   `json:"answer"`
	ConfidenceScore    float64  `json:"confidence_score"`
	Sources            []Source `json:"sources"`
	SearchResultsCount int      `json:"search_results_count"`
	ProcessingTimeMs   int64    `json:"processing_time_ms"`
}

// Answer is the synthesizer output before the gateway attaches timing
// and candidate-count metadata.
type Answer struct {
	Text         string
	Confidence   float64
	Sources      []Source
	Insufficient bool
}

type IngestResponse struct {
	DocumentID      string `json:"document_id"`
	Collection      string `json:"collection"`
	ChunksGenerated int    `json:"chunks_generated"`
	ChunksFailed    int    `json:"chunks_failed,omitempty"`
	Warning         string `json:"warning,omitempty"`
}
