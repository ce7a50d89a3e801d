package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"taxrag/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct {
	output   string
	err      error
	failures int // first N calls fail with err
	calls    int
	prompts  []string
}

func (s *stubGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	s.calls++
	s.prompts = append(s.prompts, prompt)
	if s.err != nil && (s.failures == 0 || s.calls <= s.failures) {
		return "", s.err
	}
	return s.output, nil
}

func passage(title string, sim float64, content string) types.Chunk {
	return types.Chunk{
		DocTitle:   title,
		Page:       3,
		Section:    "Residência Fiscal",
		Similarity: sim,
		Content:    content,
	}
}

func TestSynthesizeInsufficientEvidence(t *testing.T) {
	gen := &stubGenerator{output: "não deve ser chamado"}
	a := New(gen)

	answer, err := a.Synthesize(context.Background(), "pergunta qualquer", nil)
	require.NoError(t, err)

	assert.True(t, answer.Insufficient)
	assert.Zero(t, answer.Confidence)
	assert.Empty(t, answer.Sources)
	assert.Contains(t, answer.Text, "Não há informação suficiente")
	assert.Zero(t, gen.calls, "no model call without evidence")
}

func TestSynthesizeCitesPassages(t *testing.T) {
	gen := &stubGenerator{output: "Portugal exige 183 dias [1]."}
	a := New(gen)

	passages := []types.Chunk{
		passage("Guia Portugal", 0.92, "Portugal considera residente quem permanece 183 dias."),
		passage("Guia Geral", 0.81, "Regras gerais de residência fiscal."),
	}
	answer, err := a.Synthesize(context.Background(), "Quando sou residente em Portugal?", passages)
	require.NoError(t, err)

	assert.False(t, answer.Insufficient)
	require.Len(t, answer.Sources, 2)
	assert.Equal(t, "Guia Portugal", answer.Sources[0].DocumentTitle)
	assert.Equal(t, 3, answer.Sources[0].PageNumber)
	assert.Equal(t, "Residência Fiscal", answer.Sources[0].Section)
	assert.InDelta(t, 0.92, answer.Sources[0].Confidence, 0.001)

	// The prompt carries numbered, attributed passages.
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "[1] Guia Portugal")
	assert.Contains(t, gen.prompts[0], "[2] Guia Geral")
	assert.Contains(t, gen.prompts[0], "Quando sou residente em Portugal?")
}

func TestSynthesizeConfidenceCappedAtBestPassage(t *testing.T) {
	a := New(&stubGenerator{output: "resposta"})

	passages := []types.Chunk{
		passage("Doc A", 0.85, "texto a"),
		passage("Doc B", 0.80, "texto b"),
		passage("Doc C", 0.75, "texto c"),
	}
	answer, err := a.Synthesize(context.Background(), "pergunta", passages)
	require.NoError(t, err)

	assert.LessOrEqual(t, answer.Confidence, 0.85)
	assert.Greater(t, answer.Confidence, 0.75)
}

func TestSynthesizeRetriesOnce(t *testing.T) {
	gen := &stubGenerator{output: "resposta", err: errors.New("temporário"), failures: 1}
	a := New(gen)

	answer, err := a.Synthesize(context.Background(), "pergunta",
		[]types.Chunk{passage("Doc", 0.9, "texto")})
	require.NoError(t, err)
	assert.Equal(t, "resposta", answer.Text)
	assert.Equal(t, 2, gen.calls)
}

func TestSynthesizeLanguageModelError(t *testing.T) {
	gen := &stubGenerator{err: errors.New("ollama indisponível")}
	a := New(gen)

	_, err := a.Synthesize(context.Background(), "pergunta",
		[]types.Chunk{passage("Doc", 0.9, "texto")})

	var lmErr types.LanguageModelError
	require.ErrorAs(t, err, &lmErr)
	assert.False(t, lmErr.Timeout)
	assert.Equal(t, 2, gen.calls, "exactly one retry")
}

func TestSynthesizeTimeoutFlag(t *testing.T) {
	gen := &stubGenerator{err: context.DeadlineExceeded}
	a := New(gen)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := a.Synthesize(ctx, "pergunta",
		[]types.Chunk{passage("Doc", 0.9, "texto")})

	var lmErr types.LanguageModelError
	require.ErrorAs(t, err, &lmErr)
	assert.True(t, lmErr.Timeout)
}

func TestSourcesTruncateLongExcerpts(t *testing.T) {
	long := strings.Repeat("regra fiscal à parte ", 60)
	sources := formatSources([]types.Chunk{passage("Doc", 0.9, long)})

	require.Len(t, sources, 1)
	runes := []rune(sources[0].RelevantText)
	assert.LessOrEqual(t, len(runes), maxCitationText+len([]rune("...")))
	assert.True(t, strings.HasSuffix(sources[0].RelevantText, "..."))
}

func TestOverallConfidenceWeighting(t *testing.T) {
	// Rank 1 dominates the weighted mean.
	high := overallConfidence([]types.Chunk{
		{Similarity: 0.9}, {Similarity: 0.5},
	})
	low := overallConfidence([]types.Chunk{
		{Similarity: 0.5}, {Similarity: 0.9},
	})
	assert.Greater(t, high, low)

	// Single passage: confidence is that passage's similarity.
	one := overallConfidence([]types.Chunk{{Similarity: 0.73}})
	assert.InDelta(t, 0.73, one, 0.001)

	assert.Zero(t, overallConfidence(nil))
}

func TestFitTokenBudgetKeepsTopPassage(t *testing.T) {
	a := New(&stubGenerator{})

	// A single oversized passage is never dropped.
	huge := []types.Chunk{passage("Doc", 0.9, strings.Repeat("palavra ", 20000))}
	used := a.fitTokenBudget("pergunta", huge)
	require.Len(t, used, 1)
}
