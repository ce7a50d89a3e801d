package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"taxrag/model"
	"taxrag/types"

	"github.com/pkoukk/tiktoken-go"
)

const (
	maxPromptTokens = 6000
	maxCitationText = 300

	// The honest "I don't know". Fabricating an answer when no passage
	// clears the confidence bar breaks the trust contract of the system.
	insufficientAnswer = "Não há informação suficiente na base de conhecimento para responder a esta pergunta."

	systemPrompt = `You are a specialist in international personal taxation answering from a curated knowledge base.

MANDATORY RULES:
1. Answer ONLY from the supplied passages. Never add outside knowledge.
2. Attribute claims to their passage with bracket references like [1].
3. If the passages do not contain the answer, say so plainly.
4. Answer in the language of the question.
5. End with: "ATENÇÃO: Esta resposta é baseada em informações gerais. Consulte sempre um profissional qualificado para sua situação específica."`
)

// Agent synthesizes a grounded answer with citations from retrieved
// passages.
type Agent struct {
	llm    model.GeneratorInterface
	logger *slog.Logger
}

func New(llm model.GeneratorInterface) *Agent {
	return &Agent{
		llm:    llm,
		logger: slog.Default(),
	}
}

// Synthesize builds the grounded prompt and calls the language model once,
// retrying a single time on failure. Zero passages short-circuit to the
// explicit insufficient-evidence answer without touching the model.
func (a *Agent) Synthesize(ctx context.Context, question string, passages []types.Chunk) (*types.Answer, error) {
	if len(passages) == 0 {
		return &types.Answer{
			Text:         insufficientAnswer,
			Confidence:   0.0,
			Sources:      []types.Source{},
			Insufficient: true,
		}, nil
	}

	used := a.fitTokenBudget(question, passages)
	prompt := buildPrompt(question, used)

	output, err := a.generateWithRetry(ctx, prompt)
	if err != nil {
		return nil, err
	}

	return &types.Answer{
		Text:       output,
		Confidence: overallConfidence(used),
		Sources:    formatSources(used),
	}, nil
}

// generateWithRetry retries once with a short backoff, then surfaces a
// typed LanguageModelError so the gateway can degrade without guessing.
func (a *Agent) generateWithRetry(ctx context.Context, prompt string) (string, error) {
	output, err := a.llm.Generate(ctx, systemPrompt, prompt)
	if err == nil {
		return output, nil
	}
	a.logger.Warn("language model call failed, retrying once", "error", err)

	select {
	case <-ctx.Done():
		return "", types.LanguageModelError{Timeout: true, Err: ctx.Err()}
	case <-time.After(500 * time.Millisecond):
	}

	output, err = a.llm.Generate(ctx, systemPrompt, prompt)
	if err != nil {
		return "", types.LanguageModelError{
			Timeout: errors.Is(err, context.DeadlineExceeded),
			Err:     err,
		}
	}
	return output, nil
}

func buildPrompt(question string, passages []types.Chunk) string {
	var b strings.Builder
	b.WriteString("Passages:\n")
	for i, p := range passages {
		fmt.Fprintf(&b, "[%d] %s", i+1, p.DocTitle)
		if p.Page > 0 {
			fmt.Fprintf(&b, ", page %d", p.Page)
		}
		if p.Section != "" {
			fmt.Fprintf(&b, ", section %q", p.Section)
		}
		b.WriteString(":\n")
		b.WriteString(p.Content)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Question:\n%s\n\nAnswer:", question)
	return b.String()
}

// fitTokenBudget drops the lowest-ranked passages until the prompt fits.
// At least the top passage always stays.
func (a *Agent) fitTokenBudget(question string, passages []types.Chunk) []types.Chunk {
	used := passages
	for len(used) > 1 {
		tokens, err := CountTokens(buildPrompt(question, used))
		if err != nil || tokens <= maxPromptTokens {
			return used
		}
		a.logger.Info("prompt over token budget, dropping passage",
			"tokens", tokens, "passages", len(used))
		used = used[:len(used)-1]
	}
	return used
}

func CountTokens(text string) (int, error) {
	enc, err := tiktoken.EncodingForModel("gpt-3.5-turbo")
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// overallConfidence is a rank-weighted mean of passage similarities
// (weight 1/rank), capped at the best passage. The answer can never claim
// more confidence than its strongest supporting passage.
func overallConfidence(passages []types.Chunk) float64 {
	if len(passages) == 0 {
		return 0.0
	}
	var sum, weights, best float64
	for i, p := range passages {
		w := 1.0 / float64(i+1)
		sum += w * p.Similarity
		weights += w
		if p.Similarity > best {
			best = p.Similarity
		}
	}
	conf := sum / weights
	if conf > best {
		conf = best
	}
	return conf
}

func formatSources(passages []types.Chunk) []types.Source {
	sources := make([]types.Source, len(passages))
	for i, p := range passages {
		text := p.Content
		if runes := []rune(text); len(runes) > maxCitationText {
			text = string(runes[:maxCitationText]) + "..."
		}
		sources[i] = types.Source{
			DocumentTitle: p.DocTitle,
			PageNumber:    p.Page,
			Section:       p.Section,
			Confidence:    p.Similarity,
			RelevantText:  text,
		}
	}
	return sources
}
