package model

import "context"

// EmbedderInterface produces fixed-dimension vectors. All vectors in one
// collection must come from the same ModelVersion.
type EmbedderInterface interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ModelVersion() string
}

// GeneratorInterface answers a prompt with a language model.
type GeneratorInterface interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}
